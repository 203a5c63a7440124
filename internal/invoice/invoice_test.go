package invoice

import (
	"strings"
	"testing"
	"time"
)

func TestNextFormat(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	got := Next(now)

	if !strings.HasPrefix(got, "INV-20260314-") {
		t.Fatalf("unexpected prefix: %s", got)
	}
	suffix := strings.TrimPrefix(got, "INV-20260314-")
	if len(suffix) != 6 {
		t.Fatalf("expected 6-digit suffix, got %q", suffix)
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in suffix: %q", suffix)
		}
	}
}
