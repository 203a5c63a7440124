package invoice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const digits = "0123456789"

// Next returns a human-facing invoice number such as INV-20260829-481736.
// Uniqueness is enforced by the datastore's unique constraint, not here; a
// collision surfaces to the caller as a conflict and the caller retries with
// a fresh number.
func Next(now time.Time) string {
	var suffix strings.Builder
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return fmt.Sprintf("INV-%s-%d", now.UTC().Format("20060102"), now.UnixNano()%1000000)
		}
		suffix.WriteByte(digits[n.Int64()])
	}
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), suffix.String())
}
