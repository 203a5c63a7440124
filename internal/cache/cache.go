package cache

import (
	"context"
	"time"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailySalesReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailySalesReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailySalesReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailySalesReport, _ time.Duration) error {
	return nil
}
