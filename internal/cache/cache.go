package cache

import (
	"context"
	"time"

	"billease/backend/internal/domain"
)

// TransactionCache holds completed transactions by invoice number. A miss is
// reported as ok == false with a nil error. Set never replaces a cached copy
// whose UpdatedAt is later than the value being written.
type TransactionCache interface {
	Get(ctx context.Context, invoiceNumber string) (*domain.Transaction, bool, error)
	Set(ctx context.Context, value *domain.Transaction, ttl time.Duration) error
	Invalidate(ctx context.Context, invoiceNumber string) error
}

type NoopTransactionCache struct{}

func (NoopTransactionCache) Get(_ context.Context, _ string) (*domain.Transaction, bool, error) {
	return nil, false, nil
}

func (NoopTransactionCache) Set(_ context.Context, _ *domain.Transaction, _ time.Duration) error {
	return nil
}

func (NoopTransactionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
