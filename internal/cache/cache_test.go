package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billease/backend/internal/domain"
)

func TestRedisTransactionCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisTransactionCache(client, "test")
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "INV-000001")
	require.NoError(t, err)
	assert.False(t, ok)

	tx := &domain.Transaction{
		InvoiceNumber: "INV-000001",
		Status:        domain.TxStatusCompleted,
		Tax:           decimal.RequireFromString("22.5"),
		TotalCents:    248,
	}
	require.NoError(t, c.Set(ctx, tx, time.Minute))

	got, ok, err := c.Get(ctx, "INV-000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(248), got.TotalCents)
	assert.True(t, got.Tax.Equal(tx.Tax))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "INV-000001")
	require.NoError(t, err)
	assert.False(t, ok, "expected entry to expire")

	require.NoError(t, c.Set(ctx, tx, time.Minute))
	require.NoError(t, c.Invalidate(ctx, "INV-000001"))
	_, ok, err = c.Get(ctx, "INV-000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTransactionCacheKeepsNewerCopy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisTransactionCache(client, "test")
	ctx := context.Background()

	soldAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	completed := &domain.Transaction{InvoiceNumber: "INV-000002", Status: domain.TxStatusCompleted, UpdatedAt: soldAt}
	refunded := &domain.Transaction{InvoiceNumber: "INV-000002", Status: domain.TxStatusRefunded, UpdatedAt: soldAt.Add(time.Hour)}

	require.NoError(t, c.Set(ctx, refunded, time.Minute))
	// a lookup that read the ledger before the refund must not win
	require.NoError(t, c.Set(ctx, completed, time.Minute))

	got, ok, err := c.Get(ctx, "INV-000002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TxStatusRefunded, got.Status)

	require.NoError(t, c.Invalidate(ctx, "INV-000002"))
	require.NoError(t, c.Set(ctx, completed, time.Minute))
	got, ok, err = c.Get(ctx, "INV-000002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TxStatusCompleted, got.Status)
}

func TestNoopTransactionCache(t *testing.T) {
	var c TransactionCache = NoopTransactionCache{}
	require.NoError(t, c.Set(context.Background(), &domain.Transaction{InvoiceNumber: "x"}, time.Minute))
	_, ok, err := c.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
