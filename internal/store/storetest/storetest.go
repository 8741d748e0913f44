// Package storetest holds behaviour tests shared by every HeldBillStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

// SampleHeldBill returns a held bill with two lines and a percent discount.
// Times are truncated to microseconds so every backend round-trips them.
func SampleHeldBill(storeID, terminalID string, heldAt time.Time) domain.HeldBill {
	heldAt = heldAt.UTC().Truncate(time.Microsecond)
	return domain.HeldBill{
		ID:         xid.New("held"),
		BillNumber: "HOLD-000001",
		StoreID:    storeID,
		TerminalID: terminalID,
		HeldBy:     "cashier",
		HeldAt:     heldAt,
		Draft: domain.DraftSnapshot{
			ID:          xid.New("draft"),
			StoreID:     storeID,
			TerminalID:  terminalID,
			CustomerRef: "cust-7",
			Note:        "table 3",
			Lines: []domain.LineItem{
				{LineID: xid.New("line"), SKU: "SKU-KOPI-01", Name: "Kopi Sachet", UnitPriceCents: 100, Qty: 2},
				{LineID: xid.New("line"), SKU: "SKU-ROTI-01", Name: "Roti Tawar", UnitPriceCents: 50, Qty: 1},
			},
			Discount:  domain.Discount{Kind: domain.DiscountPercent, Value: decimal.NewFromInt(10)},
			CreatedAt: heldAt.Add(-time.Minute),
		},
	}
}

// AssertSameDraft compares snapshots by value, tolerating the encoding
// differences of decimals and times across backends.
func AssertSameDraft(t *testing.T, want, got domain.DraftSnapshot) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.StoreID, got.StoreID)
	assert.Equal(t, want.TerminalID, got.TerminalID)
	assert.Equal(t, want.CustomerRef, got.CustomerRef)
	assert.Equal(t, want.Note, got.Note)
	assert.Equal(t, want.Lines, got.Lines)
	assert.Equal(t, want.Discount.Kind, got.Discount.Kind)
	assert.True(t, want.Discount.Value.Equal(got.Discount.Value), "discount %s != %s", want.Discount.Value, got.Discount.Value)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
}

// RunHeldBillStoreTests exercises the HeldBillStore contract. newStore must
// return an empty store.
func RunHeldBillStoreTests(t *testing.T, newStore func(t *testing.T) store.HeldBillStore) {
	t.Run("HoldThenTakeRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		held := SampleHeldBill("store-a", "term-1", time.Now())

		saved, err := s.CreateHeldBill(ctx, held)
		require.NoError(t, err)
		assert.Equal(t, held.ID, saved.ID)
		assert.Equal(t, int64(1), saved.Revision)

		taken, err := s.TakeHeldBill(ctx, held.ID, 0)
		require.NoError(t, err)
		AssertSameDraft(t, held.Draft, taken.Draft)
		assert.Equal(t, held.BillNumber, taken.BillNumber)

		list, err := s.ListHeldBills(ctx, "store-a", "", 0)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = s.GetHeldBill(ctx, held.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.TakeHeldBill(ctx, held.ID, 0)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("HoldIsIdempotentPerDraft", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		held := SampleHeldBill("store-a", "term-1", time.Now())
		first, err := s.CreateHeldBill(ctx, held)
		require.NoError(t, err)

		again := held
		again.ID = xid.New("held")
		again.BillNumber = "HOLD-000002"
		second, err := s.CreateHeldBill(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.BillNumber, second.BillNumber)

		list, err := s.ListHeldBills(ctx, "store-a", "term-1", 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("RejectsEmptyDraft", func(t *testing.T) {
		s := newStore(t)
		held := SampleHeldBill("store-a", "term-1", time.Now())
		held.Draft.Lines = []domain.LineItem{}
		_, err := s.CreateHeldBill(context.Background(), held)
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	})

	t.Run("ListNewestFirstAndScoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)
		older := SampleHeldBill("store-a", "term-1", base)
		newer := SampleHeldBill("store-a", "term-2", base.Add(time.Minute))
		newest := SampleHeldBill("store-a", "term-1", base.Add(2*time.Minute))
		other := SampleHeldBill("store-b", "term-1", base.Add(3*time.Minute))
		for _, h := range []domain.HeldBill{newer, other, older, newest} {
			_, err := s.CreateHeldBill(ctx, h)
			require.NoError(t, err)
		}

		all, err := s.ListHeldBills(ctx, "store-a", "", 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{newest.ID, newer.ID, older.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

		term1, err := s.ListHeldBills(ctx, "store-a", "term-1", 0)
		require.NoError(t, err)
		require.Len(t, term1, 2)
		assert.Equal(t, newest.ID, term1[0].ID)

		limited, err := s.ListHeldBills(ctx, "store-a", "", 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, newest.ID, limited[0].ID)
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.DeleteHeldBill(context.Background(), "held-missing", 0))
		assert.NoError(t, s.DeleteHeldBill(context.Background(), "held-missing", 7))
	})

	t.Run("RevisionGuardsTakeAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		held := SampleHeldBill("store-a", "term-1", time.Now())
		_, err := s.CreateHeldBill(ctx, held)
		require.NoError(t, err)

		updated, err := s.UpdateHeldBillNote(ctx, held.ID, "customer stepped out", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Revision)
		assert.Equal(t, "customer stepped out", updated.Draft.Note)

		_, err = s.UpdateHeldBillNote(ctx, held.ID, "stale", 1)
		assert.ErrorIs(t, err, store.ErrRevisionConflict)
		_, err = s.TakeHeldBill(ctx, held.ID, 1)
		assert.ErrorIs(t, err, store.ErrRevisionConflict)
		assert.ErrorIs(t, s.DeleteHeldBill(ctx, held.ID, 1), store.ErrRevisionConflict)

		still, err := s.GetHeldBill(ctx, held.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), still.Revision)

		taken, err := s.TakeHeldBill(ctx, held.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, "customer stepped out", taken.Draft.Note)

		_, err = s.UpdateHeldBillNote(ctx, held.ID, "gone", 0)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DeleteFreesDraftForNewHold", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		held := SampleHeldBill("store-a", "term-1", time.Now())
		_, err := s.CreateHeldBill(ctx, held)
		require.NoError(t, err)
		require.NoError(t, s.DeleteHeldBill(ctx, held.ID, 1))

		again := held
		again.ID = xid.New("held")
		saved, err := s.CreateHeldBill(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, again.ID, saved.ID)
	})

	t.Run("ConcurrentTakeHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		held := SampleHeldBill("store-a", "term-1", time.Now())
		_, err := s.CreateHeldBill(ctx, held)
		require.NoError(t, err)

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.TakeHeldBill(ctx, held.ID, 0)
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
					return
				}
				if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrRevisionConflict) {
					t.Errorf("unexpected take error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, winners)
	})
}
