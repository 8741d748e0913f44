package draft

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billease/backend/internal/domain"
)

var (
	coffee = domain.Product{SKU: "SKU-COFFEE", Name: "Coffee", PriceCents: 100}
	bread  = domain.Product{SKU: "SKU-BREAD", Name: "Bread", PriceCents: 50}
)

func TestAddItemIncrementsExistingLine(t *testing.T) {
	b := New("store-1", "term-1")
	first, err := b.AddItem(coffee, 1)
	require.NoError(t, err)
	second, err := b.AddItem(coffee, 2)
	require.NoError(t, err)

	assert.Equal(t, first.LineID, second.LineID)
	snap := b.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 3, snap.Lines[0].Qty)
	assert.Equal(t, int64(100), snap.Lines[0].UnitPriceCents)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	b := New("store-1", "term-1")
	for _, qty := range []int{0, -1} {
		_, err := b.AddItem(coffee, qty)
		assert.True(t, errors.Is(err, domain.ErrInvalidQuantity), "qty %d", qty)
	}
	assert.Empty(t, b.Snapshot().Lines)
}

func TestAddItemCapsLineQuantity(t *testing.T) {
	b := New("store-1", "term-1")
	_, err := b.AddItem(coffee, math.MaxInt)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
	assert.Empty(t, b.Snapshot().Lines)

	_, err = b.AddItem(coffee, domain.MaxLineQty)
	require.NoError(t, err)
	_, err = b.AddItem(coffee, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
	_, err = b.AddItem(coffee, math.MaxInt)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))

	snap := b.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, domain.MaxLineQty, snap.Lines[0].Qty)
}

func TestUpdateQuantityRejectsAboveCap(t *testing.T) {
	b := New("store-1", "term-1")
	line, err := b.AddItem(coffee, 2)
	require.NoError(t, err)

	err = b.UpdateQuantity(line.LineID, domain.MaxLineQty+1)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
	assert.Equal(t, 2, b.Snapshot().Lines[0].Qty)

	require.NoError(t, b.UpdateQuantity(line.LineID, domain.MaxLineQty))
	assert.Equal(t, domain.MaxLineQty, b.Snapshot().Lines[0].Qty)
}

func TestUpdateQuantityRemovesLineAtZero(t *testing.T) {
	b := New("store-1", "term-1")
	line, err := b.AddItem(coffee, 2)
	require.NoError(t, err)

	b.UpdateQuantity(line.LineID, 5)
	assert.Equal(t, 5, b.Snapshot().Lines[0].Qty)

	b.UpdateQuantity(line.LineID, 0)
	snap := b.Snapshot()
	assert.NotNil(t, snap.Lines)
	assert.Empty(t, snap.Lines)

	// unknown line is a no-op
	b.UpdateQuantity("missing", 3)
	assert.Empty(t, b.Snapshot().Lines)
}

func TestQuantitiesStayPositiveUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	products := []domain.Product{coffee, bread, {SKU: "SKU-TEA", Name: "Tea", PriceCents: 70}}
	b := New("store-1", "term-1")
	for i := 0; i < 500; i++ {
		snap := b.Snapshot()
		if len(snap.Lines) > 0 && rng.Intn(2) == 0 {
			line := snap.Lines[rng.Intn(len(snap.Lines))]
			b.UpdateQuantity(line.LineID, rng.Intn(5)-1)
		} else {
			_, _ = b.AddItem(products[rng.Intn(len(products))], rng.Intn(4)-1)
		}
		for _, line := range b.Snapshot().Lines {
			if line.Qty < 1 {
				t.Fatalf("step %d: line %s has qty %d", i, line.SKU, line.Qty)
			}
		}
	}
	for _, line := range b.Snapshot().Lines {
		b.UpdateQuantity(line.LineID, 0)
	}
	snap := b.Snapshot()
	assert.NotNil(t, snap.Lines)
	assert.Empty(t, snap.Lines)
}

func TestApplyDiscountValidation(t *testing.T) {
	b := New("store-1", "term-1")
	assert.ErrorIs(t, b.ApplyDiscount(domain.DiscountPercent, decimal.NewFromInt(101)), domain.ErrInvalidDiscount)
	assert.ErrorIs(t, b.ApplyDiscount(domain.DiscountAmount, decimal.NewFromInt(-1)), domain.ErrInvalidDiscount)
	assert.ErrorIs(t, b.ApplyDiscount("bogus", decimal.NewFromInt(1)), domain.ErrInvalidDiscount)

	require.NoError(t, b.ApplyDiscount(domain.DiscountPercent, decimal.NewFromInt(100)))
	require.NoError(t, b.ApplyDiscount(domain.DiscountAmount, decimal.NewFromInt(500)))
	assert.Equal(t, domain.DiscountAmount, b.Snapshot().Discount.Kind)

	b.ClearDiscount()
	assert.Equal(t, domain.DiscountNone, b.Snapshot().Discount.Kind)
}

func TestSnapshotIsIsolatedFromBuilder(t *testing.T) {
	b := New("store-1", "term-1")
	line, err := b.AddItem(coffee, 1)
	require.NoError(t, err)
	b.SetCustomer("  cust-9 ")
	b.SetNote("table 4")

	snap := b.Snapshot()
	b.UpdateQuantity(line.LineID, 7)
	_, _ = b.AddItem(bread, 1)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, snap.Lines[0].Qty)
	assert.Equal(t, "cust-9", snap.CustomerRef)
	assert.Equal(t, "table 4", snap.Note)
}

func TestRestoreRoundTrip(t *testing.T) {
	b := New("store-1", "term-1")
	_, err := b.AddItem(coffee, 2)
	require.NoError(t, err)
	require.NoError(t, b.ApplyDiscount(domain.DiscountPercent, decimal.NewFromInt(10)))
	snap := b.Snapshot()

	restored := Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, snap.ID, restored.ID())

	_, err = restored.AddItem(coffee, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Lines[0].Qty)
}
