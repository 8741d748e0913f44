package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/store/storetest"
)

func TestHeldBillStore(t *testing.T) {
	storetest.RunHeldBillStoreTests(t, func(t *testing.T) store.HeldBillStore {
		return New()
	})
}

func TestNextSequenceIsMonotonicPerScope(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.NextSequence(ctx, "invoice")
			if err != nil {
				t.Errorf("next sequence: %v", err)
				return
			}
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		unique[n] = true
	}
	assert.Len(t, unique, 100)
	assert.True(t, unique[1] && unique[100])

	other, err := s.NextSequence(ctx, "hold:store-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	_, err = s.NextSequence(ctx, "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func sampleTransaction(invoice string, createdAt time.Time) domain.Transaction {
	return domain.Transaction{
		InvoiceNumber: invoice,
		DraftID:       "draft-" + invoice,
		StoreID:       "store-a",
		TerminalID:    "term-1",
		CashierID:     "cashier",
		PaymentMethod: "cash",
		Lines: []domain.TransactionLine{
			{LineID: "l1", SKU: "SKU-A", Name: "A", UnitPriceCents: 100, Qty: 3},
			{LineID: "l2", SKU: "SKU-B", Name: "B", UnitPriceCents: 50, Qty: 2},
		},
		SubtotalCents: 400,
		Discount:      decimal.Zero,
		Tax:           decimal.NewFromInt(40),
		TotalCents:    440,
		CreatedAt:     createdAt,
	}
}

func TestCreateRefundTracksCumulativeQuantities(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateTransaction(ctx, sampleTransaction("INV-000001", time.Now().UTC()))
	require.NoError(t, err)

	_, status, err := s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: "INV-000001",
		Lines:         []domain.ReturnLine{{LineID: "l1", Qty: 3, UnitPriceCents: 100}},
		AmountCents:   300,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPartialRefund, status)

	_, _, err = s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: "INV-000001",
		Lines:         []domain.ReturnLine{{LineID: "l1", Qty: 1, UnitPriceCents: 100}},
	})
	assert.ErrorIs(t, err, domain.ErrExceedsSoldQuantity)

	refund, status, err := s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: "INV-000001",
		Lines:         []domain.ReturnLine{{LineID: "l2", Qty: 2, UnitPriceCents: 50}},
		AmountCents:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusRefunded, status)
	assert.NotEmpty(t, refund.TransactionID)

	_, _, err = s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: "INV-000001",
		Lines:         []domain.ReturnLine{{LineID: "l2", Qty: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	tx, err := s.FindTransactionByInvoice(ctx, "INV-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusRefunded, tx.Status)

	returned, err := s.GetReturnedQtyByInvoice(ctx, "INV-000001")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"l1": 3, "l2": 2}, returned)

	refunds, err := s.ListRefunds(ctx, "INV-000001")
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	_, _, err = s.CreateRefund(ctx, domain.RefundRecord{InvoiceNumber: "INV-404"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateTransactionRejectsDuplicateInvoice(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateTransaction(ctx, sampleTransaction("INV-000001", time.Now().UTC()))
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, sampleTransaction("INV-000001", time.Now().UTC()))
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSalesSummaryAndListing(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.CreateTransaction(ctx, sampleTransaction("INV-000001", day.Add(9*time.Hour)))
	require.NoError(t, err)
	card := sampleTransaction("INV-000002", day.Add(10*time.Hour))
	card.PaymentMethod = "card"
	_, err = s.CreateTransaction(ctx, card)
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, sampleTransaction("INV-000003", day.Add(30*time.Hour)))
	require.NoError(t, err)

	_, _, err = s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: "INV-000001",
		Lines:         []domain.ReturnLine{{LineID: "l2", Qty: 1, UnitPriceCents: 50}},
		AmountCents:   50,
		CreatedAt:     day.Add(11 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := s.GetSalesSummary(ctx, "store-a", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Transactions)
	assert.Equal(t, int64(800), summary.GrossSalesCents)
	assert.Equal(t, int64(880), summary.NetSalesCents)
	assert.True(t, summary.Tax.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, int64(1), summary.Refunds)
	assert.Equal(t, int64(50), summary.RefundedCents)
	require.Len(t, summary.ByPayment, 2)
	assert.Equal(t, "card", summary.ByPayment[0].PaymentMethod)

	list, err := s.ListTransactions(ctx, "store-a", day, day.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "INV-000002", list[0].InvoiceNumber)
}

func TestSeededCatalogAndUsers(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, products)

	p, err := s.GetProductBySKU(ctx, "SKU-KOPI-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2600), p.PriceCents)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)

	require.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "Admin", Password: "x"}), store.ErrInvalidInput)
	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: "kasir2", Password: "hash"}))
	require.ErrorIs(t, s.UpdateUserPassword(ctx, "nobody", "x"), store.ErrNotFound)
}
