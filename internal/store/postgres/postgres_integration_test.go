package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/store/storetest"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BILLEASE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BILLEASE_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestHeldBillStoreIntegration(t *testing.T) {
	storetest.RunHeldBillStoreTests(t, func(t *testing.T) store.HeldBillStore {
		s := newIntegrationStore(t)
		if _, err := s.db.ExecContext(context.Background(), `DELETE FROM held_bills`); err != nil {
			t.Fatalf("reset held bills: %v", err)
		}
		return s
	})
}

func TestRefundLifecycleIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	invoice := fmt.Sprintf("INV-IT-%d", stamp)
	storeID := fmt.Sprintf("store-it-%d", stamp)

	created, err := s.CreateTransaction(ctx, domain.Transaction{
		InvoiceNumber:  invoice,
		DraftID:        fmt.Sprintf("draft-it-%d", stamp),
		StoreID:        storeID,
		TerminalID:     "T-IT",
		CashierID:      "cashier",
		PaymentMethod:  "cash",
		SubtotalCents:  400,
		Discount:       decimal.RequireFromString("40"),
		TaxRatePercent: decimal.NewFromInt(10),
		Tax:            decimal.RequireFromString("36"),
		TotalCents:     396,
		Lines: []domain.TransactionLine{
			{LineID: "l1", SKU: "SKU-A", Name: "A", UnitPriceCents: 100, Qty: 3},
			{LineID: "l2", SKU: "SKU-B", Name: "B", UnitPriceCents: 50, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refund_lines WHERE refund_id IN (SELECT id FROM refunds WHERE invoice_number = $1)`, invoice)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM refunds WHERE invoice_number = $1`, invoice)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1`, created.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, created.ID)
	})

	_, status, err := s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: invoice,
		Lines:         []domain.ReturnLine{{LineID: "l1", SKU: "SKU-A", Qty: 3, UnitPriceCents: 100}},
		AmountCents:   300,
		ProcessedBy:   "manager",
	})
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if status != domain.TxStatusPartialRefund {
		t.Fatalf("expected partial-refund, got %s", status)
	}

	if _, _, err := s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: invoice,
		Lines:         []domain.ReturnLine{{LineID: "l1", SKU: "SKU-A", Qty: 1, UnitPriceCents: 100}},
		ProcessedBy:   "manager",
	}); err == nil {
		t.Fatalf("expected over-return to fail")
	}

	_, status, err = s.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: invoice,
		Lines:         []domain.ReturnLine{{LineID: "l2", SKU: "SKU-B", Qty: 2, UnitPriceCents: 50}},
		AmountCents:   100,
		ProcessedBy:   "manager",
	})
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if status != domain.TxStatusRefunded {
		t.Fatalf("expected refunded, got %s", status)
	}

	tx, err := s.FindTransactionByInvoice(ctx, invoice)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if tx.Status != domain.TxStatusRefunded || len(tx.Lines) != 2 {
		t.Fatalf("unexpected transaction after refunds: status=%s lines=%d", tx.Status, len(tx.Lines))
	}
	if !tx.Tax.Equal(decimal.RequireFromString("36")) {
		t.Fatalf("expected tax 36, got %s", tx.Tax)
	}

	refunds, err := s.ListRefunds(ctx, invoice)
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if len(refunds) != 2 || len(refunds[0].Lines) != 1 {
		t.Fatalf("unexpected refunds: %+v", refunds)
	}

	summary, err := s.GetSalesSummary(ctx, storeID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sales summary: %v", err)
	}
	if summary.Transactions != 1 || summary.RefundedCents != 400 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestNextSequenceIntegration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	scope := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sequences WHERE scope = $1`, scope)
	})

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, scope)
		if err != nil {
			t.Fatalf("next sequence: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}
