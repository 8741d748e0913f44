package store

import (
	"context"
	"errors"
	"time"

	"billease/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrInvalidInput     = errors.New("invalid input")
)

// HeldBillStore keeps parked drafts. An expectedRevision of zero means the
// caller does not care which revision it removes or updates.
type HeldBillStore interface {
	// CreateHeldBill stores held. If a bill for the same draft id is already
	// held, the existing entry is returned unchanged.
	CreateHeldBill(ctx context.Context, held domain.HeldBill) (*domain.HeldBill, error)
	GetHeldBill(ctx context.Context, id string) (*domain.HeldBill, error)
	// ListHeldBills returns bills newest first. An empty terminalID lists
	// every terminal of the store.
	ListHeldBills(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldBill, error)
	// TakeHeldBill reads and removes the bill in one step.
	TakeHeldBill(ctx context.Context, id string, expectedRevision int64) (*domain.HeldBill, error)
	// DeleteHeldBill is a no-op when the bill does not exist.
	DeleteHeldBill(ctx context.Context, id string, expectedRevision int64) error
	UpdateHeldBillNote(ctx context.Context, id string, note string, expectedRevision int64) (*domain.HeldBill, error)
}

type Sequencer interface {
	// NextSequence returns the next value for scope, starting at 1. Values
	// are never handed out twice.
	NextSequence(ctx context.Context, scope string) (int64, error)
}

type Ledger interface {
	Sequencer
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByInvoice(ctx context.Context, invoiceNumber string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	// CreateRefund validates the refund against the invoice's sold and
	// already returned quantities, stores it and moves the transaction status
	// in one atomic step.
	CreateRefund(ctx context.Context, refund domain.RefundRecord) (*domain.RefundRecord, domain.TransactionStatus, error)
	GetReturnedQtyByInvoice(ctx context.Context, invoiceNumber string) (map[string]int, error)
	ListRefunds(ctx context.Context, invoiceNumber string) ([]domain.RefundRecord, error)
	GetSalesSummary(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error)
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	HeldBillStore
	Ledger
	Catalog
	AuditStore
	UserStore
}

// CheckRevision reports ErrRevisionConflict when expected is set and differs
// from current.
func CheckRevision(current int64, expected int64) error {
	if expected != 0 && expected != current {
		return ErrRevisionConflict
	}
	return nil
}
