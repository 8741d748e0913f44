package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
}

// MaxLineQty caps the quantity of a single bill line so line totals stay
// well inside int64 minor units.
const MaxLineQty = 1_000_000

// LineItem is one row of a draft bill. UnitPriceCents is captured from the
// catalog when the line is first added.
type LineItem struct {
	LineID         string `json:"line_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

const (
	DiscountNone    = ""
	DiscountAmount  = "amount"
	DiscountPercent = "percent"
)

// Discount is a bill-level discount. For DiscountAmount the value is in minor
// units; for DiscountPercent it is a percentage in [0, 100].
type Discount struct {
	Kind  string          `json:"kind,omitempty"`
	Value decimal.Decimal `json:"value"`
}

type DraftSnapshot struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	TerminalID  string     `json:"terminal_id"`
	CustomerRef string     `json:"customer_ref,omitempty"`
	Note        string     `json:"note,omitempty"`
	Lines       []LineItem `json:"lines"`
	Discount    Discount   `json:"discount"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (d DraftSnapshot) Clone() DraftSnapshot {
	dup := d
	dup.Lines = make([]LineItem, len(d.Lines))
	copy(dup.Lines, d.Lines)
	return dup
}

func (d DraftSnapshot) ItemCount() int {
	count := 0
	for _, line := range d.Lines {
		count += line.Qty
	}
	return count
}

type HeldBill struct {
	ID         string        `json:"id"`
	BillNumber string        `json:"bill_number"`
	StoreID    string        `json:"store_id"`
	TerminalID string        `json:"terminal_id"`
	HeldBy     string        `json:"held_by"`
	Draft      DraftSnapshot `json:"draft"`
	HeldAt     time.Time     `json:"held_at"`
	Revision   int64         `json:"revision"`
}

func (h HeldBill) Clone() HeldBill {
	dup := h
	dup.Draft = h.Draft.Clone()
	return dup
}

// BillTotals holds the priced view of a draft. Discount and Tax are kept
// unrounded in minor units; only TotalCents is rounded.
type BillTotals struct {
	SubtotalCents  int64           `json:"subtotal_cents"`
	Discount       decimal.Decimal `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Tax            decimal.Decimal `json:"tax"`
	TotalCents     int64           `json:"total_cents"`
}

type TransactionLine struct {
	LineID         string `json:"line_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type Transaction struct {
	ID             string            `json:"id"`
	InvoiceNumber  string            `json:"invoice_number"`
	DraftID        string            `json:"draft_id"`
	StoreID        string            `json:"store_id"`
	TerminalID     string            `json:"terminal_id"`
	CashierID      string            `json:"cashier_id"`
	CustomerRef    string            `json:"customer_ref,omitempty"`
	PaymentMethod  string            `json:"payment_method"`
	Lines          []TransactionLine `json:"lines"`
	SubtotalCents  int64             `json:"subtotal_cents"`
	Discount       decimal.Decimal   `json:"discount"`
	TaxRatePercent decimal.Decimal   `json:"tax_rate_percent"`
	Tax            decimal.Decimal   `json:"tax"`
	TotalCents     int64             `json:"total_cents"`
	Status         TransactionStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (t Transaction) Clone() Transaction {
	dup := t
	dup.Lines = make([]TransactionLine, len(t.Lines))
	copy(dup.Lines, t.Lines)
	return dup
}

// SoldQtyByLine sums quantities per line id.
func (t Transaction) SoldQtyByLine() map[string]int {
	sold := make(map[string]int, len(t.Lines))
	for _, line := range t.Lines {
		sold[line.LineID] += line.Qty
	}
	return sold
}

type ReturnLine struct {
	LineID         string `json:"line_id"`
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Reason         string `json:"reason,omitempty"`
}

type RefundRecord struct {
	ID            string       `json:"id"`
	InvoiceNumber string       `json:"invoice_number"`
	TransactionID string       `json:"transaction_id"`
	Lines         []ReturnLine `json:"lines"`
	AmountCents   int64        `json:"amount_cents"`
	ProcessedBy   string       `json:"processed_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (r RefundRecord) Clone() RefundRecord {
	dup := r
	dup.Lines = make([]ReturnLine, len(r.Lines))
	copy(dup.Lines, r.Lines)
	return dup
}

type DraftCreateRequest struct {
	StoreID     string `json:"store_id"`
	TerminalID  string `json:"terminal_id"`
	CustomerRef string `json:"customer_ref,omitempty"`
}

type DraftItemRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type DraftLineUpdateRequest struct {
	Qty int `json:"qty"`
}

type DraftDiscountRequest struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

type DraftDetailsRequest struct {
	CustomerRef *string `json:"customer_ref,omitempty"`
	Note        *string `json:"note,omitempty"`
}

type DraftResponse struct {
	Draft  DraftSnapshot `json:"draft"`
	Totals BillTotals    `json:"totals"`
}

type CompleteDraftRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type TransactionResponse struct {
	Transaction Transaction    `json:"transaction"`
	Refunds     []RefundRecord `json:"refunds,omitempty"`
}

type HeldBillResponse struct {
	HeldBill HeldBill `json:"held_bill"`
}

type HeldBillListResponse struct {
	Items []HeldBill `json:"items"`
}

type HeldBillNoteRequest struct {
	Note     string `json:"note"`
	Revision int64  `json:"revision"`
}

type ResumeHeldBillRequest struct {
	Revision int64 `json:"revision"`
}

type ReturnLineRequest struct {
	LineID string `json:"line_id"`
	Qty    int    `json:"qty"`
	Reason string `json:"reason"`
}

type ReturnRequest struct {
	InvoiceNumber string              `json:"invoice_number"`
	ManagerPIN    string              `json:"manager_pin"`
	Lines         []ReturnLineRequest `json:"lines"`
}

type ReturnResponse struct {
	Refund            RefundRecord      `json:"refund"`
	TransactionStatus TransactionStatus `json:"transaction_status"`
}

type ReceiptResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

const (
	HeldBillEventHeld    = "held"
	HeldBillEventUpdated = "updated"
	HeldBillEventResumed = "resumed"
	HeldBillEventDeleted = "deleted"
)

// HeldBillEvent tells other readers of the held-bill store that an entry
// changed.
type HeldBillEvent struct {
	Type       string    `json:"type"`
	StoreID    string    `json:"store_id"`
	TerminalID string    `json:"terminal_id"`
	HeldBillID string    `json:"held_bill_id"`
	BillNumber string    `json:"bill_number"`
	Revision   int64     `json:"revision"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type SalesSummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Transactions  int64  `json:"transactions"`
	TotalCents    int64  `json:"total_cents"`
}

type SalesSummary struct {
	StoreID         string                `json:"store_id"`
	From            string                `json:"from"`
	To              string                `json:"to"`
	Transactions    int64                 `json:"transactions"`
	GrossSalesCents int64                 `json:"gross_sales_cents"`
	Discount        decimal.Decimal       `json:"discount"`
	Tax             decimal.Decimal       `json:"tax"`
	NetSalesCents   int64                 `json:"net_sales_cents"`
	Refunds         int64                 `json:"refunds"`
	RefundedCents   int64                 `json:"refunded_cents"`
	ByPayment       []SalesSummaryPayment `json:"by_payment"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}
