// Package draft builds an in-progress bill. A Builder is owned by a single
// sale session and does no I/O; callers serialize access.
package draft

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billease/backend/internal/domain"
	"billease/backend/internal/xid"
)

var maxPercent = decimal.NewFromInt(100)

type Builder struct {
	snap domain.DraftSnapshot
}

func New(storeID, terminalID string) *Builder {
	return &Builder{snap: domain.DraftSnapshot{
		ID:         xid.New("draft"),
		StoreID:    strings.TrimSpace(storeID),
		TerminalID: strings.TrimSpace(terminalID),
		Lines:      []domain.LineItem{},
		CreatedAt:  time.Now().UTC(),
	}}
}

// Restore rehydrates a builder from a held snapshot. The draft keeps its id so
// a later hold of the same sale stays idempotent.
func Restore(snap domain.DraftSnapshot) *Builder {
	b := &Builder{snap: snap.Clone()}
	if b.snap.Lines == nil {
		b.snap.Lines = []domain.LineItem{}
	}
	return b
}

func (b *Builder) ID() string { return b.snap.ID }

// AddItem appends a line for the product, or increments the existing line
// with the same SKU. No line may exceed domain.MaxLineQty.
func (b *Builder) AddItem(product domain.Product, qty int) (domain.LineItem, error) {
	if qty < 1 || qty > domain.MaxLineQty {
		return domain.LineItem{}, domain.ErrInvalidQuantity
	}
	for i := range b.snap.Lines {
		if b.snap.Lines[i].SKU == product.SKU {
			if b.snap.Lines[i].Qty > domain.MaxLineQty-qty {
				return domain.LineItem{}, domain.ErrInvalidQuantity
			}
			b.snap.Lines[i].Qty += qty
			return b.snap.Lines[i], nil
		}
	}
	line := domain.LineItem{
		LineID:         xid.New("line"),
		SKU:            product.SKU,
		Name:           product.Name,
		UnitPriceCents: product.PriceCents,
		Qty:            qty,
	}
	b.snap.Lines = append(b.snap.Lines, line)
	return line, nil
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line; an
// unknown line id is ignored.
func (b *Builder) UpdateQuantity(lineID string, qty int) error {
	if qty > domain.MaxLineQty {
		return domain.ErrInvalidQuantity
	}
	for i := range b.snap.Lines {
		if b.snap.Lines[i].LineID != lineID {
			continue
		}
		if qty <= 0 {
			b.snap.Lines = append(b.snap.Lines[:i], b.snap.Lines[i+1:]...)
			return nil
		}
		b.snap.Lines[i].Qty = qty
		return nil
	}
	return nil
}

func (b *Builder) ApplyDiscount(kind string, value decimal.Decimal) error {
	if value.IsNegative() {
		return domain.ErrInvalidDiscount
	}
	switch kind {
	case domain.DiscountAmount:
	case domain.DiscountPercent:
		if value.GreaterThan(maxPercent) {
			return domain.ErrInvalidDiscount
		}
	default:
		return domain.ErrInvalidDiscount
	}
	b.snap.Discount = domain.Discount{Kind: kind, Value: value}
	return nil
}

func (b *Builder) ClearDiscount() {
	b.snap.Discount = domain.Discount{}
}

func (b *Builder) SetCustomer(ref string) {
	b.snap.CustomerRef = strings.TrimSpace(ref)
}

func (b *Builder) SetNote(note string) {
	b.snap.Note = strings.TrimSpace(note)
}

// Snapshot returns a deep copy that later builder calls cannot change.
func (b *Builder) Snapshot() domain.DraftSnapshot {
	return b.snap.Clone()
}
