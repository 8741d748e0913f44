package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"billease/backend/internal/domain"
	"billease/backend/internal/money"
	"billease/backend/internal/store"
)

// PriceDraft computes bill totals. Tax applies to the subtotal after
// discount and only the final total is rounded, half to even.
func PriceDraft(snap domain.DraftSnapshot, taxRatePercent decimal.Decimal) domain.BillTotals {
	subtotal := decimal.Zero
	for _, line := range snap.Lines {
		subtotal = subtotal.Add(money.LineTotal(line.UnitPriceCents, line.Qty))
	}

	discount := decimal.Zero
	switch snap.Discount.Kind {
	case domain.DiscountAmount:
		discount = decimal.Min(snap.Discount.Value, subtotal)
	case domain.DiscountPercent:
		discount = money.PercentOf(subtotal, snap.Discount.Value)
	}

	taxable := subtotal.Sub(discount)
	tax := money.PercentOf(taxable, taxRatePercent)

	return domain.BillTotals{
		SubtotalCents:  subtotal.IntPart(),
		Discount:       discount,
		TaxRatePercent: taxRatePercent,
		Tax:            tax,
		TotalCents:     money.RoundTotal(taxable.Add(tax)),
	}
}

// Complete turns a draft snapshot into a recorded transaction with a fresh
// invoice number.
func (s *Service) Complete(ctx context.Context, snap domain.DraftSnapshot, paymentMethod string, cashierID string) (domain.Transaction, error) {
	if len(snap.Lines) == 0 {
		return domain.Transaction{}, domain.ErrEmptyBill
	}
	paymentMethod = strings.ToLower(strings.TrimSpace(paymentMethod))
	if !isSupportedPaymentMethod(paymentMethod) {
		return domain.Transaction{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, paymentMethod)
	}
	if snap.StoreID == "" {
		snap.StoreID = s.opts.DefaultStoreID
	}

	totals := PriceDraft(snap, s.opts.TaxRatePercent)
	invoice, err := s.nextNumber(ctx, "invoice", s.opts.InvoicePrefix)
	if err != nil {
		return domain.Transaction{}, err
	}

	lines := make([]domain.TransactionLine, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, domain.TransactionLine{
			LineID:         line.LineID,
			SKU:            line.SKU,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
		})
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		InvoiceNumber:  invoice,
		DraftID:        snap.ID,
		StoreID:        snap.StoreID,
		TerminalID:     snap.TerminalID,
		CashierID:      cashierID,
		CustomerRef:    snap.CustomerRef,
		PaymentMethod:  paymentMethod,
		Lines:          lines,
		SubtotalCents:  totals.SubtotalCents,
		Discount:       totals.Discount,
		TaxRatePercent: totals.TaxRatePercent,
		Tax:            totals.Tax,
		TotalCents:     totals.TotalCents,
		Status:         domain.TxStatusCompleted,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := s.txCache.Set(ctx, created, s.opts.CacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache transaction %s: %v", created.InvoiceNumber, err)
	}
	s.logAudit(ctx, created.StoreID, "bill_complete", "transaction", created.InvoiceNumber,
		fmt.Sprintf("draft=%s,total=%d,payment=%s", snap.ID, created.TotalCents, created.PaymentMethod))
	return *created, nil
}

// CompleteDraft completes an active draft and ends its session. A failed
// completion leaves the draft open.
func (s *Service) CompleteDraft(ctx context.Context, draftID string, req domain.CompleteDraftRequest) (domain.Transaction, error) {
	sess, err := s.lockDraft(draftID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer sess.mu.Unlock()

	actor, _ := ActorFromContext(ctx)
	tx, err := s.Complete(ctx, sess.builder.Snapshot(), req.PaymentMethod, actor.Username)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.closeDraftLocked(sess, domain.PhaseCompleted); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

// GetTransaction looks an invoice up through the transaction cache.
func (s *Service) GetTransaction(ctx context.Context, invoiceNumber string) (domain.Transaction, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return domain.Transaction{}, fmt.Errorf("%w: invoice number is required", store.ErrInvalidInput)
	}

	cached, ok, err := s.txCache.Get(ctx, invoiceNumber)
	if err != nil {
		log.Printf("[service] WARN: transaction cache read failed for %s: %v", invoiceNumber, err)
	}
	if ok {
		return *cached, nil
	}

	tx, err := s.repo.FindTransactionByInvoice(ctx, invoiceNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.txCache.Set(ctx, tx, s.opts.CacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache transaction %s: %v", invoiceNumber, err)
	}
	return *tx, nil
}

func (s *Service) GetTransactionWithRefunds(ctx context.Context, invoiceNumber string) (domain.TransactionResponse, error) {
	tx, err := s.GetTransaction(ctx, invoiceNumber)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	refunds, err := s.repo.ListRefunds(ctx, tx.InvoiceNumber)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.TransactionResponse{Transaction: tx, Refunds: refunds}, nil
}

// BuildReceipt renders an ESC/POS receipt for the invoice, followed by any
// refunds recorded against it.
func (s *Service) BuildReceipt(ctx context.Context, invoiceNumber string) (domain.ReceiptResponse, error) {
	view, err := s.GetTransactionWithRefunds(ctx, invoiceNumber)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	tx := view.Transaction

	lines := []string{
		"BillEase POS",
		"========================",
		"Invoice: " + tx.InvoiceNumber,
		"Store: " + tx.StoreID,
		"Terminal: " + tx.TerminalID,
		"Date: " + tx.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	if tx.CustomerRef != "" {
		lines = append(lines[:len(lines)-1], "Customer: "+tx.CustomerRef, "------------------------")
	}
	for _, item := range tx.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		lines = append(lines, "  "+money.FormatCents(item.UnitPriceCents*int64(item.Qty)))
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+money.FormatCents(tx.SubtotalCents),
		"Discount : "+money.Format(tx.Discount),
		fmt.Sprintf("Tax %s%%: %s", tx.TaxRatePercent.String(), money.Format(tx.Tax)),
		"Total    : "+money.FormatCents(tx.TotalCents),
		"Payment  : "+tx.PaymentMethod,
	)
	if len(view.Refunds) > 0 {
		lines = append(lines, "------------------------", "Refunds")
		for _, refund := range view.Refunds {
			lines = append(lines, fmt.Sprintf("%s -%s", refund.CreatedAt.Format("2006-01-02 15:04"), money.FormatCents(refund.AmountCents)))
			for _, line := range refund.Lines {
				lines = append(lines, fmt.Sprintf("  %s x%d", line.SKU, line.Qty))
			}
		}
		lines = append(lines, "Status   : "+string(tx.Status))
	}
	lines = append(lines,
		"========================",
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		InvoiceNumber: tx.InvoiceNumber,
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.InvoiceNumber),
	}, nil
}
