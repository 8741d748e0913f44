package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
)

// ReturnSession collects return lines against one invoice before they are
// confirmed. It is owned by a single caller and is not safe for concurrent
// use.
type ReturnSession struct {
	Transaction domain.Transaction
	// returned holds quantities already refunded when the session began.
	returned map[string]int
	Lines    []domain.ReturnLine
}

// Pending reports how many units of lineID this session will return.
func (rs *ReturnSession) Pending(lineID string) int {
	n := 0
	for _, line := range rs.Lines {
		if line.LineID == lineID {
			n += line.Qty
		}
	}
	return n
}

// AmountCents is the refund value of the session: unit price times quantity,
// summed. Bill-level discounts are not pro-rated.
func (rs *ReturnSession) AmountCents() int64 {
	var total int64
	for _, line := range rs.Lines {
		total += line.UnitPriceCents * int64(line.Qty)
	}
	return total
}

// BeginReturn opens a return against a completed invoice. The transaction is
// read from the ledger, not the cache, so its status is current.
func (s *Service) BeginReturn(ctx context.Context, invoiceNumber string) (*ReturnSession, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number is required", store.ErrInvalidInput)
	}
	tx, err := s.repo.FindTransactionByInvoice(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if !tx.Status.Refundable() {
		if tx.Status == domain.TxStatusRefunded {
			return nil, domain.ErrAlreadyRefunded
		}
		return nil, fmt.Errorf("%w: status %s", domain.ErrNotRefundable, tx.Status)
	}
	returned, err := s.repo.GetReturnedQtyByInvoice(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	return &ReturnSession{Transaction: *tx, returned: returned, Lines: []domain.ReturnLine{}}, nil
}

// AddReturnLine stages qty units of a sold line. The check counts earlier
// refunds and lines already staged in this session.
func (s *Service) AddReturnLine(session *ReturnSession, lineID string, qty int, reason string) error {
	if session == nil {
		return fmt.Errorf("%w: no return session", store.ErrInvalidInput)
	}
	lineID = strings.TrimSpace(lineID)
	var sold *domain.TransactionLine
	for i := range session.Transaction.Lines {
		if session.Transaction.Lines[i].LineID == lineID {
			sold = &session.Transaction.Lines[i]
			break
		}
	}
	if sold == nil {
		return fmt.Errorf("%w: line %s is not on invoice %s", domain.ErrExceedsSoldQuantity, lineID, session.Transaction.InvoiceNumber)
	}

	line := domain.ReturnLine{
		LineID:         sold.LineID,
		SKU:            sold.SKU,
		Qty:            qty,
		UnitPriceCents: sold.UnitPriceCents,
		Reason:         strings.TrimSpace(reason),
	}
	staged := append(append([]domain.ReturnLine{}, session.Lines...), line)
	if _, err := domain.EvaluateReturn(session.Transaction, session.returned, staged); err != nil {
		return err
	}
	session.Lines = staged
	return nil
}

// ConfirmReturn records the refund. The ledger re-checks quantities
// atomically, so a refund confirmed elsewhere since BeginReturn can still
// make this fail with domain.ErrExceedsSoldQuantity.
func (s *Service) ConfirmReturn(ctx context.Context, session *ReturnSession, processedBy string) (domain.ReturnResponse, error) {
	if session == nil || len(session.Lines) == 0 {
		return domain.ReturnResponse{}, domain.ErrEmptyReturn
	}
	tx := session.Transaction

	refund, status, err := s.repo.CreateRefund(ctx, domain.RefundRecord{
		InvoiceNumber: tx.InvoiceNumber,
		TransactionID: tx.ID,
		Lines:         session.Lines,
		AmountCents:   session.AmountCents(),
		ProcessedBy:   processedBy,
	})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.refreshCachedTransaction(ctx, tx.InvoiceNumber)
	s.logAudit(ctx, tx.StoreID, "bill_refund", "transaction", tx.InvoiceNumber,
		fmt.Sprintf("refund=%s,amount=%d,lines=%d,status=%s", refund.ID, refund.AmountCents, len(refund.Lines), status))

	session.Transaction.Status = status
	session.returned = nil
	session.Lines = nil
	return domain.ReturnResponse{Refund: *refund, TransactionStatus: status}, nil
}

// refreshCachedTransaction writes the post-refund ledger copy into the cache.
// Its newer UpdatedAt keeps a lookup racing the refund from caching the old
// status; when the ledger read fails the entry is dropped instead.
func (s *Service) refreshCachedTransaction(ctx context.Context, invoiceNumber string) {
	fresh, err := s.repo.FindTransactionByInvoice(ctx, invoiceNumber)
	if err == nil {
		err = s.txCache.Set(ctx, fresh, s.opts.CacheTTL)
	}
	if err == nil {
		return
	}
	log.Printf("[service] WARN: failed to refresh cached transaction %s: %v", invoiceNumber, err)
	if err := s.txCache.Invalidate(ctx, invoiceNumber); err != nil {
		log.Printf("[service] WARN: failed to invalidate cached transaction %s: %v", invoiceNumber, err)
	}
}

// ProcessReturn runs a whole return in one call: begin, stage every line,
// confirm as the current actor.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	if len(req.Lines) == 0 {
		return domain.ReturnResponse{}, domain.ErrEmptyReturn
	}
	session, err := s.BeginReturn(ctx, req.InvoiceNumber)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	for _, line := range req.Lines {
		if err := s.AddReturnLine(session, line.LineID, line.Qty, line.Reason); err != nil {
			return domain.ReturnResponse{}, err
		}
	}
	actor, _ := ActorFromContext(ctx)
	return s.ConfirmReturn(ctx, session, actor.Username)
}
