package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

const transactionColumns = `id, invoice_number, draft_id, store_id, terminal_id, cashier_id, customer_ref,
	payment_method, subtotal_cents, discount, tax_rate_percent, tax, total_cents, status, created_at, updated_at`

func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, store.ErrInvalidInput
	}
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequences (scope, value)
		VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`, scope).Scan(&value)
	return value, err
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.InvoiceNumber == "" || tx.StoreID == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, tx.ID, tx.InvoiceNumber, tx.DraftID, tx.StoreID, tx.TerminalID, tx.CashierID, tx.CustomerRef,
		tx.PaymentMethod, tx.SubtotalCents, tx.Discount, tx.TaxRatePercent, tx.Tax, tx.TotalCents,
		string(tx.Status), tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for i, line := range tx.Lines {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_lines (transaction_id, position, line_id, sku, name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, tx.ID, i, line.LineID, line.SKU, line.Name, line.UnitPriceCents, line.Qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	saved := tx.Clone()
	return &saved, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var status string
	if err := row.Scan(
		&tx.ID,
		&tx.InvoiceNumber,
		&tx.DraftID,
		&tx.StoreID,
		&tx.TerminalID,
		&tx.CashierID,
		&tx.CustomerRef,
		&tx.PaymentMethod,
		&tx.SubtotalCents,
		&tx.Discount,
		&tx.TaxRatePercent,
		&tx.Tax,
		&tx.TotalCents,
		&status,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Status = domain.TransactionStatus(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return &tx, nil
}

func (s *Store) findTransactionByInvoice(ctx context.Context, q querier, invoiceNumber string, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE invoice_number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tx, err := scanTransaction(q.QueryRowContext(ctx, query, invoiceNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadTransactionLines(ctx, q, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Lines = lines[tx.ID]
	return tx, nil
}

func (s *Store) loadTransactionLines(ctx context.Context, q querier, ids []string) (map[string][]domain.TransactionLine, error) {
	result := make(map[string][]domain.TransactionLine, len(ids))
	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, line_id, sku, name, unit_price_cents, qty
		FROM transaction_lines
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, position ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var line domain.TransactionLine
		if err := rows.Scan(&txID, &line.LineID, &line.SKU, &line.Name, &line.UnitPriceCents, &line.Qty); err != nil {
			return nil, err
		}
		result[txID] = append(result[txID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) FindTransactionByInvoice(ctx context.Context, invoiceNumber string) (*domain.Transaction, error) {
	return s.findTransactionByInvoice(ctx, s.db, invoiceNumber, false)
}

func (s *Store) ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, invoice_number DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		txs = append(txs, *tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return txs, nil
	}
	lines, err := s.loadTransactionLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Lines = lines[txs[i].ID]
	}
	return txs, nil
}

func (s *Store) CreateRefund(ctx context.Context, refund domain.RefundRecord) (*domain.RefundRecord, domain.TransactionStatus, error) {
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx, err := s.findTransactionByInvoice(ctx, pgTx, refund.InvoiceNumber, true)
	if err != nil {
		return nil, "", err
	}
	returned, err := s.returnedQty(ctx, pgTx, refund.InvoiceNumber)
	if err != nil {
		return nil, tx.Status, err
	}
	status, err := domain.EvaluateReturn(*tx, returned, refund.Lines)
	if err != nil {
		return nil, tx.Status, err
	}
	refund.TransactionID = tx.ID

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, invoice_number, transaction_id, amount_cents, processed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, refund.ID, refund.InvoiceNumber, refund.TransactionID, refund.AmountCents, refund.ProcessedBy, refund.CreatedAt)
	if err != nil {
		return nil, tx.Status, err
	}
	for i, line := range refund.Lines {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO refund_lines (refund_id, position, line_id, sku, qty, unit_price_cents, reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, refund.ID, i, line.LineID, line.SKU, line.Qty, line.UnitPriceCents, line.Reason)
		if err != nil {
			return nil, tx.Status, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, tx.ID, string(status), refund.CreatedAt)
	if err != nil {
		return nil, tx.Status, err
	}

	if err := pgTx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, tx.Status, store.ErrRevisionConflict
		}
		return nil, tx.Status, err
	}

	saved := refund.Clone()
	return &saved, status, nil
}

func (s *Store) returnedQty(ctx context.Context, q querier, invoiceNumber string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := q.QueryContext(ctx, `
		SELECT rl.line_id, COALESCE(SUM(rl.qty), 0)::int
		FROM refunds r
		JOIN refund_lines rl ON rl.refund_id = r.id
		WHERE r.invoice_number = $1
		GROUP BY rl.line_id
	`, invoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var lineID string
		var qty int
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		result[lineID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetReturnedQtyByInvoice(ctx context.Context, invoiceNumber string) (map[string]int, error) {
	return s.returnedQty(ctx, s.db, invoiceNumber)
}

func (s *Store) ListRefunds(ctx context.Context, invoiceNumber string) ([]domain.RefundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.invoice_number, r.transaction_id, r.amount_cents, r.processed_by, r.created_at,
			rl.line_id, rl.sku, rl.qty, rl.unit_price_cents, rl.reason
		FROM refunds r
		JOIN refund_lines rl ON rl.refund_id = r.id
		WHERE r.invoice_number = $1
		ORDER BY r.created_at ASC, r.id ASC, rl.position ASC
	`, invoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.RefundRecord, 0, 4)
	for rows.Next() {
		var head domain.RefundRecord
		var line domain.ReturnLine
		if err := rows.Scan(
			&head.ID, &head.InvoiceNumber, &head.TransactionID, &head.AmountCents, &head.ProcessedBy, &head.CreatedAt,
			&line.LineID, &line.SKU, &line.Qty, &line.UnitPriceCents, &line.Reason,
		); err != nil {
			return nil, err
		}
		if n := len(refunds); n == 0 || refunds[n-1].ID != head.ID {
			head.CreatedAt = head.CreatedAt.UTC()
			refunds = append(refunds, head)
		}
		last := &refunds[len(refunds)-1]
		last.Lines = append(last.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		StoreID:   storeID,
		Discount:  decimal.Zero,
		Tax:       decimal.Zero,
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(subtotal_cents), 0),
			COALESCE(SUM(discount), 0),
			COALESCE(SUM(tax), 0),
			COALESCE(SUM(total_cents), 0)
		FROM transactions
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
	`, storeID, from, to).Scan(
		&summary.Transactions,
		&summary.GrossSalesCents,
		&summary.Discount,
		&summary.Tax,
		&summary.NetSalesCents,
	)
	if err != nil {
		return summary, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM transactions
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, storeID, from, to)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry domain.SalesSummaryPayment
		if err := rows.Scan(&entry.PaymentMethod, &entry.Transactions, &entry.TotalCents); err != nil {
			return summary, err
		}
		summary.ByPayment = append(summary.ByPayment, entry)
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(r.amount_cents), 0)
		FROM refunds r
		JOIN transactions t ON t.id = r.transaction_id
		WHERE t.store_id = $1 AND r.created_at >= $2 AND r.created_at < $3
	`, storeID, from, to).Scan(&summary.Refunds, &summary.RefundedCents)
	if err != nil {
		return summary, err
	}
	return summary, nil
}
