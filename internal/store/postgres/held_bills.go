package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

const heldBillColumns = `id, bill_number, store_id, terminal_id, held_by, draft, held_at, revision`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeldBill(row rowScanner) (*domain.HeldBill, error) {
	var held domain.HeldBill
	var draftRaw []byte
	if err := row.Scan(
		&held.ID,
		&held.BillNumber,
		&held.StoreID,
		&held.TerminalID,
		&held.HeldBy,
		&draftRaw,
		&held.HeldAt,
		&held.Revision,
	); err != nil {
		return nil, err
	}
	held.HeldAt = held.HeldAt.UTC()
	if err := json.Unmarshal(draftRaw, &held.Draft); err != nil {
		return nil, err
	}
	if held.Draft.Lines == nil {
		held.Draft.Lines = []domain.LineItem{}
	}
	return &held, nil
}

func (s *Store) CreateHeldBill(ctx context.Context, held domain.HeldBill) (*domain.HeldBill, error) {
	if held.StoreID == "" || held.TerminalID == "" || held.Draft.ID == "" || len(held.Draft.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if held.ID == "" {
		held.ID = xid.New("held")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	held.Revision = 1

	draftJSON, err := json.Marshal(held.Draft)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO held_bills (id, bill_number, store_id, terminal_id, held_by, draft_id, draft, held_at, revision)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (draft_id) DO NOTHING
	`, held.ID, held.BillNumber, held.StoreID, held.TerminalID, held.HeldBy, held.Draft.ID, draftJSON, held.HeldAt, held.Revision)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 1 {
		saved := held.Clone()
		return &saved, nil
	}

	existing, err := scanHeldBill(s.db.QueryRowContext(ctx, `
		SELECT `+heldBillColumns+`
		FROM held_bills
		WHERE draft_id = $1
	`, held.Draft.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// taken between the insert and this read
			return nil, store.ErrRevisionConflict
		}
		return nil, err
	}
	return existing, nil
}

func (s *Store) GetHeldBill(ctx context.Context, id string) (*domain.HeldBill, error) {
	held, err := scanHeldBill(s.db.QueryRowContext(ctx, `
		SELECT `+heldBillColumns+`
		FROM held_bills
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return held, nil
}

func (s *Store) ListHeldBills(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldBill, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+heldBillColumns+`
		FROM held_bills
		WHERE store_id = $1 AND ($2 = '' OR terminal_id = $2)
		ORDER BY held_at DESC, id DESC
		LIMIT $3
	`, storeID, terminalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	helds := make([]domain.HeldBill, 0, 16)
	for rows.Next() {
		held, err := scanHeldBill(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, *held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return helds, nil
}

func (s *Store) TakeHeldBill(ctx context.Context, id string, expectedRevision int64) (*domain.HeldBill, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	held, err := scanHeldBill(tx.QueryRowContext(ctx, `
		SELECT `+heldBillColumns+`
		FROM held_bills
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isSerializationFailure(err) {
			return nil, store.ErrRevisionConflict
		}
		return nil, err
	}
	if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM held_bills WHERE id = $1`, id)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, store.ErrRevisionConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, store.ErrRevisionConflict
		}
		return nil, err
	}
	return held, nil
}

func (s *Store) DeleteHeldBill(ctx context.Context, id string, expectedRevision int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM held_bills
		WHERE id = $1 AND ($2::bigint = 0 OR revision = $2::bigint)
	`, id, expectedRevision)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	// Nothing deleted: either already gone, which is fine, or the revision
	// moved on.
	if _, err := s.GetHeldBill(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return store.ErrRevisionConflict
}

func (s *Store) UpdateHeldBillNote(ctx context.Context, id string, note string, expectedRevision int64) (*domain.HeldBill, error) {
	held, err := scanHeldBill(s.db.QueryRowContext(ctx, `
		UPDATE held_bills
		SET draft = jsonb_set(draft, '{note}', to_jsonb($2::text)),
			revision = revision + 1
		WHERE id = $1 AND ($3::bigint = 0 OR revision = $3::bigint)
		RETURNING `+heldBillColumns,
		id, note, expectedRevision))
	if err == nil {
		return held, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := s.GetHeldBill(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrRevisionConflict
}
