package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billease/backend/internal/domain"
	"billease/backend/internal/draft"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

// HoldDraft parks an active draft under a store-scoped bill number and ends
// the draft session. Holding an empty draft fails with domain.ErrEmptyBill.
func (s *Service) HoldDraft(ctx context.Context, draftID string) (domain.HeldBill, error) {
	sess, err := s.lockDraft(draftID)
	if err != nil {
		return domain.HeldBill{}, err
	}
	defer sess.mu.Unlock()

	snap := sess.builder.Snapshot()
	if len(snap.Lines) == 0 {
		return domain.HeldBill{}, domain.ErrEmptyBill
	}

	billNumber, err := s.nextNumber(ctx, "hold:"+snap.StoreID, s.opts.HoldPrefix)
	if err != nil {
		return domain.HeldBill{}, err
	}

	actor, _ := ActorFromContext(ctx)
	held, err := s.held.CreateHeldBill(ctx, domain.HeldBill{
		ID:         xid.New("held"),
		BillNumber: billNumber,
		StoreID:    snap.StoreID,
		TerminalID: snap.TerminalID,
		HeldBy:     actor.Username,
		Draft:      snap,
		HeldAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.HeldBill{}, err
	}
	if err := s.closeDraftLocked(sess, domain.PhaseHeld); err != nil {
		return domain.HeldBill{}, err
	}

	s.logAudit(ctx, held.StoreID, "bill_hold", "held_bill", held.ID, fmt.Sprintf("bill=%s,draft=%s,lines=%d", held.BillNumber, snap.ID, len(snap.Lines)))
	s.publish(ctx, domain.HeldBillEventHeld, *held)
	return *held, nil
}

func (s *Service) ListHeldBills(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldBill, error) {
	if strings.TrimSpace(storeID) == "" {
		storeID = s.opts.DefaultStoreID
	}
	if limit < 1 {
		limit = 200
	}
	return s.held.ListHeldBills(ctx, storeID, strings.TrimSpace(terminalID), limit)
}

func (s *Service) GetHeldBill(ctx context.Context, id string) (domain.HeldBill, error) {
	held, err := s.held.GetHeldBill(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.HeldBill{}, err
	}
	return *held, nil
}

// ResumeHeldBill removes the held bill and reopens its snapshot as an active
// draft. Of two concurrent resumes only one gets the bill; the other sees
// store.ErrNotFound or store.ErrRevisionConflict.
func (s *Service) ResumeHeldBill(ctx context.Context, id string, expectedRevision int64) (domain.DraftResponse, error) {
	held, err := s.held.TakeHeldBill(ctx, strings.TrimSpace(id), expectedRevision)
	if err != nil {
		return domain.DraftResponse{}, err
	}

	phase, err := domain.PhaseHeld.Transition(domain.PhaseDraft)
	if err != nil {
		return domain.DraftResponse{}, err
	}
	b := draft.Restore(held.Draft)
	s.openDraft(b, phase)

	s.logAudit(ctx, held.StoreID, "bill_resume", "held_bill", held.ID, fmt.Sprintf("bill=%s,draft=%s", held.BillNumber, b.ID()))
	s.publish(ctx, domain.HeldBillEventResumed, *held)
	return s.draftResponse(b.Snapshot()), nil
}

// DeleteHeldBill discards a held bill. Deleting one that is already gone is
// not an error.
func (s *Service) DeleteHeldBill(ctx context.Context, id string, expectedRevision int64) error {
	id = strings.TrimSpace(id)
	held, err := s.held.GetHeldBill(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := domain.PhaseHeld.Transition(domain.PhaseDiscarded); err != nil {
		return err
	}
	if err := s.held.DeleteHeldBill(ctx, id, expectedRevision); err != nil {
		return err
	}

	s.logAudit(ctx, held.StoreID, "bill_delete", "held_bill", held.ID, "bill="+held.BillNumber)
	s.publish(ctx, domain.HeldBillEventDeleted, *held)
	return nil
}

func (s *Service) UpdateHeldBillNote(ctx context.Context, id string, req domain.HeldBillNoteRequest) (domain.HeldBill, error) {
	held, err := s.held.UpdateHeldBillNote(ctx, strings.TrimSpace(id), strings.TrimSpace(req.Note), req.Revision)
	if err != nil {
		return domain.HeldBill{}, err
	}

	s.logAudit(ctx, held.StoreID, "bill_note_update", "held_bill", held.ID, fmt.Sprintf("revision=%d", held.Revision))
	s.publish(ctx, domain.HeldBillEventUpdated, *held)
	return *held, nil
}

// SubscribeHeldBills streams held-bill changes for one store until ctx ends
// or cancel is called.
func (s *Service) SubscribeHeldBills(ctx context.Context, storeID string) (<-chan domain.HeldBillEvent, func(), error) {
	if strings.TrimSpace(storeID) == "" {
		storeID = s.opts.DefaultStoreID
	}
	return s.bus.Subscribe(ctx, storeID)
}
