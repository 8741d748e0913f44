package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"billease/backend/internal/domain"
	"billease/backend/internal/draft"
	"billease/backend/internal/store"
)

// draftSession is one active sale. Its mutex serializes every edit, so the
// builder only ever sees a single writer.
type draftSession struct {
	mu          sync.Mutex
	builder     *draft.Builder
	phase       domain.BillPhase
	lastTouched time.Time
}

// openDraft registers b as an active draft in the given phase.
func (s *Service) openDraft(b *draft.Builder, phase domain.BillPhase) {
	now := s.opts.Now()
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	s.sweepDraftsLocked(now)
	s.drafts[b.ID()] = &draftSession{builder: b, phase: phase, lastTouched: now}
}

// sweepDraftsLocked discards drafts idle for longer than DraftIdleTTL, at
// most once per DraftIdleTTL. Sessions busy with an edit are skipped.
func (s *Service) sweepDraftsLocked(now time.Time) {
	if now.Sub(s.draftsSweptAt) < s.opts.DraftIdleTTL {
		return
	}
	for id, sess := range s.drafts {
		if !sess.mu.TryLock() {
			continue
		}
		if now.Sub(sess.lastTouched) > s.opts.DraftIdleTTL {
			if next, err := sess.phase.Transition(domain.PhaseDiscarded); err == nil {
				sess.phase = next
			}
			delete(s.drafts, id)
			log.Printf("[service] draft %s idle since %s, discarded", id, sess.lastTouched.Format(time.RFC3339))
		}
		sess.mu.Unlock()
	}
	s.draftsSweptAt = now
}

// lockDraft returns the session for id with its mutex held.
func (s *Service) lockDraft(id string) (*draftSession, error) {
	now := s.opts.Now()
	s.draftsMu.Lock()
	s.sweepDraftsLocked(now)
	sess, ok := s.drafts[strings.TrimSpace(id)]
	s.draftsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: draft %s", store.ErrNotFound, id)
	}
	sess.mu.Lock()
	if sess.phase != domain.PhaseDraft {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: draft %s", store.ErrNotFound, id)
	}
	sess.lastTouched = now
	return sess, nil
}

// closeDraftLocked moves a locked session out of the draft phase and forgets
// it. The caller still holds sess.mu.
func (s *Service) closeDraftLocked(sess *draftSession, to domain.BillPhase) error {
	next, err := sess.phase.Transition(to)
	if err != nil {
		return err
	}
	sess.phase = next
	s.draftsMu.Lock()
	if s.drafts[sess.builder.ID()] == sess {
		delete(s.drafts, sess.builder.ID())
	}
	s.draftsMu.Unlock()
	return nil
}

func (s *Service) draftResponse(snap domain.DraftSnapshot) domain.DraftResponse {
	return domain.DraftResponse{Draft: snap, Totals: PriceDraft(snap, s.opts.TaxRatePercent)}
}

func (s *Service) editDraft(id string, edit func(b *draft.Builder) error) (domain.DraftResponse, error) {
	sess, err := s.lockDraft(id)
	if err != nil {
		return domain.DraftResponse{}, err
	}
	defer sess.mu.Unlock()

	if err := edit(sess.builder); err != nil {
		return domain.DraftResponse{}, err
	}
	return s.draftResponse(sess.builder.Snapshot()), nil
}

func (s *Service) StartDraft(ctx context.Context, req domain.DraftCreateRequest) (domain.DraftResponse, error) {
	if strings.TrimSpace(req.StoreID) == "" {
		req.StoreID = s.opts.DefaultStoreID
	}
	if strings.TrimSpace(req.TerminalID) == "" {
		return domain.DraftResponse{}, fmt.Errorf("%w: terminal_id is required", store.ErrInvalidInput)
	}

	b := draft.New(req.StoreID, req.TerminalID)
	b.SetCustomer(req.CustomerRef)
	s.openDraft(b, domain.PhaseDraft)
	return s.draftResponse(b.Snapshot()), nil
}

func (s *Service) GetDraft(_ context.Context, id string) (domain.DraftResponse, error) {
	return s.editDraft(id, func(*draft.Builder) error { return nil })
}

func (s *Service) AddDraftItem(ctx context.Context, id string, req domain.DraftItemRequest) (domain.DraftResponse, error) {
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return domain.DraftResponse{}, fmt.Errorf("%w: sku is required", store.ErrInvalidInput)
	}
	if req.Qty < 1 {
		return domain.DraftResponse{}, domain.ErrInvalidQuantity
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.DraftResponse{}, err
	}
	if !product.Active {
		return domain.DraftResponse{}, fmt.Errorf("%w: product %s is inactive", store.ErrInvalidInput, sku)
	}

	return s.editDraft(id, func(b *draft.Builder) error {
		_, err := b.AddItem(*product, req.Qty)
		return err
	})
}

// UpdateDraftLine sets a line's quantity; zero or less removes it.
func (s *Service) UpdateDraftLine(_ context.Context, id string, lineID string, req domain.DraftLineUpdateRequest) (domain.DraftResponse, error) {
	return s.editDraft(id, func(b *draft.Builder) error {
		return b.UpdateQuantity(strings.TrimSpace(lineID), req.Qty)
	})
}

func (s *Service) ApplyDraftDiscount(_ context.Context, id string, req domain.DraftDiscountRequest) (domain.DraftResponse, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	return s.editDraft(id, func(b *draft.Builder) error {
		if kind == domain.DiscountNone || kind == "none" {
			b.ClearDiscount()
			return nil
		}
		return b.ApplyDiscount(kind, req.Value)
	})
}

func (s *Service) SetDraftDetails(_ context.Context, id string, req domain.DraftDetailsRequest) (domain.DraftResponse, error) {
	return s.editDraft(id, func(b *draft.Builder) error {
		if req.CustomerRef != nil {
			b.SetCustomer(*req.CustomerRef)
		}
		if req.Note != nil {
			b.SetNote(*req.Note)
		}
		return nil
	})
}

// CancelDraft discards an active draft.
func (s *Service) CancelDraft(ctx context.Context, id string) error {
	sess, err := s.lockDraft(id)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	snap := sess.builder.Snapshot()
	if err := s.closeDraftLocked(sess, domain.PhaseDiscarded); err != nil {
		return err
	}

	s.logAudit(ctx, snap.StoreID, "draft_cancel", "draft", snap.ID, fmt.Sprintf("lines=%d", len(snap.Lines)))
	return nil
}
