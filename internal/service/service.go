package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billease/backend/internal/cache"
	"billease/backend/internal/domain"
	"billease/backend/internal/notify"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID string
	// TaxRatePercent is applied to the discounted subtotal of every bill.
	TaxRatePercent decimal.Decimal
	InvoicePrefix  string
	HoldPrefix     string
	// CacheTTL bounds how long a transaction stays in the lookup cache.
	CacheTTL time.Duration
	// DraftIdleTTL is how long a draft may go untouched before it is
	// discarded. Held bills are not affected.
	DraftIdleTTL time.Duration
	// Now replaces time.Now; tests use it to move the clock.
	Now func() time.Time
}

type Service struct {
	repo    store.Repository
	held    store.HeldBillStore
	bus     notify.Bus
	txCache cache.TransactionCache
	opts    Options

	draftsMu      sync.Mutex
	drafts        map[string]*draftSession
	draftsSweptAt time.Time
}

// New wires the service. held, bus and txCache may be nil: held bills then
// live in repo, events are dropped and lookups are not cached.
func New(repo store.Repository, held store.HeldBillStore, bus notify.Bus, txCache cache.TransactionCache, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.InvoicePrefix == "" {
		opts.InvoicePrefix = "INV"
	}
	if opts.HoldPrefix == "" {
		opts.HoldPrefix = "HOLD"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.DraftIdleTTL <= 0 {
		opts.DraftIdleTTL = 12 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if held == nil {
		held = repo
	}
	if bus == nil {
		bus = notify.NoopBus{}
	}
	if txCache == nil {
		txCache = cache.NoopTransactionCache{}
	}

	return &Service{
		repo:    repo,
		held:    held,
		bus:     bus,
		txCache: txCache,
		opts:    opts,
		drafts:  make(map[string]*draftSession),
	}
}

func (s *Service) DefaultStoreID() string {
	return s.opts.DefaultStoreID
}

func (s *Service) TaxRatePercent() decimal.Decimal {
	return s.opts.TaxRatePercent
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	product := domain.Product{
		SKU:        strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:       strings.TrimSpace(req.Name),
		Category:   strings.TrimSpace(req.Category),
		PriceCents: req.PriceCents,
		Active:     true,
	}
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, s.opts.DefaultStoreID, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.opts.DefaultStoreID
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.opts.DefaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, held domain.HeldBill) {
	actor, _ := ActorFromContext(ctx)
	event := domain.HeldBillEvent{
		Type:       kind,
		StoreID:    held.StoreID,
		TerminalID: held.TerminalID,
		HeldBillID: held.ID,
		BillNumber: held.BillNumber,
		Revision:   held.Revision,
		Actor:      actor.Username,
		At:         time.Now().UTC(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("[held-bills] WARN: failed to publish %s event for %s: %v", kind, held.ID, err)
	}
}

func (s *Service) nextNumber(ctx context.Context, scope string, prefix string) (string, error) {
	seq, err := s.repo.NextSequence(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", scope, err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet":
		return true
	default:
		return false
	}
}

// dayRange parses inclusive YYYY-MM-DD bounds into a half-open UTC range.
// Empty bounds default to today.
func dayRange(from string, to string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	start := today
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(from))
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		start = parsed.UTC()
	}
	end := start
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(to))
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		end = parsed.UTC()
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, store.ErrInvalidInput
	}
	return start, end.Add(24 * time.Hour), nil
}
