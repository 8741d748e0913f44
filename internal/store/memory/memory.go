package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"billease/backend/internal/domain"
	"billease/backend/internal/store"
	"billease/backend/internal/xid"
)

type Store struct {
	mu                  sync.RWMutex
	products            map[string]domain.Product
	sequences           map[string]int64
	transactionsByID    map[string]*domain.Transaction
	transactionsByInv   map[string]*domain.Transaction
	refundsByInvoice    map[string][]domain.RefundRecord
	heldBillsByID       map[string]domain.HeldBill
	heldBillIDByDraftID map[string]string
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
// If unset, dev defaults are used with a warning. PostgreSQL deployments
// never use these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with no products or users.
func New() *Store {
	return &Store{
		products:            make(map[string]domain.Product),
		sequences:           make(map[string]int64),
		transactionsByID:    make(map[string]*domain.Transaction),
		transactionsByInv:   make(map[string]*domain.Transaction),
		refundsByInvoice:    make(map[string][]domain.RefundRecord),
		heldBillsByID:       make(map[string]domain.HeldBill),
		heldBillIDByDraftID: make(map[string]string),
		auditLogs:           make([]domain.AuditLog, 0, 128),
		usersByUsername:     make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", PriceCents: 9800},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900},
		{SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", PriceCents: 12800},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", PriceCents: 7400},
	} {
		p.Active = true
		s.products[p.SKU] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrInvalidInput
	}

	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) NextSequence(_ context.Context, scope string) (int64, error) {
	if scope == "" {
		return 0, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[scope]++
	return s.sequences[scope], nil
}

func (s *Store) CreateHeldBill(_ context.Context, held domain.HeldBill) (*domain.HeldBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held.StoreID == "" || held.TerminalID == "" || held.Draft.ID == "" || len(held.Draft.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if existingID, ok := s.heldBillIDByDraftID[held.Draft.ID]; ok {
		existing := s.heldBillsByID[existingID].Clone()
		return &existing, nil
	}
	if held.ID == "" {
		held.ID = xid.New("held")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	held.Revision = 1

	s.heldBillsByID[held.ID] = held.Clone()
	s.heldBillIDByDraftID[held.Draft.ID] = held.ID
	saved := held.Clone()
	return &saved, nil
}

func (s *Store) GetHeldBill(_ context.Context, id string) (*domain.HeldBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held, exists := s.heldBillsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := held.Clone()
	return &result, nil
}

func (s *Store) ListHeldBills(_ context.Context, storeID string, terminalID string, limit int) ([]domain.HeldBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldBill, 0, len(s.heldBillsByID))
	for _, held := range s.heldBillsByID {
		if storeID != "" && held.StoreID != storeID {
			continue
		}
		if terminalID != "" && held.TerminalID != terminalID {
			continue
		}
		result = append(result, held.Clone())
	}
	slices.SortFunc(result, compareHeldBills)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) TakeHeldBill(_ context.Context, id string, expectedRevision int64) (*domain.HeldBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldBillsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
		return nil, err
	}
	s.removeHeldBillLocked(held)
	result := held.Clone()
	return &result, nil
}

func (s *Store) DeleteHeldBill(_ context.Context, id string, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldBillsByID[id]
	if !exists {
		return nil
	}
	if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
		return err
	}
	s.removeHeldBillLocked(held)
	return nil
}

func (s *Store) UpdateHeldBillNote(_ context.Context, id string, note string, expectedRevision int64) (*domain.HeldBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldBillsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := store.CheckRevision(held.Revision, expectedRevision); err != nil {
		return nil, err
	}
	held = held.Clone()
	held.Draft.Note = note
	held.Revision++
	s.heldBillsByID[id] = held
	result := held.Clone()
	return &result, nil
}

func (s *Store) removeHeldBillLocked(held domain.HeldBill) {
	delete(s.heldBillsByID, held.ID)
	if s.heldBillIDByDraftID[held.Draft.ID] == held.ID {
		delete(s.heldBillIDByDraftID, held.Draft.ID)
	}
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.InvoiceNumber == "" || tx.StoreID == "" || len(tx.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.transactionsByInv[tx.InvoiceNumber]; exists {
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

	saved := tx.Clone()
	s.transactionsByID[saved.ID] = &saved
	s.transactionsByInv[saved.InvoiceNumber] = &saved
	result := saved.Clone()
	return &result, nil
}

func (s *Store) FindTransactionByInvoice(_ context.Context, invoiceNumber string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByInv[invoiceNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := tx.Clone()
	return &result, nil
}

func (s *Store) ListTransactions(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if storeID != "" && tx.StoreID != storeID {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, tx.Clone())
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.InvoiceNumber, a.InvoiceNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.RefundRecord) (*domain.RefundRecord, domain.TransactionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByInv[refund.InvoiceNumber]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	status, err := domain.EvaluateReturn(*tx, s.returnedQtyLocked(refund.InvoiceNumber), refund.Lines)
	if err != nil {
		return nil, tx.Status, err
	}

	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	refund.TransactionID = tx.ID
	refund = refund.Clone()

	s.refundsByInvoice[refund.InvoiceNumber] = append(s.refundsByInvoice[refund.InvoiceNumber], refund)
	tx.Status = status
	tx.UpdatedAt = refund.CreatedAt

	result := refund.Clone()
	return &result, status, nil
}

func (s *Store) GetReturnedQtyByInvoice(_ context.Context, invoiceNumber string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQtyLocked(invoiceNumber), nil
}

func (s *Store) returnedQtyLocked(invoiceNumber string) map[string]int {
	result := map[string]int{}
	for _, refund := range s.refundsByInvoice[invoiceNumber] {
		for _, line := range refund.Lines {
			result[line.LineID] += line.Qty
		}
	}
	return result
}

func (s *Store) ListRefunds(_ context.Context, invoiceNumber string) ([]domain.RefundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refunds := s.refundsByInvoice[invoiceNumber]
	result := make([]domain.RefundRecord, 0, len(refunds))
	for _, refund := range refunds {
		result = append(result, refund.Clone())
	}
	return result, nil
}

func (s *Store) GetSalesSummary(_ context.Context, storeID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		StoreID:   storeID,
		ByPayment: make([]domain.SalesSummaryPayment, 0, 4),
	}
	byPayment := map[string]*domain.SalesSummaryPayment{}

	for _, tx := range s.transactionsByID {
		if tx.StoreID != storeID {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}

		summary.Transactions++
		summary.GrossSalesCents += tx.SubtotalCents
		summary.Discount = summary.Discount.Add(tx.Discount)
		summary.Tax = summary.Tax.Add(tx.Tax)
		summary.NetSalesCents += tx.TotalCents

		payment := byPayment[tx.PaymentMethod]
		if payment == nil {
			payment = &domain.SalesSummaryPayment{PaymentMethod: tx.PaymentMethod}
			byPayment[tx.PaymentMethod] = payment
		}
		payment.Transactions++
		payment.TotalCents += tx.TotalCents
	}

	for invoice, refunds := range s.refundsByInvoice {
		tx := s.transactionsByInv[invoice]
		if tx == nil || tx.StoreID != storeID {
			continue
		}
		for _, refund := range refunds {
			if refund.CreatedAt.Before(from) || !refund.CreatedAt.Before(to) {
				continue
			}
			summary.Refunds++
			summary.RefundedCents += refund.AmountCents
		}
	}

	for _, entry := range byPayment {
		summary.ByPayment = append(summary.ByPayment, *entry)
	}
	slices.SortFunc(summary.ByPayment, func(a, b domain.SalesSummaryPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})

	return summary, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// compareHeldBills orders newest first, breaking ties by id so listings are
// stable.
func compareHeldBills(a, b domain.HeldBill) int {
	if a.HeldAt.Equal(b.HeldAt) {
		return strings.Compare(b.ID, a.ID)
	}
	if a.HeldAt.After(b.HeldAt) {
		return -1
	}
	return 1
}
