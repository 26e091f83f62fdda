package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// StorageName is the per-user key holding the transaction list
const StorageName = "transactions"

// Manager owns one user's transactions. Every mutation is written through to the
// key-value store before it becomes visible.
type Manager struct {
	mu     sync.RWMutex
	items  []Transaction
	index  *searchIndex
	kv     storage.KV
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty manager persisting under users/{uid}/transactions
func NewManager(kv storage.KV, uid string, logger *slog.Logger) *Manager {
	index, err := newSearchIndex(nil)
	if err != nil {
		logger.Warn("search disabled", slog.Any("error", err))
	}
	return &Manager{
		index:  index,
		kv:     kv,
		key:    storage.UserKey(uid, StorageName),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the manager's time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Load replaces the in-memory state with what is persisted
func (m *Manager) Load(ctx context.Context) error {
	var items []Transaction
	if _, err := storage.GetJSON(ctx, m.kv, m.key, &items); err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.swap(items); err != nil {
		return err
	}
	m.logger.Debug("transactions loaded", slog.Int("count", len(items)))
	return nil
}

// Add validates and stores a transaction. When Installments > 1 the transaction
// is expanded into one record per month sharing a ParentID, and the first
// installment is returned.
func (m *Manager) Add(ctx context.Context, t Transaction) (Transaction, error) {
	created, err := m.prepare(t)
	if err != nil {
		return Transaction{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Transaction, 0, len(m.items)+len(created))
	next = append(next, m.items...)
	next = append(next, created...)
	if err := m.persist(ctx, next); err != nil {
		return Transaction{}, err
	}
	m.items = next
	if err := m.index.indexAll(created); err != nil {
		m.logger.Warn("failed to index transactions", slog.Any("error", err))
	}

	return created[0], nil
}

// prepare validates input and builds the records to store
func (m *Manager) prepare(t Transaction) ([]Transaction, error) {
	t.Description = strings.TrimSpace(t.Description)
	if t.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidTransaction)
	}
	if strings.TrimSpace(t.Category) == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidTransaction)
	}
	typ, ok := ParseType(string(t.Type))
	if !ok {
		return nil, fmt.Errorf("%w: type must be income or expense, got %q", ErrInvalidTransaction, t.Type)
	}
	if !t.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if t.Installments > maxInstallments {
		return nil, fmt.Errorf("%w: at most %d installments", ErrInvalidTransaction, maxInstallments)
	}

	now := m.now().UTC()
	t.ID = uuid.NewString()
	t.Type = typ
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Date.IsZero() {
		t.Date = now
	}
	t.Date = dateOnly(t.Date)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Installments < 1 {
		t.Installments = 1
	}
	t.InstallmentNumber = 1
	t.ParentID = ""
	if t.Status == "" {
		t.Status = StatusCompleted
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = defaultPaymentMethod
	}
	if t.Type == TypeIncome {
		t.IsPaid = true
	}

	if t.Installments == 1 {
		return []Transaction{t}, nil
	}

	n := t.Installments
	share := t.Amount.Div(decimal.NewFromInt(int64(n)))
	parentID := t.ID
	out := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		inst := t
		inst.ID = uuid.NewString()
		inst.Amount = share
		inst.InstallmentNumber = i + 1
		inst.ParentID = parentID
		inst.Date = t.Date.AddDate(0, i, 0)
		inst.Description = fmt.Sprintf("%s (%d/%d)", t.Description, i+1, n)
		inst.Tags = append([]string(nil), t.Tags...)
		if i > 0 {
			inst.IsPaid = false
		}
		out = append(out, inst)
	}
	return out, nil
}

// Update applies the non-nil fields of params to one transaction
func (m *Manager) Update(ctx context.Context, id string, params UpdateParams) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return Transaction{}, ErrNotFound
	}

	t := m.items[idx]
	if params.Description != nil {
		t.Description = strings.TrimSpace(*params.Description)
	}
	if params.Category != nil {
		t.Category = *params.Category
	}
	if params.Amount != nil {
		t.Amount = *params.Amount
	}
	if params.Type != nil {
		typ, ok := ParseType(string(*params.Type))
		if !ok {
			return Transaction{}, fmt.Errorf("%w: type must be income or expense", ErrInvalidTransaction)
		}
		t.Type = typ
	}
	if params.Date != nil {
		t.Date = dateOnly(*params.Date)
	}
	if params.Notes != nil {
		t.Notes = *params.Notes
	}
	if params.Tags != nil {
		t.Tags = params.Tags
	}
	if params.Status != nil {
		t.Status = *params.Status
	}
	if params.IsPaid != nil {
		t.IsPaid = *params.IsPaid
	}
	if params.PaymentMethod != nil {
		t.PaymentMethod = *params.PaymentMethod
	}

	if t.Description == "" || strings.TrimSpace(t.Category) == "" || !t.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: description, category and a positive amount are required", ErrInvalidTransaction)
	}
	t.UpdatedAt = m.now().UTC()

	next := append([]Transaction(nil), m.items...)
	next[idx] = t
	if err := m.persist(ctx, next); err != nil {
		return Transaction{}, err
	}
	m.items = next
	if err := m.index.indexAll([]Transaction{t}); err != nil {
		m.logger.Warn("failed to reindex transaction", slog.String("id", id), slog.Any("error", err))
	}
	return t, nil
}

// Remove deletes a transaction. Removing any installment removes its whole group.
func (m *Manager) Remove(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return 0, ErrNotFound
	}

	groupID := m.items[idx].ParentID
	if groupID == "" && m.hasInstallmentsLocked(id) {
		groupID = id
	}

	next := make([]Transaction, 0, len(m.items))
	var removed []string
	for _, t := range m.items {
		drop := t.ID == id
		if groupID != "" {
			drop = t.ID == groupID || t.ParentID == groupID
		}
		if drop {
			removed = append(removed, t.ID)
			continue
		}
		next = append(next, t)
	}

	if err := m.persist(ctx, next); err != nil {
		return 0, err
	}
	m.items = next
	if err := m.index.remove(removed...); err != nil {
		m.logger.Warn("failed to remove transactions from index", slog.Any("error", err))
	}
	return len(removed), nil
}

// FindByID returns a transaction by id
func (m *Manager) FindByID(id string) (Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx := m.indexOf(id); idx >= 0 {
		return m.items[idx], true
	}
	return Transaction{}, false
}

// GetAll returns a copy of every transaction in insertion order
func (m *Manager) GetAll() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transaction{}, m.items...)
}

// ByDateRange returns transactions dated within [start, end], both inclusive by day
func (m *Manager) ByDateRange(start, end time.Time) []Transaction {
	from, to := dateOnly(start), dateOnly(end)
	return m.filter(func(t Transaction) bool {
		return !t.Date.Before(from) && !t.Date.After(to)
	})
}

// ByCategory returns transactions in a category
func (m *Manager) ByCategory(category string) []Transaction {
	return m.filter(func(t Transaction) bool { return t.Category == category })
}

// ByType returns transactions of one type
func (m *Manager) ByType(typ Type) []Transaction {
	return m.filter(func(t Transaction) bool { return t.Type == typ })
}

// CurrentMonth returns transactions dated in the current calendar month
func (m *Manager) CurrentMonth() []Transaction {
	start, end := monthBounds(m.now())
	return m.ByDateRange(start, end)
}

// Search returns transactions whose description, notes or tags match text,
// most relevant first.
func (m *Manager) Search(text string) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.items) == 0 {
		return []Transaction{}, nil
	}

	ids, err := m.index.search(text, len(m.items))
	if err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		if idx := m.indexOf(id); idx >= 0 {
			out = append(out, m.items[idx])
		}
	}
	return out, nil
}

// Installments returns the installments of a group ordered by number
func (m *Manager) Installments(parentID string) []Transaction {
	out := m.filter(func(t Transaction) bool { return t.ParentID == parentID })
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out
}

// MarkInstallmentPaid sets the paid flag; marking paid completes a pending transaction
func (m *Manager) MarkInstallmentPaid(ctx context.Context, id string, paid bool) (Transaction, error) {
	status := (*Status)(nil)
	if t, ok := m.FindByID(id); ok && paid && t.Status == StatusPending {
		completed := StatusCompleted
		status = &completed
	}
	return m.Update(ctx, id, UpdateParams{IsPaid: &paid, Status: status})
}

// Pending returns unpaid or pending transactions
func (m *Manager) Pending() []Transaction {
	return m.filter(func(t Transaction) bool { return !t.IsPaid || t.Status == StatusPending })
}

// Upcoming returns unpaid transactions due within the next days, soonest first
func (m *Manager) Upcoming(days int) []Transaction {
	if days <= 0 {
		days = 7
	}
	today := dateOnly(m.now())
	until := today.AddDate(0, 0, days)

	out := m.filter(func(t Transaction) bool {
		return !t.IsPaid && !t.Date.Before(today) && !t.Date.After(until)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Clear removes every transaction
func (m *Manager) Clear(ctx context.Context) error {
	return m.ReplaceAll(ctx, nil)
}

// ReplaceAll swaps the whole collection, as done when restoring a backup or importing JSON
func (m *Manager) ReplaceAll(ctx context.Context, items []Transaction) error {
	if items == nil {
		items = []Transaction{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persist(ctx, items); err != nil {
		return err
	}
	return m.swap(items)
}

// exportEnvelope is the JSON export format
type exportEnvelope struct {
	Transactions []Transaction `json:"transactions"`
	ExportDate   time.Time     `json:"export_date"`
	Version      string        `json:"version"`
}

// ExportJSON serialises all transactions with export metadata
func (m *Manager) ExportJSON() ([]byte, error) {
	env := exportEnvelope{
		Transactions: m.GetAll(),
		ExportDate:   m.now().UTC(),
		Version:      "1.0",
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export transactions: %w", err)
	}
	return data, nil
}

// ImportJSON replaces all transactions with those of an export
func (m *Manager) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("failed to parse transaction export: %w", err)
	}
	if env.Transactions == nil {
		return 0, fmt.Errorf("%w: export contains no transactions list", ErrInvalidTransaction)
	}
	if err := m.ReplaceAll(ctx, env.Transactions); err != nil {
		return 0, err
	}
	return len(env.Transactions), nil
}

func (m *Manager) filter(keep func(Transaction) bool) []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transaction, 0)
	for _, t := range m.items {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (m *Manager) indexOf(id string) int {
	for i, t := range m.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) hasInstallmentsLocked(id string) bool {
	for _, t := range m.items {
		if t.ParentID == id {
			return true
		}
	}
	return false
}

func (m *Manager) persist(ctx context.Context, items []Transaction) error {
	if err := storage.PutJSON(ctx, m.kv, m.key, items); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}
	return nil
}

// swap installs items and rebuilds the search index; the caller holds the lock
func (m *Manager) swap(items []Transaction) error {
	index, err := newSearchIndex(items)
	if err != nil {
		return err
	}
	_ = m.index.close()
	m.items = items
	m.index = index
	return nil
}

func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}
