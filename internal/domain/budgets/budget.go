// Package budgets manages spending limits per category and month.
package budgets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// StorageName is the per-user key holding the budget list
const StorageName = "budgets"

const (
	PeriodMonthly   = "monthly"
	defaultCategory = "Geral"
)

var (
	ErrNotFound      = errors.New("budget not found")
	ErrInvalidBudget = errors.New("invalid budget")
)

// Budget is a spending limit for a category in one month. Spent is derived
// from expense transactions and recomputed on demand.
type Budget struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Limit     decimal.Decimal `json:"limit"`
	Spent     decimal.Decimal `json:"spent"`
	Month     int             `json:"month"`
	Year      int             `json:"year"`
	Period    string          `json:"period"`
	CreatedAt time.Time       `json:"created_at"`

	Recovery *finance.Provenance `json:"recovery,omitempty"`
}

// Remaining is the limit minus what was spent, possibly negative
func (b Budget) Remaining() decimal.Decimal {
	return b.Limit.Sub(b.Spent)
}

// Usage is spent/limit; zero when there is no limit
func (b Budget) Usage() decimal.Decimal {
	if !b.Limit.IsPositive() {
		return decimal.Zero
	}
	return b.Spent.Div(b.Limit)
}

// Exceeded reports whether spending went over the limit
func (b Budget) Exceeded() bool {
	return b.Spent.GreaterThan(b.Limit)
}

// Manager owns one user's budgets
type Manager struct {
	mu     sync.RWMutex
	items  []Budget
	kv     storage.KV
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty manager persisting under users/{uid}/budgets
func NewManager(kv storage.KV, uid string, logger *slog.Logger) *Manager {
	return &Manager{
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
	var items []Budget
	if _, err := storage.GetJSON(ctx, m.kv, m.key, &items); err != nil {
		return fmt.Errorf("failed to load budgets: %w", err)
	}
	if items == nil {
		items = []Budget{}
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

// Add validates and stores a budget, defaulting month and year to the current ones
func (m *Manager) Add(ctx context.Context, b Budget) (Budget, error) {
	if b.Limit.IsNegative() {
		return Budget{}, fmt.Errorf("%w: limit cannot be negative", ErrInvalidBudget)
	}
	b.Category = strings.TrimSpace(b.Category)
	if b.Category == "" {
		b.Category = defaultCategory
	}

	now := m.now().UTC()
	if b.Month == 0 {
		b.Month = int(now.Month())
	}
	if b.Month < 1 || b.Month > 12 {
		return Budget{}, fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidBudget)
	}
	if b.Year == 0 {
		b.Year = now.Year()
	}
	if b.Name == "" {
		b.Name = b.Category
	}
	if b.Period == "" {
		b.Period = PeriodMonthly
	}
	b.ID = uuid.NewString()
	b.CreatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()

	next := append(append([]Budget{}, m.items...), b)
	if err := m.persist(ctx, next); err != nil {
		return Budget{}, err
	}
	m.items = next
	return b, nil
}

// GetAll returns a copy of every budget
func (m *Manager) GetAll() []Budget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Budget{}, m.items...)
}

// ForMonth returns the budgets of one month
func (m *Manager) ForMonth(year int, month time.Month) []Budget {
	out := make([]Budget, 0)
	for _, b := range m.GetAll() {
		if b.Year == year && b.Month == int(month) {
			out = append(out, b)
		}
	}
	return out
}

// UpdateLimit changes a budget's limit
func (m *Manager) UpdateLimit(ctx context.Context, id string, limit decimal.Decimal) (Budget, error) {
	if limit.IsNegative() {
		return Budget{}, fmt.Errorf("%w: limit cannot be negative", ErrInvalidBudget)
	}
	return m.modify(ctx, id, func(b *Budget) { b.Limit = limit })
}

// Delete removes a budget
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Budget, 0, len(m.items))
	for _, b := range m.items {
		if b.ID != id {
			next = append(next, b)
		}
	}
	if len(next) == len(m.items) {
		return ErrNotFound
	}
	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.items = next
	return nil
}

// RecomputeSpent sets each budget's Spent to the sum of expenses in its
// category and month. Budgets that did not change are not rewritten.
func (m *Manager) RecomputeSpent(ctx context.Context, txns []transactions.Transaction) ([]Budget, error) {
	type bucket struct {
		category    string
		year, month int
	}
	spent := make(map[bucket]decimal.Decimal)
	for _, t := range txns {
		if t.Type != transactions.TypeExpense || t.Status == transactions.StatusCancelled {
			continue
		}
		k := bucket{t.Category, t.Date.Year(), int(t.Date.Month())}
		spent[k] = spent[k].Add(t.Amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := append([]Budget{}, m.items...)
	changed := false
	for i := range next {
		s := spent[bucket{next[i].Category, next[i].Year, next[i].Month}]
		if !s.Equal(next[i].Spent) {
			next[i].Spent = s
			changed = true
		}
	}
	if changed {
		if err := m.persist(ctx, next); err != nil {
			return nil, err
		}
		m.items = next
	}
	return append([]Budget{}, next...), nil
}

// ReplaceAll swaps the whole collection
func (m *Manager) ReplaceAll(ctx context.Context, items []Budget) error {
	if items == nil {
		items = []Budget{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persist(ctx, items); err != nil {
		return err
	}
	m.items = items
	return nil
}

func (m *Manager) modify(ctx context.Context, id string, apply func(*Budget)) (Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID != id {
			continue
		}
		next := append([]Budget{}, m.items...)
		apply(&next[i])
		if err := m.persist(ctx, next); err != nil {
			return Budget{}, err
		}
		m.items = next
		return next[i], nil
	}
	return Budget{}, ErrNotFound
}

func (m *Manager) persist(ctx context.Context, items []Budget) error {
	if err := storage.PutJSON(ctx, m.kv, m.key, items); err != nil {
		return fmt.Errorf("failed to save budgets: %w", err)
	}
	m.logger.Debug("budgets saved", slog.Int("count", len(items)))
	return nil
}
