// Package goals manages savings goals and contributions towards them.
package goals

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
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// StorageName is the per-user key holding the goal list
const StorageName = "goals"

const (
	DefaultCategory = "Geral"
	DefaultTitle    = "Meta"
)

var (
	ErrNotFound    = errors.New("goal not found")
	ErrInvalidGoal = errors.New("invalid goal")
)

// Goal is a savings target. Current may exceed Target; progress is clamped only
// when reported.
type Goal struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Target      decimal.Decimal `json:"target"`
	Current     decimal.Decimal `json:"current"`
	TargetDate  *time.Time      `json:"target_date,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	Recovery *finance.Provenance `json:"recovery,omitempty"`
}

// Completed reports whether the target was reached
func (g Goal) Completed() bool {
	return g.Target.IsPositive() && g.Current.GreaterThanOrEqual(g.Target)
}

// Manager owns one user's goals
type Manager struct {
	mu     sync.RWMutex
	items  []Goal
	kv     storage.KV
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty manager persisting under users/{uid}/goals
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
	var items []Goal
	if _, err := storage.GetJSON(ctx, m.kv, m.key, &items); err != nil {
		return fmt.Errorf("failed to load goals: %w", err)
	}
	if items == nil {
		items = []Goal{}
	}

	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

// Add validates and stores a goal
func (m *Manager) Add(ctx context.Context, g Goal) (Goal, error) {
	if g.Target.IsNegative() || g.Current.IsNegative() {
		return Goal{}, fmt.Errorf("%w: amounts cannot be negative", ErrInvalidGoal)
	}
	g.Title = strings.TrimSpace(g.Title)
	if g.Title == "" {
		g.Title = DefaultTitle
	}
	if strings.TrimSpace(g.Category) == "" {
		g.Category = DefaultCategory
	}
	g.ID = uuid.NewString()
	g.CreatedAt = m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	next := append(append([]Goal{}, m.items...), g)
	if err := m.persist(ctx, next); err != nil {
		return Goal{}, err
	}
	m.items = next
	return g, nil
}

// GetAll returns a copy of every goal
func (m *Manager) GetAll() []Goal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Goal{}, m.items...)
}

// Get returns one goal
func (m *Manager) Get(id string) (Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.items {
		if g.ID == id {
			return g, nil
		}
	}
	return Goal{}, ErrNotFound
}

// Contribute adds amount to a goal's current value. The returned milestone is
// the highest threshold crossed by this contribution, if any.
func (m *Manager) Contribute(ctx context.Context, id string, amount decimal.Decimal) (Goal, *MilestoneReached, error) {
	if !amount.IsPositive() {
		return Goal{}, nil, fmt.Errorf("%w: contribution must be positive", ErrInvalidGoal)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID != id {
			continue
		}
		next := append([]Goal{}, m.items...)
		before := next[i].Current
		next[i].Current = before.Add(amount)
		if err := m.persist(ctx, next); err != nil {
			return Goal{}, nil, err
		}
		m.items = next
		return next[i], crossedMilestone(next[i].Target, before, next[i].Current), nil
	}
	return Goal{}, nil, ErrNotFound
}

// Delete removes a goal
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Goal, 0, len(m.items))
	for _, g := range m.items {
		if g.ID != id {
			next = append(next, g)
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

// ReplaceAll swaps the whole collection
func (m *Manager) ReplaceAll(ctx context.Context, items []Goal) error {
	if items == nil {
		items = []Goal{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persist(ctx, items); err != nil {
		return err
	}
	m.items = items
	return nil
}

func (m *Manager) persist(ctx context.Context, items []Goal) error {
	if err := storage.PutJSON(ctx, m.kv, m.key, items); err != nil {
		return fmt.Errorf("failed to save goals: %w", err)
	}
	m.logger.Debug("goals saved", slog.Int("count", len(items)))
	return nil
}
