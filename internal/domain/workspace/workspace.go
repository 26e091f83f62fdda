// Package workspace bundles one user's data managers and caches them per user.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// Workspace is the set of managers owning one user's data
type Workspace struct {
	UserID       string
	Transactions *transactions.Manager
	Budgets      *budgets.Manager
	Goals        *goals.Manager
	Categories   *categories.Manager
}

// New creates the managers for uid without loading them
func New(kv storage.KV, uid string, logger *slog.Logger, now func() time.Time) *Workspace {
	logger = logger.With(slog.String("user_id", uid))
	return &Workspace{
		UserID:       uid,
		Transactions: transactions.NewManager(kv, uid, logger).WithClock(now),
		Budgets:      budgets.NewManager(kv, uid, logger).WithClock(now),
		Goals:        goals.NewManager(kv, uid, logger).WithClock(now),
		Categories:   categories.NewManager(kv, uid, logger),
	}
}

// Load reads every manager's persisted state
func (w *Workspace) Load(ctx context.Context) error {
	loaders := []struct {
		name string
		load func(context.Context) error
	}{
		{transactions.StorageName, w.Transactions.Load},
		{budgets.StorageName, w.Budgets.Load},
		{goals.StorageName, w.Goals.Load},
		{categories.StorageName, w.Categories.Load},
	}
	for _, l := range loaders {
		if err := l.load(ctx); err != nil {
			return fmt.Errorf("failed to load workspace %s: %w", l.name, err)
		}
	}
	return nil
}

// RefreshBudgets recomputes budget spending from the current transactions
func (w *Workspace) RefreshBudgets(ctx context.Context) ([]budgets.Budget, error) {
	return w.Budgets.RecomputeSpent(ctx, w.Transactions.GetAll())
}

// Registry loads workspaces on first use and keeps them for the process lifetime
type Registry struct {
	mu     sync.Mutex
	kv     storage.KV
	logger *slog.Logger
	now    func() time.Time
	cache  map[string]*Workspace
}

// NewRegistry creates an empty registry
func NewRegistry(kv storage.KV, logger *slog.Logger) *Registry {
	return &Registry{
		kv:     kv,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]*Workspace),
	}
}

// WithClock overrides the clock handed to new workspaces
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Get returns the user's workspace, loading it from storage the first time
func (r *Registry) Get(ctx context.Context, uid string) (*Workspace, error) {
	if uid == "" {
		return nil, fmt.Errorf("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.cache[uid]; ok {
		return ws, nil
	}

	ws := New(r.kv, uid, r.logger, r.now)
	if err := ws.Load(ctx); err != nil {
		return nil, err
	}
	r.cache[uid] = ws
	r.logger.Info("workspace loaded",
		slog.String("user_id", uid),
		slog.Int("transactions", len(ws.Transactions.GetAll())),
	)
	return ws, nil
}

// Loaded returns the workspaces currently in memory ordered by user id
func (r *Registry) Loaded() []*Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Workspace, 0, len(r.cache))
	for _, ws := range r.cache {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Evict drops a cached workspace so the next Get reloads it
func (r *Registry) Evict(uid string) {
	r.mu.Lock()
	delete(r.cache, uid)
	r.mu.Unlock()
}
