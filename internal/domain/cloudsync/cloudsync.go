// Package cloudsync copies a workspace to and from the document store under
// users/{uid}/{collection}.
package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
)

const tracerName = "github.com/FACorreiaa/family-finance-tracker/internal/domain/cloudsync"

const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// Result counts the documents moved per collection
type Result struct {
	Direction   string         `json:"direction"`
	Collections map[string]int `json:"collections"`
	Total       int            `json:"total"`
	// Removed counts remote documents deleted by a push
	Removed int `json:"removed,omitempty"`
	// Added counts remote documents merged into the workspace by a pull
	Added int       `json:"added,omitempty"`
	At    time.Time `json:"at"`
}

// Syncer pushes and pulls workspaces
type Syncer struct {
	store   docstore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSyncer creates a syncer over store
func NewSyncer(store docstore.Store, logger *slog.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{store: store, logger: logger, metrics: m, now: time.Now}
}

// WithClock overrides the time source
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Push writes every local record to the store and removes remote records that
// no longer exist locally. Only custom categories are pushed.
func (s *Syncer) Push(ctx context.Context, ws *workspace.Workspace) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cloudsync.Push")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", ws.UserID))

	res := s.newResult(DirectionPush)
	steps := []func() error{
		func() error {
			return pushItems(ctx, s, res, ws.UserID, transactions.StorageName, ws.Transactions.GetAll(), transactionID)
		},
		func() error {
			return pushItems(ctx, s, res, ws.UserID, budgets.StorageName, ws.Budgets.GetAll(), budgetID)
		},
		func() error {
			return pushItems(ctx, s, res, ws.UserID, goals.StorageName, ws.Goals.GetAll(), goalID)
		},
		func() error {
			return pushItems(ctx, s, res, ws.UserID, categories.StorageName, ws.Categories.Custom(), categoryID)
		},
	}
	return s.finish(span, res, ws.UserID, steps)
}

// Pull reads the user's collections and merges them into the workspace by id:
// remote records missing locally are added, local records are kept as they are.
func (s *Syncer) Pull(ctx context.Context, ws *workspace.Workspace) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cloudsync.Pull")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", ws.UserID))

	res := s.newResult(DirectionPull)
	steps := []func() error{
		func() error {
			return pullItems(ctx, s, res, ws.UserID, transactions.StorageName, ws.Transactions.GetAll(), transactionID, ws.Transactions.ReplaceAll)
		},
		func() error {
			return pullItems(ctx, s, res, ws.UserID, budgets.StorageName, ws.Budgets.GetAll(), budgetID, ws.Budgets.ReplaceAll)
		},
		func() error {
			return pullItems(ctx, s, res, ws.UserID, goals.StorageName, ws.Goals.GetAll(), goalID, ws.Goals.ReplaceAll)
		},
		func() error {
			return pullItems(ctx, s, res, ws.UserID, categories.StorageName, ws.Categories.Custom(), categoryID, ws.Categories.ReplaceAll)
		},
	}
	res, err := s.finish(span, res, ws.UserID, steps)
	if err != nil {
		return nil, err
	}
	if _, err := ws.RefreshBudgets(ctx); err != nil {
		return nil, fmt.Errorf("failed to refresh budgets after pull: %w", err)
	}
	return res, nil
}

func (s *Syncer) newResult(direction string) *Result {
	return &Result{Direction: direction, Collections: make(map[string]int), At: s.now().UTC()}
}

func (s *Syncer) finish(span trace.Span, res *Result, uid string, steps []func() error) (*Result, error) {
	for _, step := range steps {
		if err := step(); err != nil {
			s.metrics.ObserveSync(res.Direction, res.Total, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, res.Direction+" failed")
			s.logger.Error("cloud sync failed",
				slog.String("user_id", uid),
				slog.String("direction", res.Direction),
				slog.Any("error", err),
			)
			return nil, err
		}
	}

	s.metrics.ObserveSync(res.Direction, res.Total, nil)
	span.SetAttributes(attribute.Int("documents", res.Total))
	s.logger.Info("cloud sync completed",
		slog.String("user_id", uid),
		slog.String("direction", res.Direction),
		slog.Int("documents", res.Total),
		slog.Int("removed", res.Removed),
		slog.Int("added", res.Added),
	)
	return res, nil
}

func pushItems[T any](ctx context.Context, s *Syncer, res *Result, uid, name string, items []T, id func(T) string) error {
	path := docstore.UserCollection(uid, name)

	local := make(map[string]bool, len(items))
	for _, item := range items {
		data, err := toDocument(item)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		key := id(item)
		if err := s.store.Set(ctx, path, key, data); err != nil {
			return fmt.Errorf("failed to push %s %s: %w", name, key, err)
		}
		local[key] = true
	}

	remote, err := s.store.Find(ctx, docstore.Query{Path: path})
	if err != nil {
		return fmt.Errorf("failed to list remote %s: %w", name, err)
	}
	for _, d := range remote {
		if local[d.ID] {
			continue
		}
		if err := s.store.Delete(ctx, path, d.ID); err != nil {
			return fmt.Errorf("failed to delete remote %s %s: %w", name, d.ID, err)
		}
		res.Removed++
	}

	res.Collections[name] = len(items)
	res.Total += len(items)
	return nil
}

func pullItems[T any](
	ctx context.Context,
	s *Syncer,
	res *Result,
	uid, name string,
	local []T,
	id func(T) string,
	replace func(context.Context, []T) error,
) error {
	docs, err := s.store.Find(ctx, docstore.Query{Path: docstore.UserCollection(uid, name)})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", name, err)
	}

	known := make(map[string]bool, len(local))
	for _, item := range local {
		known[id(item)] = true
	}

	added := make([]T, 0)
	for _, d := range docs {
		if known[d.ID] {
			continue
		}
		var item T
		if err := fromDocument(d.Data, &item); err != nil {
			s.logger.Warn("skipping undecodable remote document",
				slog.String("collection", name),
				slog.String("id", d.ID),
				slog.Any("error", err),
			)
			continue
		}
		added = append(added, item)
	}

	res.Collections[name] = len(docs)
	res.Total += len(docs)
	res.Added += len(added)
	if len(added) == 0 {
		return nil
	}

	sort.SliceStable(added, func(i, j int) bool { return id(added[i]) < id(added[j]) })
	if err := replace(ctx, append(local, added...)); err != nil {
		return fmt.Errorf("failed to merge %s: %w", name, err)
	}
	return nil
}

func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func fromDocument(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func transactionID(t transactions.Transaction) string { return t.ID }
func budgetID(b budgets.Budget) string               { return b.ID }
func goalID(g goals.Goal) string                     { return g.ID }
func categoryID(c categories.Category) string        { return c.ID }
