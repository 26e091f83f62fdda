package cloudsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(storage.NewMemoryKV(), "u1", discard(), func() time.Time { return fixedNow })
	require.NoError(t, ws.Load(context.Background()))
	return ws
}

func seed(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	ctx := context.Background()
	_, err := ws.Transactions.Add(ctx, transactions.Transaction{
		Description: "Mercado", Category: "Alimentação", Amount: decimal.RequireFromString("123.45"), Type: transactions.TypeExpense,
	})
	require.NoError(t, err)
	_, err = ws.Transactions.Add(ctx, transactions.Transaction{
		Description: "Salário", Category: "Salário", Amount: decimal.NewFromInt(5000), Type: transactions.TypeIncome,
	})
	require.NoError(t, err)
	_, err = ws.Budgets.Add(ctx, budgets.Budget{Category: "Alimentação", Limit: decimal.NewFromInt(800)})
	require.NoError(t, err)
	_, err = ws.Goals.Add(ctx, goals.Goal{Title: "Viagem", Target: decimal.NewFromInt(8000)})
	require.NoError(t, err)
	_, err = ws.Categories.Add(ctx, categories.Category{Name: "Pets", Type: categories.TypeExpense})
	require.NoError(t, err)
}

func newSyncer(store docstore.Store) *Syncer {
	return NewSyncer(store, discard(), metrics.New()).WithClock(func() time.Time { return fixedNow })
}

func TestPush_WritesUserCollections(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	ws := newWorkspace(t)
	seed(t, ws)

	res, err := newSyncer(store).Push(ctx, ws)
	require.NoError(t, err)

	assert.Equal(t, DirectionPush, res.Direction)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, map[string]int{"transactions": 2, "budgets": 1, "goals": 1, "categories": 1}, res.Collections)
	assert.Equal(t, fixedNow, res.At)

	docs, err := store.Find(ctx, docstore.Query{Path: "users/u1/transactions"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	first := ws.Transactions.GetAll()[0]
	doc, err := store.Get(ctx, "users/u1/transactions", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mercado", doc.Data["description"])
	assert.Equal(t, "123.45", doc.Data["amount"])
}

func TestPush_RemovesRecordsDeletedLocally(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	ws := newWorkspace(t)
	seed(t, ws)
	s := newSyncer(store)

	_, err := s.Push(ctx, ws)
	require.NoError(t, err)

	removed := ws.Transactions.GetAll()[0]
	_, err = ws.Transactions.Remove(ctx, removed.ID)
	require.NoError(t, err)

	res, err := s.Push(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	_, err = store.Get(ctx, "users/u1/transactions", removed.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestPull_RestoresIntoEmptyWorkspace(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	source := newWorkspace(t)
	seed(t, source)
	s := newSyncer(store)

	_, err := s.Push(ctx, source)
	require.NoError(t, err)

	target := newWorkspace(t)
	res, err := s.Pull(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Added)

	summarize := func(txns []transactions.Transaction) map[string]string {
		out := make(map[string]string, len(txns))
		for _, tx := range txns {
			out[tx.ID] = tx.Description + " " + tx.Amount.String() + " " + tx.Date.Format(time.DateOnly)
		}
		return out
	}
	assert.Equal(t, summarize(source.Transactions.GetAll()), summarize(target.Transactions.GetAll()))
	require.Len(t, target.Goals.GetAll(), 1)
	assert.Equal(t, "Viagem", target.Goals.GetAll()[0].Title)
	require.Len(t, target.Categories.Custom(), 1)
	assert.Equal(t, "Pets", target.Categories.Custom()[0].Name)

	require.Len(t, target.Budgets.GetAll(), 1)
	assert.True(t, decimal.RequireFromString("123.45").Equal(target.Budgets.GetAll()[0].Spent), "budgets are refreshed after a pull")

	found, err := target.Transactions.Search("mercado")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestPull_KeepsLocalVersionAndSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	ws := newWorkspace(t)
	seed(t, ws)
	s := newSyncer(store)

	_, err := s.Push(ctx, ws)
	require.NoError(t, err)

	local := ws.Transactions.GetAll()[0]
	require.NoError(t, store.Set(ctx, "users/u1/transactions", local.ID, map[string]any{
		"id": local.ID, "description": "changed remotely", "amount": "1", "type": "expense", "category": "Geral",
	}))
	require.NoError(t, store.Set(ctx, "users/u1/goals", "broken", map[string]any{"target": []any{"not", "a", "number"}}))

	res, err := s.Pull(ctx, ws)
	require.NoError(t, err)
	assert.Zero(t, res.Added)

	got, ok := ws.Transactions.FindByID(local.ID)
	require.True(t, ok)
	assert.Equal(t, "Mercado", got.Description)
	assert.Len(t, ws.Transactions.GetAll(), 2)
	assert.Len(t, ws.Goals.GetAll(), 1)
}

type unreachableStore struct {
	docstore.Store
}

func (unreachableStore) Find(context.Context, docstore.Query) ([]docstore.Document, error) {
	return nil, errors.New("connection refused")
}

func (unreachableStore) Set(context.Context, string, string, map[string]any) error {
	return errors.New("connection refused")
}

func TestSync_StoreErrors(t *testing.T) {
	ws := newWorkspace(t)
	seed(t, ws)
	s := newSyncer(unreachableStore{})

	_, err := s.Push(context.Background(), ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push transactions")

	_, err = s.Pull(context.Background(), ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to pull transactions")
	assert.Len(t, ws.Transactions.GetAll(), 2)
}
