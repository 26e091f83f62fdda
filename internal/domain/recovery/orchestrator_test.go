package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// fakeManager records added items and fails on chosen call numbers (1-based)
type fakeManager[T any] struct {
	items  []T
	failOn map[int]bool
	calls  int
}

func (m *fakeManager[T]) Add(_ context.Context, item T) (T, error) {
	m.calls++
	if m.failOn[m.calls] {
		var zero T
		return zero, fmt.Errorf("write %d rejected", m.calls)
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *fakeManager[T]) GetAll() []T {
	return append([]T{}, m.items...)
}

func (m *fakeManager[T]) ReplaceAll(_ context.Context, items []T) error {
	m.items = append([]T{}, items...)
	return nil
}

type fakeTargets struct {
	txns  *fakeManager[transactions.Transaction]
	buds  *fakeManager[budgets.Budget]
	goals *fakeManager[goals.Goal]
	cats  *fakeManager[categories.Category]
}

func newFakeTargets() fakeTargets {
	return fakeTargets{
		txns:  &fakeManager[transactions.Transaction]{},
		buds:  &fakeManager[budgets.Budget]{},
		goals: &fakeManager[goals.Goal]{},
		cats:  &fakeManager[categories.Category]{},
	}
}

func (f fakeTargets) targets(withCategories bool) Targets {
	t := Targets{Transactions: f.txns, Budgets: f.buds, Goals: f.goals}
	if withCategories {
		t.Categories = f.cats
	}
	return t
}

func newTestOrchestrator(store docstore.Store, kv storage.KV, classifier Classifier) *Orchestrator {
	prober := NewProber(store, ProberConfig{}, testLogger(), nil)
	return NewOrchestrator(prober, classifier, kv, testLogger(), metrics.New()).
		WithClock(func() time.Time { return mapperNow })
}

// ============================================================================
// End to end
// ============================================================================

func TestOrchestrator_LegacyFinancasScenario(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/financas", "legacy-1", map[string]any{"name": "Rent", "valor": 1200, "data": "2024-03-01"})

	kv := storage.NewMemoryKV()
	txns := transactions.NewManager(kv, "u1", testLogger()).WithClock(func() time.Time { return mapperNow })
	buds := budgets.NewManager(kv, "u1", testLogger())
	gls := goals.NewManager(kv, "u1", testLogger())

	existing, err := txns.Add(ctx, transactions.Transaction{
		Description: "Mercado", Category: "alimentacao", Amount: decimal.NewFromInt(90), Type: transactions.TypeExpense,
	})
	require.NoError(t, err)

	o := newTestOrchestrator(store, kv, nil)
	report, err := o.Run(ctx, alice, Targets{Transactions: txns, Budgets: buds, Goals: gls})
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, report.State)
	assert.Equal(t, 1, report.TotalImported)
	require.Len(t, report.Collections, 1)
	cr := report.Collections[0]
	assert.Equal(t, "financas", cr.Collection)
	assert.Equal(t, finance.KindTransaction, cr.Classification.Kind)
	assert.Equal(t, 1, cr.Imported)
	assert.Empty(t, cr.Errors)

	all := txns.GetAll()
	require.Len(t, all, 2)
	got := all[1]
	assert.Equal(t, "Rent", got.Description)
	assert.True(t, decimal.NewFromInt(1200).Equal(got.Amount))
	assert.Equal(t, "Geral", got.Category)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, transactions.TypeIncome, got.Type)
	require.NotNil(t, got.Recovery)
	assert.Equal(t, "legacy-1", got.Recovery.OriginalID)
	assert.True(t, got.Recovery.TypeInferred)

	// The backup holds the state from before the import
	snap, err := NewRestorer(kv).Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, existing.ID, snap.Transactions[0].ID)
	assert.Equal(t, mapperNow, snap.Timestamp)
	assert.Equal(t, BackupKey("u1"), report.BackupKey)

	restored, err := NewRestorer(kv).Restore(ctx, "u1", RestoreTargets{Transactions: txns, Budgets: buds, Goals: gls})
	require.NoError(t, err)
	assert.Len(t, restored.Transactions, 1)
	assert.Len(t, txns.GetAll(), 1)
}

func TestOrchestrator_RequiresIdentity(t *testing.T) {
	o := newTestOrchestrator(docstore.NewMemoryStore(), storage.NewMemoryKV(), nil)
	f := newFakeTargets()

	_, err := o.Run(context.Background(), auth.Identity{}, f.targets(true))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = o.Import(context.Background(), auth.Identity{}, &ScanResult{}, f.targets(true))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOrchestrator_NoDataWritesNothing(t *testing.T) {
	kv := storage.NewMemoryKV()
	o := newTestOrchestrator(docstore.NewMemoryStore(), kv, nil)

	report, err := o.Run(context.Background(), alice, newFakeTargets().targets(true))
	require.NoError(t, err)
	assert.Equal(t, StateNoData, report.State)
	assert.Zero(t, report.TotalImported)
	assert.Empty(t, report.BackupKey)

	_, err = NewRestorer(kv).Load(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoBackup)
}

// ============================================================================
// Import policy
// ============================================================================

func TestOrchestrator_PartialFailureKeepsGoing(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	for i := 1; i <= 5; i++ {
		mustSet(t, store, "users/u1/expenses", fmt.Sprintf("e%d", i), map[string]any{"amount": -10 * i, "date": "2024-02-10"})
	}
	mustSet(t, store, "users/u1/metas", "g1", map[string]any{"titulo": "Casa", "objetivo": 100000})

	f := newFakeTargets()
	f.txns.failOn = map[int]bool{3: true}

	report, err := newTestOrchestrator(store, storage.NewMemoryKV(), nil).Run(ctx, alice, f.targets(true))
	require.NoError(t, err)

	assert.Equal(t, StatePartialSuccess, report.State)
	assert.Equal(t, 5, report.TotalImported)
	assert.Equal(t, 1, report.ErrorCount())

	byName := map[string]CollectionReport{}
	for _, c := range report.Collections {
		byName[c.Collection] = c
	}
	assert.Equal(t, 4, byName["expenses"].Imported)
	require.Len(t, byName["expenses"].Errors, 1)
	assert.Equal(t, "e3", byName["expenses"].Errors[0].OriginalID)
	assert.Contains(t, byName["expenses"].Errors[0].Message, "rejected")
	assert.Equal(t, 1, byName["metas"].Imported, "other collections are unaffected")

	for _, txn := range f.txns.items {
		assert.Equal(t, transactions.TypeExpense, txn.Type)
		assert.True(t, txn.Amount.IsPositive())
	}
}

func TestOrchestrator_SkipsRecordsAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	// t1 and b1 were pushed by cloud sync; legacy-t is an old record
	mustSet(t, store, "users/u1/transactions", "t1", map[string]any{"amount": "50", "date": "2024-03-01", "description": "Mercado"})
	mustSet(t, store, "users/u1/transactions", "legacy-t", map[string]any{"valor": -80, "data": "2024-01-05", "descricao": "Luz"})
	mustSet(t, store, "users/u1/budgets", "b1", map[string]any{"category": "Alimentação", "limit": "500"})

	f := newFakeTargets()
	f.txns.items = []transactions.Transaction{{ID: "t1", Description: "Mercado", Amount: decimal.NewFromInt(50)}}
	f.buds.items = []budgets.Budget{{ID: "b1", Category: "Alimentação", Limit: decimal.NewFromInt(500)}}

	report, err := newTestOrchestrator(store, storage.NewMemoryKV(), nil).Run(ctx, alice, f.targets(true))
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, report.State)
	assert.Equal(t, 1, report.TotalImported)
	assert.Zero(t, report.ErrorCount())

	byName := map[string]CollectionReport{}
	for _, c := range report.Collections {
		byName[c.Collection] = c
	}
	assert.Equal(t, 1, byName["transactions"].Imported)
	assert.Equal(t, 1, byName["transactions"].AlreadyPresent)
	assert.Equal(t, 0, byName["budgets"].Imported)
	assert.Equal(t, 1, byName["budgets"].AlreadyPresent)

	require.Len(t, f.txns.items, 2)
	assert.Equal(t, "Luz", f.txns.items[1].Description)
	assert.Len(t, f.buds.items, 1)
}

func TestOrchestrator_RealManagerRejectionsAreReported(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/transactions", "ok", map[string]any{"description": "Salário", "amount": 3000, "date": "2024-03-05", "type": "income"})
	mustSet(t, store, "users/u1/transactions", "zero", map[string]any{"description": "Vazio", "amount": 0, "date": "2024-03-05"})

	kv := storage.NewMemoryKV()
	txns := transactions.NewManager(kv, "u1", testLogger())
	report, err := newTestOrchestrator(store, kv, nil).Run(ctx, alice, Targets{
		Transactions: txns,
		Budgets:      budgets.NewManager(kv, "u1", testLogger()),
		Goals:        goals.NewManager(kv, "u1", testLogger()),
	})
	require.NoError(t, err)

	assert.Equal(t, StatePartialSuccess, report.State)
	assert.Equal(t, 1, report.TotalImported)
	require.Len(t, report.Collections[0].Errors, 1)
	assert.Equal(t, "zero", report.Collections[0].Errors[0].OriginalID)
	assert.Len(t, txns.GetAll(), 1)
}

func TestOrchestrator_OtherCollectionsAreNotImported(t *testing.T) {
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/usuarios", "p1", map[string]any{"foo": "bar", "theme": "dark"})

	f := newFakeTargets()
	report, err := newTestOrchestrator(store, storage.NewMemoryKV(), nil).Run(context.Background(), alice, f.targets(true))
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, report.State)
	require.Len(t, report.Collections, 1)
	assert.True(t, report.Collections[0].Skipped)
	assert.Equal(t, finance.KindOther, report.Collections[0].Classification.Kind)
	assert.Zero(t, f.txns.calls+f.buds.calls+f.goals.calls+f.cats.calls)
}

func TestOrchestrator_Categories(t *testing.T) {
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/categorias", "c1", map[string]any{"nome": "Pets", "icone": "🐶"})

	tests := []struct {
		name           string
		withCategories bool
		wantImported   int
		wantSkipped    bool
	}{
		{"imported with a category manager", true, 1, false},
		{"skipped without one", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTargets()
			report, err := newTestOrchestrator(store, storage.NewMemoryKV(), nil).Run(context.Background(), alice, f.targets(tt.withCategories))
			require.NoError(t, err)
			assert.Equal(t, tt.wantImported, report.TotalImported)
			assert.Equal(t, tt.wantSkipped, report.Collections[0].Skipped)
			if tt.withCategories {
				assert.Equal(t, "🐶", f.cats.items[0].Icon)
			}
		})
	}
}

// everythingIsAGoal replaces the rule classifier
type everythingIsAGoal struct{}

func (everythingIsAGoal) Classify([]string) Classification {
	return Classification{Kind: finance.KindGoal, Confidence: 0.3, Ambiguous: true}
}

func TestOrchestrator_PluggableClassifier(t *testing.T) {
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/financas", "x", map[string]any{"valor": 500, "data": "2024-01-01"})

	f := newFakeTargets()
	o := newTestOrchestrator(store, storage.NewMemoryKV(), everythingIsAGoal{})

	scan, err := o.Scan(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, finance.KindGoal, scan.Classifications["financas"].Kind)
	assert.True(t, scan.Classifications["financas"].Ambiguous)

	report, err := o.Import(context.Background(), alice, scan, f.targets(true))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalImported)
	require.Len(t, f.goals.items, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(f.goals.items[0].Target))
	assert.Empty(t, f.txns.items)
}

type failingPutKV struct {
	storage.KV
}

func (failingPutKV) Put(context.Context, string, []byte) error {
	return errors.New("read-only")
}

func TestOrchestrator_BackupFailureAbortsBeforeWriting(t *testing.T) {
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/financas", "x", map[string]any{"valor": 500, "data": "2024-01-01"})

	f := newFakeTargets()
	_, err := newTestOrchestrator(store, failingPutKV{storage.NewMemoryKV()}, nil).Run(context.Background(), alice, f.targets(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save recovery backup")
	assert.Zero(t, f.txns.calls)
}

// ============================================================================
// Session
// ============================================================================

func TestSession_StateMachine(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	mustSet(t, store, "users/u1/financas", "x", map[string]any{"valor": 500, "data": "2024-01-01"})
	f := newFakeTargets()

	s := NewSession(newTestOrchestrator(store, storage.NewMemoryKV(), nil), alice)
	assert.Equal(t, StateIdle, s.State())

	_, err := s.Import(ctx, f.targets(true))
	assert.ErrorIs(t, err, ErrInvalidState)

	scan, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, scan.Probe.Found)
	assert.Equal(t, StateReviewing, s.State())
	assert.Same(t, scan, s.LastScan())

	_, err = s.Scan(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	report, err := s.Import(ctx, f.targets(true))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, s.State())
	assert.True(t, s.State().Terminal())
	assert.Same(t, report, s.LastReport())

	_, err = s.Import(ctx, f.targets(true))
	assert.ErrorIs(t, err, ErrInvalidState, "no retry from a finished run")

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.LastReport())
}

func TestSession_NoDataAndUnauthenticated(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(docstore.NewMemoryStore(), storage.NewMemoryKV(), nil)

	s := NewSession(o, alice)
	_, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNoData, s.State())
	_, err = s.Import(ctx, newFakeTargets().targets(true))
	assert.ErrorIs(t, err, ErrInvalidState)

	anon := NewSession(o, auth.Identity{})
	_, err = anon.Scan(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, StateIdle, anon.State())
}
