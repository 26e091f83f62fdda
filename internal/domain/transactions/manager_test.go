package transactions

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

	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, storage.KV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(kv, "u1", logger).WithClock(func() time.Time { return fixedNow })
	require.NoError(t, m.Load(context.Background()))
	return m, kv
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func expense(desc, category, amount string, date time.Time) Transaction {
	return Transaction{
		Description: desc,
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
		Type:        TypeExpense,
		Date:        date,
		IsPaid:      true,
	}
}

type failingKV struct {
	storage.KV
}

func (failingKV) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

// ============================================================================
// Add
// ============================================================================

func TestManager_AddAppliesDefaults(t *testing.T) {
	m, _ := newTestManager(t)

	got, err := m.Add(context.Background(), Transaction{
		Description: "  Mercado  ",
		Category:    "alimentacao",
		Amount:      decimal.NewFromInt(120),
		Type:        "despesa",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Mercado", got.Description)
	assert.Equal(t, TypeExpense, got.Type)
	assert.Equal(t, day(2024, 3, 15), got.Date)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "money", got.PaymentMethod)
	assert.Equal(t, 1, got.Installments)
	assert.Equal(t, 1, got.InstallmentNumber)
	assert.Equal(t, []string{}, got.Tags)
	assert.False(t, got.IsPaid)
	assert.Equal(t, fixedNow, got.CreatedAt)
}

func TestManager_AddIncomeIsPaid(t *testing.T) {
	m, _ := newTestManager(t)

	got, err := m.Add(context.Background(), Transaction{
		Description: "Salário",
		Category:    "salario",
		Amount:      decimal.NewFromInt(5000),
		Type:        TypeIncome,
	})
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
}

func TestManager_AddValidation(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name string
		txn  Transaction
	}{
		{"missing description", Transaction{Category: "lazer", Amount: decimal.NewFromInt(1), Type: TypeExpense}},
		{"missing category", Transaction{Description: "Cinema", Amount: decimal.NewFromInt(1), Type: TypeExpense}},
		{"zero amount", Transaction{Description: "Cinema", Category: "lazer", Type: TypeExpense}},
		{"negative amount", Transaction{Description: "Cinema", Category: "lazer", Amount: decimal.NewFromInt(-5), Type: TypeExpense}},
		{"unknown type", Transaction{Description: "Cinema", Category: "lazer", Amount: decimal.NewFromInt(1), Type: "transfer"}},
		{"too many installments", Transaction{Description: "Carro", Category: "transporte", Amount: decimal.NewFromInt(1), Type: TypeExpense, Installments: 61}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Add(context.Background(), tt.txn)
			assert.ErrorIs(t, err, ErrInvalidTransaction)
		})
	}
	assert.Empty(t, m.GetAll())
}

func TestManager_AddInstallments(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Add(context.Background(), Transaction{
		Description:  "Notebook",
		Category:     "tecnologia",
		Amount:       decimal.NewFromInt(3000),
		Type:         TypeExpense,
		Date:         day(2024, 1, 31),
		Installments: 3,
		IsPaid:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Notebook (1/3)", first.Description)
	assert.True(t, first.IsInstallment())

	group := m.Installments(first.ParentID)
	require.Len(t, group, 3)
	for i, inst := range group {
		assert.Equal(t, i+1, inst.InstallmentNumber)
		assert.Equal(t, first.ParentID, inst.ParentID)
		assert.True(t, decimal.NewFromInt(1000).Equal(inst.Amount))
		assert.Equal(t, 3, inst.Installments)
		assert.Equal(t, i == 0, inst.IsPaid, "only the first installment keeps the paid flag")
	}
	assert.Equal(t, day(2024, 1, 31), group[0].Date)
	assert.Equal(t, day(2024, 1, 31).AddDate(0, 1, 0), group[1].Date)
	assert.Equal(t, "Notebook (3/3)", group[2].Description)
}

func TestManager_AddPersistFailureLeavesStateUnchanged(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(failingKV{storage.NewMemoryKV()}, "u1", logger)

	_, err := m.Add(context.Background(), expense("Cinema", "lazer", "30", day(2024, 3, 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save transactions")
	assert.Empty(t, m.GetAll())
}

func TestManager_PersistsAcrossLoad(t *testing.T) {
	m, kv := newTestManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, expense("Aluguel", "moradia", "1200", day(2024, 3, 1)))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reloaded := NewManager(kv, "u1", logger)
	require.NoError(t, reloaded.Load(ctx))

	all := reloaded.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "Aluguel", all[0].Description)
	assert.True(t, decimal.NewFromInt(1200).Equal(all[0].Amount))

	found, err := reloaded.Search("aluguel")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

// ============================================================================
// Update and Remove
// ============================================================================

func TestManager_Update(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.Add(ctx, expense("Cinema", "lazer", "30", day(2024, 3, 1)))
	require.NoError(t, err)

	desc := "Cinema com amigos"
	amount := decimal.NewFromInt(45)
	updated, err := m.Update(ctx, created.ID, UpdateParams{Description: &desc, Amount: &amount, Tags: []string{"social"}})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.True(t, amount.Equal(updated.Amount))
	assert.Equal(t, []string{"social"}, updated.Tags)
	assert.Equal(t, "lazer", updated.Category)

	_, err = m.Update(ctx, "missing", UpdateParams{Description: &desc})
	assert.ErrorIs(t, err, ErrNotFound)

	zero := decimal.Zero
	_, err = m.Update(ctx, created.ID, UpdateParams{Amount: &zero})
	assert.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestManager_RemoveInstallmentRemovesGroup(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Add(ctx, Transaction{
		Description: "Sofá", Category: "moradia", Amount: decimal.NewFromInt(900),
		Type: TypeExpense, Installments: 3,
	})
	require.NoError(t, err)
	single, err := m.Add(ctx, expense("Pão", "alimentacao", "8", day(2024, 3, 10)))
	require.NoError(t, err)

	second := m.Installments(first.ParentID)[1]
	removed, err := m.Remove(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	all := m.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, single.ID, all[0].ID)

	_, err = m.Remove(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err = m.Remove(ctx, single.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

// ============================================================================
// Queries
// ============================================================================

func seed(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()
	for _, txn := range []Transaction{
		expense("Uber para o trabalho", "transporte", "25.50", day(2024, 3, 14)),
		expense("Supermercado", "alimentacao", "310", day(2024, 3, 2)),
		expense("Restaurante", "alimentacao", "90", day(2024, 2, 20)),
		{Description: "Salário", Category: "salario", Amount: decimal.NewFromInt(5000), Type: TypeIncome, Date: day(2024, 3, 5)},
		{Description: "Freelance site", Category: "freelance", Amount: decimal.NewFromInt(800), Type: TypeIncome, Date: day(2023, 12, 10), Notes: "cliente antigo"},
	} {
		_, err := m.Add(ctx, txn)
		require.NoError(t, err)
	}
}

func TestManager_Queries(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m)

	assert.Len(t, m.ByDateRange(day(2024, 3, 2), day(2024, 3, 14)), 3, "range is inclusive on both ends")
	assert.Len(t, m.ByCategory("alimentacao"), 2)
	assert.Len(t, m.ByType(TypeIncome), 2)
	assert.Len(t, m.CurrentMonth(), 3)
}

func TestManager_Search(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m)

	tests := []struct {
		query string
		want  []string
	}{
		{"uber", []string{"Uber para o trabalho"}},
		{"super", []string{"Supermercado"}},
		{"restaurnte", []string{"Restaurante"}},
		{"cliente", []string{"Freelance site"}},
		{"inexistente", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := m.Search(tt.query)
			require.NoError(t, err)

			descs := make([]string, 0, len(got))
			for _, txn := range got {
				descs = append(descs, txn.Description)
			}
			assert.Equal(t, tt.want, descs)
		})
	}
}

func TestManager_Totals(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m)

	totals := m.Totals()
	assert.True(t, decimal.NewFromInt(5800).Equal(totals.Income))
	assert.True(t, decimal.RequireFromString("425.50").Equal(totals.Expense))
	assert.True(t, decimal.RequireFromString("5374.50").Equal(totals.Balance))

	byCategory := m.TotalsByCategory(TypeExpense)
	require.Len(t, byCategory, 2)
	assert.Equal(t, "alimentacao", byCategory[0].Category)
	assert.Equal(t, 2, byCategory[0].Count)
	assert.True(t, decimal.NewFromInt(400).Equal(byCategory[0].Total))
}

func TestManager_QuickStats(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m)

	tests := []struct {
		period    Period
		wantCount int
		wantAvg   string
	}{
		{PeriodWeek, 1, "25.5"},
		{PeriodMonth, 3, "1778.5"},
		{PeriodYear, 4, "1356.375"},
		{PeriodAll, 5, "1245.1"},
		{"unknown", 5, "1245.1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			stats := m.QuickStats(tt.period)
			assert.Equal(t, tt.wantCount, stats.TotalTransactions)
			assert.True(t, decimal.RequireFromString(tt.wantAvg).Equal(stats.AverageTransaction), "avg %s", stats.AverageTransaction)
			assert.Zero(t, stats.PendingTransactions)
		})
	}
}

// ============================================================================
// Payment state
// ============================================================================

func TestManager_PendingAndUpcoming(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Add(ctx, Transaction{
		Description: "Curso", Category: "educacao", Amount: decimal.NewFromInt(600),
		Type: TypeExpense, Date: day(2024, 3, 20), Installments: 2,
	})
	require.NoError(t, err)
	_, err = m.Add(ctx, Transaction{
		Description: "Conta de luz", Category: "moradia", Amount: decimal.NewFromInt(150),
		Type: TypeExpense, Date: day(2024, 3, 17), Status: StatusPending,
	})
	require.NoError(t, err)

	assert.Len(t, m.Pending(), 3)

	upcoming := m.Upcoming(7)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Conta de luz", upcoming[0].Description)
	assert.Equal(t, "Curso (1/2)", upcoming[1].Description)

	paid, err := m.MarkInstallmentPaid(ctx, first.ID, true)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Len(t, m.Upcoming(7), 1)

	light := m.ByCategory("moradia")[0]
	paid, err = m.MarkInstallmentPaid(ctx, light.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, paid.Status)
	assert.Len(t, m.Pending(), 1)
}

// ============================================================================
// Data management
// ============================================================================

func TestManager_ExportImportJSON(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	seed(t, m)

	data, err := m.ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "1.0"`)

	other, _ := newTestManager(t)
	_, err = other.Add(ctx, expense("Descartada", "lazer", "1", day(2024, 3, 1)))
	require.NoError(t, err)

	n, err := other.ImportJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, other.GetAll(), 5)
	assert.Empty(t, other.ByCategory("lazer"))

	_, err = other.ImportJSON(ctx, []byte(`{"version":"1.0"}`))
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	_, err = other.ImportJSON(ctx, []byte(`not json`))
	assert.Error(t, err)
}

func TestManager_Clear(t *testing.T) {
	m, _ := newTestManager(t)
	seed(t, m)

	require.NoError(t, m.Clear(context.Background()))
	assert.Empty(t, m.GetAll())

	got, err := m.Search("uber")
	require.NoError(t, err)
	assert.Empty(t, got)
}
