// Package sample generates demonstration data for an empty workspace.
package sample

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
)

// Data is a complete sample dataset
type Data struct {
	Transactions []transactions.Transaction
	Budgets      []budgets.Budget
	Goals        []goals.Goal
}

// Counts reports what Load wrote
type Counts struct {
	Transactions int `json:"transactions"`
	Budgets      int `json:"budgets"`
	Goals        int `json:"goals"`
}

// Generator builds sample data relative to the current month. The same seed
// and clock always produce the same data.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator creates a generator; seed 0 picks a random seed
func NewGenerator(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{faker: gofakeit.New(seed), now: now}
}

type fixedTxn struct {
	description string
	category    string
	typ         transactions.Type
	amount      string
	day         int
}

var monthlyTransactions = []fixedTxn{
	{"Salário", "Salário", transactions.TypeIncome, "5000.00", 5},
	{"Aluguel", "Moradia", transactions.TypeExpense, "1200.00", 10},
	{"Supermercado", "Alimentação", transactions.TypeExpense, "450.00", 12},
	{"Freelance Web Design", "Freelance", transactions.TypeIncome, "1500.00", 15},
	{"Conta de Luz", "Contas", transactions.TypeExpense, "180.00", 18},
	{"Internet", "Contas", transactions.TypeExpense, "89.90", 20},
	{"Gasolina", "Transporte", transactions.TypeExpense, "200.00", 22},
	{"Academia", "Saúde", transactions.TypeExpense, "150.00", 25},
}

var monthlyBudgets = []struct {
	category string
	limit    string
}{
	{"Alimentação", "800.00"},
	{"Transporte", "400.00"},
	{"Contas", "500.00"},
	{"Saúde", "300.00"},
}

var extraExpenses = []struct {
	description string
	category    string
}{
	{"Padaria", "Alimentação"},
	{"Restaurante", "Alimentação"},
	{"Uber", "Transporte"},
	{"Farmácia", "Saúde"},
	{"Cinema", "Lazer"},
	{"Streaming", "Lazer"},
	{"Livraria", "Educação"},
	{"Presente", "Outros"},
}

var tagPool = []string{"recorrente", "essencial", "lazer", "casa", "trabalho", "mensal"}

// Transactions returns the fixed monthly transactions plus extra random
// expenses spread over the current month up to today.
func (g *Generator) Transactions(extra int) []transactions.Transaction {
	now := g.now().UTC()
	year, month, today := now.Date()
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	out := make([]transactions.Transaction, 0, len(monthlyTransactions)+extra)
	for _, f := range monthlyTransactions {
		d := f.day
		if d > lastDay {
			d = lastDay
		}
		out = append(out, transactions.Transaction{
			Description: f.description,
			Category:    f.category,
			Type:        f.typ,
			Amount:      decimal.RequireFromString(f.amount),
			Date:        time.Date(year, month, d, 0, 0, 0, 0, time.UTC),
			IsPaid:      true,
			Tags:        []string{},
		})
	}

	for i := 0; i < extra; i++ {
		e := extraExpenses[g.faker.Number(0, len(extraExpenses)-1)]
		amount := decimal.NewFromFloat(g.faker.Price(5, 250)).Round(2)
		out = append(out, transactions.Transaction{
			Description: e.description,
			Category:    e.category,
			Type:        transactions.TypeExpense,
			Amount:      amount,
			Date:        time.Date(year, month, g.faker.Number(1, today), 0, 0, 0, 0, time.UTC),
			IsPaid:      g.faker.Bool(),
			Tags:        g.tags(),
		})
	}
	return out
}

func (g *Generator) tags() []string {
	n := g.faker.Number(0, 2)
	tags := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(tags) < n {
		t := tagPool[g.faker.Number(0, len(tagPool)-1)]
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

// Budgets returns one budget per common expense category for the current month
func (g *Generator) Budgets() []budgets.Budget {
	now := g.now().UTC()
	out := make([]budgets.Budget, 0, len(monthlyBudgets))
	for _, b := range monthlyBudgets {
		out = append(out, budgets.Budget{
			Category: b.category,
			Limit:    decimal.RequireFromString(b.limit),
			Month:    int(now.Month()),
			Year:     now.Year(),
		})
	}
	return out
}

// Goals returns savings goals due a few months from now
func (g *Generator) Goals() []goals.Goal {
	now := g.now().UTC()
	deadline := func(months int) *time.Time {
		t := time.Date(now.Year(), now.Month()+time.Month(months)+1, 0, 0, 0, 0, 0, time.UTC)
		return &t
	}
	return []goals.Goal{
		{
			Title:       "Viagem para o Exterior",
			Target:      decimal.NewFromInt(8000),
			Current:     decimal.NewFromInt(2500),
			TargetDate:  deadline(2),
			Category:    "Lazer",
			Description: "Economizar para uma viagem de férias para a Europa",
		},
		{
			Title:       "Reserva de Emergência",
			Target:      decimal.NewFromInt(15000),
			Current:     decimal.NewFromInt(5000),
			TargetDate:  deadline(6),
			Category:    "Investimentos",
			Description: "Construir uma reserva equivalente a 6 meses de gastos",
		},
		{
			Title:       "Novo Notebook",
			Target:      decimal.NewFromInt(3500),
			Current:     decimal.NewFromInt(1200),
			TargetDate:  deadline(2),
			Category:    "Eletrônicos",
			Description: "Comprar um notebook para trabalho",
		},
	}
}

// Generate returns the full dataset with extra random expenses
func (g *Generator) Generate(extra int) Data {
	return Data{
		Transactions: g.Transactions(extra),
		Budgets:      g.Budgets(),
		Goals:        g.Goals(),
	}
}

// Load replaces the workspace's transactions, budgets and goals with data.
// Records go through the managers, so they get ids and defaults; budget
// spending is recomputed at the end.
func Load(ctx context.Context, ws *workspace.Workspace, data Data, logger *slog.Logger) (Counts, error) {
	var counts Counts

	if err := ws.Transactions.Clear(ctx); err != nil {
		return counts, fmt.Errorf("failed to clear transactions: %w", err)
	}
	if err := ws.Budgets.ReplaceAll(ctx, nil); err != nil {
		return counts, fmt.Errorf("failed to clear budgets: %w", err)
	}
	if err := ws.Goals.ReplaceAll(ctx, nil); err != nil {
		return counts, fmt.Errorf("failed to clear goals: %w", err)
	}

	for _, t := range data.Transactions {
		if _, err := ws.Transactions.Add(ctx, t); err != nil {
			return counts, fmt.Errorf("failed to add sample transaction %q: %w", t.Description, err)
		}
		counts.Transactions++
	}
	for _, b := range data.Budgets {
		if _, err := ws.Budgets.Add(ctx, b); err != nil {
			return counts, fmt.Errorf("failed to add sample budget %q: %w", b.Category, err)
		}
		counts.Budgets++
	}
	for _, g := range data.Goals {
		if _, err := ws.Goals.Add(ctx, g); err != nil {
			return counts, fmt.Errorf("failed to add sample goal %q: %w", g.Title, err)
		}
		counts.Goals++
	}

	if _, err := ws.RefreshBudgets(ctx); err != nil {
		return counts, fmt.Errorf("failed to refresh budgets: %w", err)
	}

	logger.Info("sample data loaded",
		slog.String("user_id", ws.UserID),
		slog.Int("transactions", counts.Transactions),
		slog.Int("budgets", counts.Budgets),
		slog.Int("goals", counts.Goals),
	)
	return counts, nil
}
