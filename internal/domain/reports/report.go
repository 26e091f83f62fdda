// Package reports builds monthly summaries, chart series and spreadsheet
// exports from a user's transactions.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/money"
)

// DefaultColors is the palette cycled through by chart series
var DefaultColors = []string{
	"#EF4444", "#F97316", "#F59E0B", "#EAB308",
	"#84CC16", "#22C55E", "#10B981", "#14B8A6",
	"#06B6D4", "#0EA5E9", "#3B82F6", "#6366F1",
	"#8B5CF6", "#A855F7", "#D946EF", "#EC4899",
}

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// PeriodLabel renders a month the way the app shows it, e.g. "março de 2024"
func PeriodLabel(year int, month time.Month) string {
	if month < time.January || month > time.December {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("%s de %d", monthNames[month-1], year)
}

// MonthlyReport summarises one calendar month
type MonthlyReport struct {
	Year              int        `json:"year"`
	Month             time.Month `json:"month"`
	Period            string     `json:"period"`
	Currency          string     `json:"currency"`
	TotalTransactions int        `json:"total_transactions"`

	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Balance       decimal.Decimal `json:"balance"`

	IncomeDisplay   string `json:"income_display"`
	ExpensesDisplay string `json:"expenses_display"`
	BalanceDisplay  string `json:"balance_display"`

	ExpensesByCategory []transactions.CategoryTotal `json:"expenses_by_category"`
	Transactions       []transactions.Transaction   `json:"transactions"`
}

// Monthly builds the report of year/month from txns. Cancelled transactions
// are listed but not counted in the totals.
func Monthly(txns []transactions.Transaction, year int, month time.Month, currency string) MonthlyReport {
	inMonth := make([]transactions.Transaction, 0)
	counted := make([]transactions.Transaction, 0)
	for _, t := range txns {
		y, m, _ := t.Date.Date()
		if y != year || m != month {
			continue
		}
		inMonth = append(inMonth, t)
		if t.Status != transactions.StatusCancelled {
			counted = append(counted, t)
		}
	}
	sort.SliceStable(inMonth, func(i, j int) bool {
		return inMonth[i].Date.Before(inMonth[j].Date)
	})

	totals := transactions.SumTotals(counted)
	return MonthlyReport{
		Year:               year,
		Month:              month,
		Period:             PeriodLabel(year, month),
		Currency:           currency,
		TotalTransactions:  len(inMonth),
		TotalIncome:        totals.Income,
		TotalExpenses:      totals.Expense,
		Balance:            totals.Balance,
		IncomeDisplay:      money.Display(totals.Income, currency),
		ExpensesDisplay:    money.Display(totals.Expense, currency),
		BalanceDisplay:     money.Display(totals.Balance, currency),
		ExpensesByCategory: transactions.SumByCategory(counted, transactions.TypeExpense),
		Transactions:       inMonth,
	}
}

// ChartData is a labelled series ready for a pie or bar chart
type ChartData struct {
	Labels []string          `json:"labels"`
	Values []decimal.Decimal `json:"values"`
	Colors []string          `json:"colors"`
}

// CategoryChart sums transactions of typ per category, largest first.
// Colours repeat once the palette is exhausted.
func CategoryChart(txns []transactions.Transaction, typ transactions.Type) ChartData {
	totals := transactions.SumByCategory(txns, typ)
	chart := ChartData{
		Labels: make([]string, 0, len(totals)),
		Values: make([]decimal.Decimal, 0, len(totals)),
		Colors: make([]string, 0, len(totals)),
	}
	for i, ct := range totals {
		chart.Labels = append(chart.Labels, ct.Category)
		chart.Values = append(chart.Values, ct.Total)
		chart.Colors = append(chart.Colors, DefaultColors[i%len(DefaultColors)])
	}
	return chart
}

// TrendPoint is the income and expense of one month
type TrendPoint struct {
	Year    int             `json:"year"`
	Month   time.Month      `json:"month"`
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// MonthlyTrend returns the last n months up to and including now's month,
// oldest first. Months without transactions are zero.
func MonthlyTrend(txns []transactions.Transaction, now time.Time, n int) []TrendPoint {
	if n <= 0 {
		n = 6
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1-n, 0)

	points := make([]TrendPoint, n)
	for i := range points {
		m := start.AddDate(0, i, 0)
		points[i] = TrendPoint{Year: m.Year(), Month: m.Month(), Label: PeriodLabel(m.Year(), m.Month())}
	}

	for _, t := range txns {
		if t.Status == transactions.StatusCancelled {
			continue
		}
		y, m, _ := t.Date.Date()
		idx := (y-start.Year())*12 + int(m) - int(start.Month())
		if idx < 0 || idx >= n {
			continue
		}
		switch t.Type {
		case transactions.TypeIncome:
			points[idx].Income = points[idx].Income.Add(t.Amount)
		case transactions.TypeExpense:
			points[idx].Expense = points[idx].Expense.Add(t.Amount)
		}
	}
	return points
}
