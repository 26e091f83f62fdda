package transactions

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SumTotals adds up income and expenses of a set of transactions
func SumTotals(txns []Transaction) Totals {
	var totals Totals
	for _, t := range txns {
		switch t.Type {
		case TypeIncome:
			totals.Income = totals.Income.Add(t.Amount)
		case TypeExpense:
			totals.Expense = totals.Expense.Add(t.Amount)
		}
	}
	totals.Balance = totals.Income.Sub(totals.Expense)
	return totals
}

// SumByCategory groups transactions of one type by category, largest total first
func SumByCategory(txns []Transaction, typ Type) []CategoryTotal {
	byCategory := make(map[string]*CategoryTotal)
	for _, t := range txns {
		if typ != "" && t.Type != typ {
			continue
		}
		ct, ok := byCategory[t.Category]
		if !ok {
			ct = &CategoryTotal{Category: t.Category}
			byCategory[t.Category] = ct
		}
		ct.Total = ct.Total.Add(t.Amount)
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Totals sums every transaction
func (m *Manager) Totals() Totals {
	return SumTotals(m.GetAll())
}

// TotalsByCategory sums transactions of one type per category; an empty type includes both
func (m *Manager) TotalsByCategory(typ Type) []CategoryTotal {
	return SumByCategory(m.GetAll(), typ)
}

// QuickStats summarises the transactions of a period. Week is the last seven
// days, month the current calendar month and year runs from January 1st.
func (m *Manager) QuickStats(period Period) QuickStats {
	now := m.now().UTC()
	today := dateOnly(now)

	var txns []Transaction
	switch period {
	case PeriodWeek:
		txns = m.ByDateRange(today.AddDate(0, 0, -7), today)
	case PeriodMonth:
		txns = m.CurrentMonth()
	case PeriodYear:
		txns = m.ByDateRange(dateOnly(now).AddDate(0, 1-int(now.Month()), 1-now.Day()), today)
	default:
		period = PeriodAll
		txns = m.GetAll()
	}

	stats := QuickStats{
		Totals:            SumTotals(txns),
		Period:            period,
		TotalTransactions: len(txns),
	}
	for _, t := range txns {
		if !t.IsPaid || t.Status == StatusPending {
			stats.PendingTransactions++
		}
	}
	if len(txns) > 0 {
		stats.AverageTransaction = stats.Income.Add(stats.Expense).Div(decimal.NewFromInt(int64(len(txns))))
	}
	return stats
}
