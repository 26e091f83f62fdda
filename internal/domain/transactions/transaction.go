// Package transactions manages a user's income and expense records: creation
// with installment expansion, queries, text search, totals and statistics.
package transactions

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
)

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Type is the direction of money flow
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// ParseType accepts canonical and Portuguese type names
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "receita", "entrada":
		return TypeIncome, true
	case "expense", "despesa", "saida", "saída", "gasto":
		return TypeExpense, true
	}
	return "", false
}

// Status is the settlement state of a transaction
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

const (
	defaultPaymentMethod = "money"
	maxInstallments      = 60
)

// Transaction is a single income or expense record
type Transaction struct {
	ID                string          `json:"id"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Amount            decimal.Decimal `json:"amount"`
	Type              Type            `json:"type"`
	Date              time.Time       `json:"date"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Notes             string          `json:"notes,omitempty"`
	Tags              []string        `json:"tags"`
	Installments      int             `json:"installments"`
	InstallmentNumber int             `json:"installment_number"`
	ParentID          string          `json:"parent_id,omitempty"`
	Status            Status          `json:"status"`
	IsPaid            bool            `json:"is_paid"`
	PaymentMethod     string          `json:"payment_method"`

	Recovery *finance.Provenance `json:"recovery,omitempty"`
}

// IsInstallment reports whether the transaction belongs to an installment group
func (t Transaction) IsInstallment() bool {
	return t.ParentID != ""
}

// UpdateParams holds the fields to change; nil fields are left untouched
type UpdateParams struct {
	Description   *string
	Category      *string
	Amount        *decimal.Decimal
	Type          *Type
	Date          *time.Time
	Notes         *string
	Tags          []string
	Status        *Status
	IsPaid        *bool
	PaymentMethod *string
}

// Totals summarises income and expenses
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// CategoryTotal is the sum and count of transactions in one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Period selects the window for QuickStats
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// QuickStats summarises a period
type QuickStats struct {
	Totals
	Period              Period          `json:"period"`
	TotalTransactions   int             `json:"total_transactions"`
	PendingTransactions int             `json:"pending_transactions"`
	AverageTransaction  decimal.Decimal `json:"average_transaction"`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
