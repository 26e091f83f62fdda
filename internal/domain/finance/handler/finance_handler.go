// Package handler implements the FinanceService Connect RPC handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/cloudsync"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/reports"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/sample"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
	"github.com/FACorreiaa/family-finance-tracker/pkg/interceptors"
)

const FinanceServiceName = "finance.v1.FinanceService"

const (
	AddTransactionProcedure      = "/" + FinanceServiceName + "/AddTransaction"
	QuickAddTransactionProcedure = "/" + FinanceServiceName + "/QuickAddTransaction"
	UpdateTransactionProcedure   = "/" + FinanceServiceName + "/UpdateTransaction"
	ListTransactionsProcedure    = "/" + FinanceServiceName + "/ListTransactions"
	SearchTransactionsProcedure  = "/" + FinanceServiceName + "/SearchTransactions"
	RemoveTransactionProcedure   = "/" + FinanceServiceName + "/RemoveTransaction"
	MarkInstallmentPaidProcedure = "/" + FinanceServiceName + "/MarkInstallmentPaid"
	GetQuickStatsProcedure       = "/" + FinanceServiceName + "/GetQuickStats"
	AddBudgetProcedure           = "/" + FinanceServiceName + "/AddBudget"
	ListBudgetsProcedure         = "/" + FinanceServiceName + "/ListBudgets"
	AddGoalProcedure             = "/" + FinanceServiceName + "/AddGoal"
	ListGoalsProcedure           = "/" + FinanceServiceName + "/ListGoals"
	ContributeToGoalProcedure    = "/" + FinanceServiceName + "/ContributeToGoal"
	ListCategoriesProcedure      = "/" + FinanceServiceName + "/ListCategories"
	AddCategoryProcedure         = "/" + FinanceServiceName + "/AddCategory"
	SuggestCategoryProcedure     = "/" + FinanceServiceName + "/SuggestCategory"
	GetMonthlyReportProcedure    = "/" + FinanceServiceName + "/GetMonthlyReport"
	ExportTransactionsProcedure  = "/" + FinanceServiceName + "/ExportTransactions"
	LoadSampleDataProcedure      = "/" + FinanceServiceName + "/LoadSampleData"
	SyncNowProcedure             = "/" + FinanceServiceName + "/SyncNow"
	PullFromCloudProcedure       = "/" + FinanceServiceName + "/PullFromCloud"
)

// ============================================================================
// Messages
// ============================================================================

type TransactionInput struct {
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Date          *time.Time      `json:"date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Installments  int             `json:"installments,omitempty"`
	Status        string          `json:"status,omitempty"`
	IsPaid        bool            `json:"is_paid"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

type AddTransactionRequest struct {
	Transaction TransactionInput `json:"transaction"`
}

type AddTransactionResponse struct {
	Transaction transactions.Transaction `json:"transaction"`
	// Installments lists every generated installment when more than one
	Installments []transactions.Transaction `json:"installments,omitempty"`
}

type QuickAddTransactionRequest struct {
	Text string `json:"text"`
}

type QuickAddTransactionResponse struct {
	Transaction transactions.Transaction `json:"transaction"`
	Suggestion  *categories.Suggestion   `json:"suggestion,omitempty"`
}

type UpdateTransactionRequest struct {
	ID            string           `json:"id"`
	Description   *string          `json:"description,omitempty"`
	Category      *string          `json:"category,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Type          *string          `json:"type,omitempty"`
	Date          *time.Time       `json:"date,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Status        *string          `json:"status,omitempty"`
	IsPaid        *bool            `json:"is_paid,omitempty"`
	PaymentMethod *string          `json:"payment_method,omitempty"`
}

type TransactionResponse struct {
	Transaction transactions.Transaction `json:"transaction"`
}

type ListTransactionsRequest struct {
	Category string     `json:"category,omitempty"`
	Type     string     `json:"type,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	// PendingOnly keeps unpaid transactions
	PendingOnly bool `json:"pending_only,omitempty"`
	// UpcomingDays lists unpaid transactions due in the next N days instead
	UpcomingDays int `json:"upcoming_days,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []transactions.Transaction `json:"transactions"`
	Totals       transactions.Totals        `json:"totals"`
}

type SearchTransactionsRequest struct {
	Query string `json:"query"`
}

type RemoveTransactionRequest struct {
	ID string `json:"id"`
}

type RemoveTransactionResponse struct {
	Removed int `json:"removed"`
}

type MarkInstallmentPaidRequest struct {
	ID   string `json:"id"`
	Paid bool   `json:"paid"`
}

type GetQuickStatsRequest struct {
	Period string `json:"period"`
}

type GetQuickStatsResponse struct {
	Stats transactions.QuickStats `json:"stats"`
}

type AddBudgetRequest struct {
	Name     string          `json:"name,omitempty"`
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
	Month    int             `json:"month,omitempty"`
	Year     int             `json:"year,omitempty"`
}

type BudgetView struct {
	budgets.Budget
	Remaining decimal.Decimal `json:"remaining"`
	Usage     decimal.Decimal `json:"usage"`
	Exceeded  bool            `json:"exceeded"`
}

type BudgetResponse struct {
	Budget BudgetView `json:"budget"`
}

type ListBudgetsRequest struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

type ListBudgetsResponse struct {
	Budgets []BudgetView `json:"budgets"`
}

type AddGoalRequest struct {
	Title       string          `json:"title"`
	Target      decimal.Decimal `json:"target"`
	Current     decimal.Decimal `json:"current"`
	TargetDate  *time.Time      `json:"target_date,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

type GoalResponse struct {
	Goal      goals.Progress          `json:"goal"`
	Milestone *goals.MilestoneReached `json:"milestone,omitempty"`
}

type ListGoalsRequest struct{}

type ListGoalsResponse struct {
	Goals []goals.Progress `json:"goals"`
}

type ContributeToGoalRequest struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

type ListCategoriesRequest struct {
	Type string `json:"type,omitempty"`
}

type ListCategoriesResponse struct {
	Categories []categories.Category `json:"categories"`
}

type AddCategoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Type  string `json:"type"`
}

type CategoryResponse struct {
	Category categories.Category `json:"category"`
}

type SuggestCategoryRequest struct {
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type SuggestCategoryResponse struct {
	Suggestions []categories.Suggestion `json:"suggestions"`
}

type GetMonthlyReportRequest struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	// TrendMonths is the length of the income/expense trend, default 6
	TrendMonths int `json:"trend_months,omitempty"`
}

type GetMonthlyReportResponse struct {
	Report       reports.MonthlyReport `json:"report"`
	ExpenseChart reports.ChartData     `json:"expense_chart"`
	IncomeChart  reports.ChartData     `json:"income_chart"`
	Trend        []reports.TrendPoint  `json:"trend"`
}

type ExportTransactionsRequest struct {
	Format string `json:"format,omitempty"`
}

type ExportTransactionsResponse struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
}

type LoadSampleDataRequest struct {
	// Extra random expenses on top of the fixed sample
	Extra int   `json:"extra,omitempty"`
	Seed  int64 `json:"seed,omitempty"`
}

type LoadSampleDataResponse struct {
	Counts sample.Counts `json:"counts"`
}

type SyncRequest struct{}

type SyncResponse struct {
	Result *cloudsync.Result `json:"result"`
}

// ============================================================================
// Handler
// ============================================================================

// FinanceHandler implements the FinanceService Connect handlers
type FinanceHandler struct {
	registry *workspace.Registry
	parser   *finance.QuickCaptureParser
	syncer   *cloudsync.Syncer
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewFinanceHandler constructs a handler serving the registry's workspaces
func NewFinanceHandler(registry *workspace.Registry, currency string, logger *slog.Logger) *FinanceHandler {
	return &FinanceHandler{
		registry: registry,
		parser:   finance.NewQuickCaptureParser(currency),
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
}

// WithSyncer enables SyncNow and PullFromCloud
func (h *FinanceHandler) WithSyncer(s *cloudsync.Syncer) *FinanceHandler {
	h.syncer = s
	return h
}

// WithClock overrides the time source used for defaults and reports
func (h *FinanceHandler) WithClock(now func() time.Time) *FinanceHandler {
	h.now = now
	return h
}

// NewFinanceServiceHandler mounts the handler's procedures and returns the path prefix to route
func NewFinanceServiceHandler(h *FinanceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(AddTransactionProcedure, connect.NewUnaryHandler(AddTransactionProcedure, h.AddTransaction, opts...))
	mux.Handle(QuickAddTransactionProcedure, connect.NewUnaryHandler(QuickAddTransactionProcedure, h.QuickAddTransaction, opts...))
	mux.Handle(UpdateTransactionProcedure, connect.NewUnaryHandler(UpdateTransactionProcedure, h.UpdateTransaction, opts...))
	mux.Handle(ListTransactionsProcedure, connect.NewUnaryHandler(ListTransactionsProcedure, h.ListTransactions, opts...))
	mux.Handle(SearchTransactionsProcedure, connect.NewUnaryHandler(SearchTransactionsProcedure, h.SearchTransactions, opts...))
	mux.Handle(RemoveTransactionProcedure, connect.NewUnaryHandler(RemoveTransactionProcedure, h.RemoveTransaction, opts...))
	mux.Handle(MarkInstallmentPaidProcedure, connect.NewUnaryHandler(MarkInstallmentPaidProcedure, h.MarkInstallmentPaid, opts...))
	mux.Handle(GetQuickStatsProcedure, connect.NewUnaryHandler(GetQuickStatsProcedure, h.GetQuickStats, opts...))
	mux.Handle(AddBudgetProcedure, connect.NewUnaryHandler(AddBudgetProcedure, h.AddBudget, opts...))
	mux.Handle(ListBudgetsProcedure, connect.NewUnaryHandler(ListBudgetsProcedure, h.ListBudgets, opts...))
	mux.Handle(AddGoalProcedure, connect.NewUnaryHandler(AddGoalProcedure, h.AddGoal, opts...))
	mux.Handle(ListGoalsProcedure, connect.NewUnaryHandler(ListGoalsProcedure, h.ListGoals, opts...))
	mux.Handle(ContributeToGoalProcedure, connect.NewUnaryHandler(ContributeToGoalProcedure, h.ContributeToGoal, opts...))
	mux.Handle(ListCategoriesProcedure, connect.NewUnaryHandler(ListCategoriesProcedure, h.ListCategories, opts...))
	mux.Handle(AddCategoryProcedure, connect.NewUnaryHandler(AddCategoryProcedure, h.AddCategory, opts...))
	mux.Handle(SuggestCategoryProcedure, connect.NewUnaryHandler(SuggestCategoryProcedure, h.SuggestCategory, opts...))
	mux.Handle(GetMonthlyReportProcedure, connect.NewUnaryHandler(GetMonthlyReportProcedure, h.GetMonthlyReport, opts...))
	mux.Handle(ExportTransactionsProcedure, connect.NewUnaryHandler(ExportTransactionsProcedure, h.ExportTransactions, opts...))
	mux.Handle(LoadSampleDataProcedure, connect.NewUnaryHandler(LoadSampleDataProcedure, h.LoadSampleData, opts...))
	mux.Handle(SyncNowProcedure, connect.NewUnaryHandler(SyncNowProcedure, h.SyncNow, opts...))
	mux.Handle(PullFromCloudProcedure, connect.NewUnaryHandler(PullFromCloudProcedure, h.PullFromCloud, opts...))
	return "/" + FinanceServiceName + "/", mux
}

// getUserID returns the authenticated user from the request context
func getUserID(ctx context.Context) (string, error) {
	userID, ok := interceptors.GetUserIDFromContext(ctx)
	if !ok {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return userID, nil
}

func (h *FinanceHandler) workspace(ctx context.Context) (*workspace.Workspace, error) {
	userID, err := getUserID(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := h.registry.Get(ctx, userID)
	if err != nil {
		h.logger.Error("failed to load workspace", slog.String("user_id", userID), slog.Any("error", err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("failed to load user data"))
	}
	return ws, nil
}

// ============================================================================
// Transactions
// ============================================================================

// AddTransaction stores a transaction, expanding installments
func (h *FinanceHandler) AddTransaction(
	ctx context.Context,
	req *connect.Request[AddTransactionRequest],
) (*connect.Response[AddTransactionResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	in := req.Msg.Transaction
	t := transactions.Transaction{
		Description:   in.Description,
		Category:      in.Category,
		Amount:        in.Amount,
		Type:          transactions.Type(in.Type),
		Notes:         in.Notes,
		Tags:          in.Tags,
		Installments:  in.Installments,
		Status:        transactions.Status(in.Status),
		IsPaid:        in.IsPaid,
		PaymentMethod: in.PaymentMethod,
	}
	if in.Date != nil {
		t.Date = *in.Date
	}

	created, err := ws.Transactions.Add(ctx, t)
	if err != nil {
		return nil, toConnectError(err)
	}
	h.refreshBudgets(ctx, ws)

	resp := &AddTransactionResponse{Transaction: created}
	if created.IsInstallment() {
		resp.Installments = ws.Transactions.Installments(created.ParentID)
	}
	return connect.NewResponse(resp), nil
}

// QuickAddTransaction parses a free-text line such as "Mercado 85,90 ontem"
// and files it under the suggested category.
func (h *FinanceHandler) QuickAddTransaction(
	ctx context.Context,
	req *connect.Request[QuickAddTransactionRequest],
) (*connect.Response[QuickAddTransactionResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Msg.Text) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}

	parsed := h.parser.Parse(req.Msg.Text, h.now())
	if !parsed.Amount.IsPositive() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("no amount found in %q", req.Msg.Text))
	}

	resp := &QuickAddTransactionResponse{}
	category := categories.GeneralName
	suggester := categories.NewSuggester(ws.Categories.GetAll(), categories.DefaultRules)
	if s, ok := suggester.Suggest(parsed.Description, parsed.Type); ok {
		category = s.Category.Name
		resp.Suggestion = &s
	}

	created, err := ws.Transactions.Add(ctx, transactions.Transaction{
		Description: parsed.Description,
		Category:    category,
		Amount:      parsed.Amount,
		Type:        transactions.Type(parsed.Type),
		Date:        parsed.Date,
		IsPaid:      true,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	h.refreshBudgets(ctx, ws)

	resp.Transaction = created
	return connect.NewResponse(resp), nil
}

// UpdateTransaction changes the given fields of one transaction
func (h *FinanceHandler) UpdateTransaction(
	ctx context.Context,
	req *connect.Request[UpdateTransactionRequest],
) (*connect.Response[TransactionResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	params := transactions.UpdateParams{
		Description:   m.Description,
		Category:      m.Category,
		Amount:        m.Amount,
		Date:          m.Date,
		Notes:         m.Notes,
		Tags:          m.Tags,
		IsPaid:        m.IsPaid,
		PaymentMethod: m.PaymentMethod,
	}
	if m.Type != nil {
		typ := transactions.Type(*m.Type)
		params.Type = &typ
	}
	if m.Status != nil {
		status := transactions.Status(*m.Status)
		params.Status = &status
	}

	updated, err := ws.Transactions.Update(ctx, m.ID, params)
	if err != nil {
		return nil, toConnectError(err)
	}
	h.refreshBudgets(ctx, ws)
	return connect.NewResponse(&TransactionResponse{Transaction: updated}), nil
}

// ListTransactions returns transactions matching every given filter, newest first
func (h *FinanceHandler) ListTransactions(
	ctx context.Context,
	req *connect.Request[ListTransactionsRequest],
) (*connect.Response[ListTransactionsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	var typ transactions.Type
	if m.Type != "" {
		parsed, ok := transactions.ParseType(m.Type)
		if !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown transaction type %q", m.Type))
		}
		typ = parsed
	}

	var txns []transactions.Transaction
	switch {
	case m.UpcomingDays > 0:
		txns = ws.Transactions.Upcoming(m.UpcomingDays)
	case m.PendingOnly:
		txns = ws.Transactions.Pending()
	default:
		txns = ws.Transactions.GetAll()
	}

	out := make([]transactions.Transaction, 0, len(txns))
	for _, t := range txns {
		if m.Category != "" && !strings.EqualFold(t.Category, m.Category) {
			continue
		}
		if typ != "" && t.Type != typ {
			continue
		}
		if m.Start != nil && t.Date.Before(*m.Start) {
			continue
		}
		if m.End != nil && t.Date.After(*m.End) {
			continue
		}
		out = append(out, t)
	}
	if m.UpcomingDays == 0 {
		sortNewestFirst(out)
	}

	return connect.NewResponse(&ListTransactionsResponse{
		Transactions: out,
		Totals:       transactions.SumTotals(out),
	}), nil
}

// SearchTransactions runs a full-text query over descriptions, categories,
// notes and tags.
func (h *FinanceHandler) SearchTransactions(
	ctx context.Context,
	req *connect.Request[SearchTransactionsRequest],
) (*connect.Response[ListTransactionsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	found, err := ws.Transactions.Search(req.Msg.Query)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListTransactionsResponse{
		Transactions: found,
		Totals:       transactions.SumTotals(found),
	}), nil
}

// RemoveTransaction deletes a transaction, or its whole installment group
func (h *FinanceHandler) RemoveTransaction(
	ctx context.Context,
	req *connect.Request[RemoveTransactionRequest],
) (*connect.Response[RemoveTransactionResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	n, err := ws.Transactions.Remove(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	h.refreshBudgets(ctx, ws)
	return connect.NewResponse(&RemoveTransactionResponse{Removed: n}), nil
}

// MarkInstallmentPaid sets the paid flag of one transaction
func (h *FinanceHandler) MarkInstallmentPaid(
	ctx context.Context,
	req *connect.Request[MarkInstallmentPaidRequest],
) (*connect.Response[TransactionResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	t, err := ws.Transactions.MarkInstallmentPaid(ctx, req.Msg.ID, req.Msg.Paid)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TransactionResponse{Transaction: t}), nil
}

// GetQuickStats summarises a week, month, year or everything
func (h *FinanceHandler) GetQuickStats(
	ctx context.Context,
	req *connect.Request[GetQuickStatsRequest],
) (*connect.Response[GetQuickStatsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}
	stats := ws.Transactions.QuickStats(transactions.Period(strings.ToLower(req.Msg.Period)))
	return connect.NewResponse(&GetQuickStatsResponse{Stats: stats}), nil
}

// ============================================================================
// Budgets and goals
// ============================================================================

// AddBudget creates a monthly category limit
func (h *FinanceHandler) AddBudget(
	ctx context.Context,
	req *connect.Request[AddBudgetRequest],
) (*connect.Response[BudgetResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	b, err := ws.Budgets.Add(ctx, budgets.Budget{
		Name:     m.Name,
		Category: m.Category,
		Limit:    m.Limit,
		Month:    m.Month,
		Year:     m.Year,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	for _, refreshed := range h.refreshBudgets(ctx, ws) {
		if refreshed.ID == b.ID {
			b = refreshed
		}
	}
	return connect.NewResponse(&BudgetResponse{Budget: toBudgetView(b)}), nil
}

// ListBudgets returns budgets with up-to-date spending, optionally for one month
func (h *FinanceHandler) ListBudgets(
	ctx context.Context,
	req *connect.Request[ListBudgetsRequest],
) (*connect.Response[ListBudgetsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	all := h.refreshBudgets(ctx, ws)
	if req.Msg.Month != 0 {
		year := req.Msg.Year
		if year == 0 {
			year = h.now().Year()
		}
		all = ws.Budgets.ForMonth(year, time.Month(req.Msg.Month))
	}

	views := make([]BudgetView, 0, len(all))
	for _, b := range all {
		views = append(views, toBudgetView(b))
	}
	return connect.NewResponse(&ListBudgetsResponse{Budgets: views}), nil
}

// AddGoal creates a savings goal
func (h *FinanceHandler) AddGoal(
	ctx context.Context,
	req *connect.Request[AddGoalRequest],
) (*connect.Response[GoalResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	g, err := ws.Goals.Add(ctx, goals.Goal{
		Title:       m.Title,
		Target:      m.Target,
		Current:     m.Current,
		TargetDate:  m.TargetDate,
		Category:    m.Category,
		Description: m.Description,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GoalResponse{Goal: goals.ComputeProgress(g, h.now())}), nil
}

// ListGoals returns every goal with its progress and pace
func (h *FinanceHandler) ListGoals(
	ctx context.Context,
	req *connect.Request[ListGoalsRequest],
) (*connect.Response[ListGoalsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now()
	all := ws.Goals.GetAll()
	out := make([]goals.Progress, 0, len(all))
	for _, g := range all {
		out = append(out, goals.ComputeProgress(g, now))
	}
	return connect.NewResponse(&ListGoalsResponse{Goals: out}), nil
}

// ContributeToGoal adds an amount to a goal and reports a crossed milestone
func (h *FinanceHandler) ContributeToGoal(
	ctx context.Context,
	req *connect.Request[ContributeToGoalRequest],
) (*connect.Response[GoalResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	g, milestone, err := ws.Goals.Contribute(ctx, req.Msg.ID, req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GoalResponse{
		Goal:      goals.ComputeProgress(g, h.now()),
		Milestone: milestone,
	}), nil
}

// ============================================================================
// Categories
// ============================================================================

// ListCategories returns built-in and custom categories, optionally of one type
func (h *FinanceHandler) ListCategories(
	ctx context.Context,
	req *connect.Request[ListCategoriesRequest],
) (*connect.Response[ListCategoriesResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	cats := ws.Categories.GetAll()
	if req.Msg.Type != "" {
		cats = ws.Categories.ByType(req.Msg.Type)
	}
	return connect.NewResponse(&ListCategoriesResponse{Categories: cats}), nil
}

// AddCategory creates a custom category
func (h *FinanceHandler) AddCategory(
	ctx context.Context,
	req *connect.Request[AddCategoryRequest],
) (*connect.Response[CategoryResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	c, err := ws.Categories.Add(ctx, categories.Category{
		Name:  req.Msg.Name,
		Icon:  req.Msg.Icon,
		Color: req.Msg.Color,
		Type:  req.Msg.Type,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CategoryResponse{Category: c}), nil
}

// SuggestCategory proposes categories for a description
func (h *FinanceHandler) SuggestCategory(
	ctx context.Context,
	req *connect.Request[SuggestCategoryRequest],
) (*connect.Response[SuggestCategoryResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	limit := req.Msg.Limit
	if limit <= 0 {
		limit = 3
	}
	suggester := categories.NewSuggester(ws.Categories.GetAll(), categories.DefaultRules)
	suggestions := suggester.SuggestAll(req.Msg.Description, req.Msg.Type, limit)
	if suggestions == nil {
		suggestions = []categories.Suggestion{}
	}
	return connect.NewResponse(&SuggestCategoryResponse{Suggestions: suggestions}), nil
}

// ============================================================================
// Reports, export and data management
// ============================================================================

// GetMonthlyReport returns the month's totals, category charts and a trend;
// without a month it reports the current one.
func (h *FinanceHandler) GetMonthlyReport(
	ctx context.Context,
	req *connect.Request[GetMonthlyReportRequest],
) (*connect.Response[GetMonthlyReportResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now().UTC()
	year, month := req.Msg.Year, time.Month(req.Msg.Month)
	if month == 0 {
		month = now.Month()
	}
	if year == 0 {
		year = now.Year()
	}
	if month < time.January || month > time.December {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("month must be between 1 and 12"))
	}

	all := ws.Transactions.GetAll()
	report := reports.Monthly(all, year, month, h.currency)
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)

	return connect.NewResponse(&GetMonthlyReportResponse{
		Report:       report,
		ExpenseChart: reports.CategoryChart(report.Transactions, transactions.TypeExpense),
		IncomeChart:  reports.CategoryChart(report.Transactions, transactions.TypeIncome),
		Trend:        reports.MonthlyTrend(all, anchor, req.Msg.TrendMonths),
	}), nil
}

// ExportTransactions renders every transaction as JSON, CSV or XLSX
func (h *FinanceHandler) ExportTransactions(
	ctx context.Context,
	req *connect.Request[ExportTransactionsRequest],
) (*connect.Response[ExportTransactionsResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	format, err := reports.ParseFormat(req.Msg.Format)
	if err != nil {
		return nil, toConnectError(err)
	}

	var data []byte
	if format == reports.FormatJSON {
		data, err = ws.Transactions.ExportJSON()
	} else {
		data, err = reports.Export(ws.Transactions.GetAll(), format)
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExportTransactionsResponse{
		Format:      string(format),
		ContentType: format.ContentType(),
		Filename:    fmt.Sprintf("transacoes-%s.%s", h.now().Format("2006-01-02"), format),
		Data:        data,
	}), nil
}

// LoadSampleData replaces the user's data with the demonstration dataset
func (h *FinanceHandler) LoadSampleData(
	ctx context.Context,
	req *connect.Request[LoadSampleDataRequest],
) (*connect.Response[LoadSampleDataResponse], error) {
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	data := sample.NewGenerator(req.Msg.Seed, h.now).Generate(req.Msg.Extra)
	counts, err := sample.Load(ctx, ws, data, h.logger)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LoadSampleDataResponse{Counts: counts}), nil
}

// SyncNow pushes the user's data to the document store
func (h *FinanceHandler) SyncNow(
	ctx context.Context,
	req *connect.Request[SyncRequest],
) (*connect.Response[SyncResponse], error) {
	return h.sync(ctx, cloudsync.DirectionPush)
}

// PullFromCloud merges the user's documents from the document store
func (h *FinanceHandler) PullFromCloud(
	ctx context.Context,
	req *connect.Request[SyncRequest],
) (*connect.Response[SyncResponse], error) {
	return h.sync(ctx, cloudsync.DirectionPull)
}

func (h *FinanceHandler) sync(ctx context.Context, direction string) (*connect.Response[SyncResponse], error) {
	if h.syncer == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("cloud sync is not configured"))
	}
	ws, err := h.workspace(ctx)
	if err != nil {
		return nil, err
	}

	var res *cloudsync.Result
	if direction == cloudsync.DirectionPull {
		res, err = h.syncer.Pull(ctx, ws)
	} else {
		res, err = h.syncer.Push(ctx, ws)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&SyncResponse{Result: res}), nil
}

// ============================================================================
// Helpers
// ============================================================================

// refreshBudgets recomputes spending after a transaction change. A failure is
// logged; the transaction change itself already succeeded.
func (h *FinanceHandler) refreshBudgets(ctx context.Context, ws *workspace.Workspace) []budgets.Budget {
	refreshed, err := ws.RefreshBudgets(ctx)
	if err != nil {
		h.logger.Warn("failed to refresh budgets",
			slog.String("user_id", ws.UserID),
			slog.Any("error", err),
		)
		return ws.Budgets.GetAll()
	}
	return refreshed
}

func toBudgetView(b budgets.Budget) BudgetView {
	return BudgetView{
		Budget:    b,
		Remaining: b.Remaining(),
		Usage:     b.Usage(),
		Exceeded:  b.Exceeded(),
	}
}

func sortNewestFirst(txns []transactions.Transaction) {
	for i := 1; i < len(txns); i++ {
		for j := i; j > 0 && txns[j].Date.After(txns[j-1].Date); j-- {
			txns[j], txns[j-1] = txns[j-1], txns[j]
		}
	}
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, transactions.ErrInvalidTransaction),
		errors.Is(err, budgets.ErrInvalidBudget),
		errors.Is(err, goals.ErrInvalidGoal),
		errors.Is(err, categories.ErrInvalidCategory),
		errors.Is(err, reports.ErrUnsupportedFormat):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, transactions.ErrNotFound),
		errors.Is(err, budgets.ErrNotFound),
		errors.Is(err, goals.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, categories.ErrDuplicate):
		return connect.NewError(connect.CodeAlreadyExists, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
