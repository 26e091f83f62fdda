package reports

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
)

// Format is a transaction export format
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	transactionsSheet = "Transações"
	summarySheet      = "Resumo"
)

// ParseFormat accepts a format name, defaulting to JSON when empty
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Row is the flat shape of a transaction in CSV and XLSX exports
type Row struct {
	Date          string `csv:"date"`
	Description   string `csv:"description"`
	Category      string `csv:"category"`
	Type          string `csv:"type"`
	Amount        string `csv:"amount"`
	Installment   string `csv:"installment"`
	Status        string `csv:"status"`
	Paid          bool   `csv:"paid"`
	PaymentMethod string `csv:"payment_method"`
	Tags          string `csv:"tags"`
	Notes         string `csv:"notes"`
}

var rowHeader = []any{
	"date", "description", "category", "type", "amount",
	"installment", "status", "paid", "payment_method", "tags", "notes",
}

// Rows flattens transactions for export
func Rows(txns []transactions.Transaction) []*Row {
	rows := make([]*Row, 0, len(txns))
	for _, t := range txns {
		installment := ""
		if t.Installments > 1 {
			installment = fmt.Sprintf("%d/%d", t.InstallmentNumber, t.Installments)
		}
		rows = append(rows, &Row{
			Date:          t.Date.Format("2006-01-02"),
			Description:   t.Description,
			Category:      t.Category,
			Type:          string(t.Type),
			Amount:        t.Amount.StringFixed(2),
			Installment:   installment,
			Status:        string(t.Status),
			Paid:          t.IsPaid,
			PaymentMethod: t.PaymentMethod,
			Tags:          strings.Join(t.Tags, ";"),
			Notes:         t.Notes,
		})
	}
	return rows
}

// WriteCSV writes txns as CSV with a header row
func WriteCSV(w io.Writer, txns []transactions.Transaction) error {
	if err := gocsv.Marshal(Rows(txns), w); err != nil {
		return fmt.Errorf("failed to write csv export: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with a transactions sheet and a summary sheet of
// totals and expenses per category.
func WriteXLSX(w io.Writer, txns []transactions.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(transactionsSheet, "A1", &rowHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range Rows(txns) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.Date, r.Description, r.Category, r.Type, toFloat(txns[i].Amount),
			r.Installment, r.Status, r.Paid, r.PaymentMethod, r.Tags, r.Notes,
		}
		if err := f.SetSheetRow(transactionsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetCellStyle(transactionsSheet, "A1", "K1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(transactionsSheet, "B", "B", 32); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	totals := transactions.SumTotals(txns)
	summary := [][]any{
		{"income", toFloat(totals.Income)},
		{"expense", toFloat(totals.Expense)},
		{"balance", toFloat(totals.Balance)},
		{},
		{"category", "total", "count"},
	}
	for _, ct := range transactions.SumByCategory(txns, transactions.TypeExpense) {
		summary = append(summary, []any{ct.Category, toFloat(ct.Total), ct.Count})
	}
	for i, row := range summary {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A5", "C5", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx export: %w", err)
	}
	return nil
}

// Export renders txns in a tabular format. JSON exports go through the
// transaction manager's envelope instead.
func Export(txns []transactions.Transaction, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		if err := WriteCSV(&buf, txns); err != nil {
			return nil, err
		}
	case FormatXLSX:
		if err := WriteXLSX(&buf, txns); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
