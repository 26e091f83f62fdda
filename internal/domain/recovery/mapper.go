package recovery

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/budgets"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/categories"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/finance"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/goals"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/transactions"
	"github.com/FACorreiaa/family-finance-tracker/pkg/money"
)

const defaultCategory = "Geral"

// Mapper converts legacy documents into current records. Each synonym list is
// tried in order and the first present, non-empty value wins; anything
// missing falls back to a default, so mapping never fails.
type Mapper struct {
	now func() time.Time
}

// NewMapper creates a mapper using now for date and month defaults
func NewMapper(now func() time.Time) *Mapper {
	if now == nil {
		now = time.Now
	}
	return &Mapper{now: now}
}

func provenance(d Document) *finance.Provenance {
	return &finance.Provenance{
		OriginalID:       d.ID,
		Recovered:        true,
		RecoveredAt:      d.RecoveredAt,
		SourcePath:       d.Path,
		SourceCollection: d.Collection,
	}
}

// Transaction maps a transaction document. A type that is missing or not
// recognised is inferred from the amount's sign, so unsigned legacy amounts
// become income; such records are flagged with Provenance.TypeInferred.
func (m *Mapper) Transaction(d Document) transactions.Transaction {
	f := d.Fields
	signed, _ := amountOf(f, "amount", "valor", "value", "price", "preco")

	typ, explicit := transactions.Type(""), false
	if raw, ok := stringOf(f, "type", "tipo"); ok {
		typ, explicit = transactions.ParseType(raw)
	}
	if !explicit {
		typ = transactions.TypeIncome
		if signed.IsNegative() {
			typ = transactions.TypeExpense
		}
	}

	date, ok := dateOf(f, "date", "data", "created", "createdAt", "timestamp")
	if !ok {
		date = m.now().UTC()
	}

	description, _ := stringOf(f, "description", "descricao", "title", "titulo", "name", "nome")
	category, ok := stringOf(f, "category", "categoria", "type", "tipo")
	if !ok {
		category = defaultCategory
	}
	notes, _ := stringOf(f, "notes", "observacao", "obs")

	prov := provenance(d)
	prov.TypeInferred = !explicit

	return transactions.Transaction{
		Description: description,
		Category:    category,
		Amount:      signed.Abs(),
		Type:        typ,
		Date:        date,
		Notes:       notes,
		Tags:        tagsOf(f, "tags", "labels"),
		IsPaid:      true,
		Recovery:    prov,
	}
}

// Budget maps a budget document
func (m *Mapper) Budget(d Document) budgets.Budget {
	f := d.Fields
	now := m.now().UTC()

	category, ok := stringOf(f, "category", "categoria")
	if !ok {
		category = defaultCategory
	}
	limit, _ := amountOf(f, "limit", "limite", "amount", "valor")
	spent, _ := amountOf(f, "spent", "gasto")

	month, ok := intOf(f, "month", "mes")
	if !ok {
		month = int(now.Month())
	}
	year, ok := intOf(f, "year", "ano")
	if !ok {
		year = now.Year()
	}
	name, ok := stringOf(f, "name", "nome")
	if !ok {
		name = category
	}

	return budgets.Budget{
		Name:     name,
		Category: category,
		Limit:    limit.Abs(),
		Spent:    spent.Abs(),
		Month:    month,
		Year:     year,
		Period:   budgets.PeriodMonthly,
		Recovery: provenance(d),
	}
}

// Goal maps a goal document
func (m *Mapper) Goal(d Document) goals.Goal {
	f := d.Fields

	title, ok := stringOf(f, "name", "nome", "title", "titulo")
	if !ok {
		title = goals.DefaultTitle
	}
	target, _ := amountOf(f, "target", "meta", "objetivo", "amount", "valor")
	current, _ := amountOf(f, "current", "atual", "saved", "economizado")
	category, ok := stringOf(f, "category", "categoria")
	if !ok {
		category = goals.DefaultCategory
	}
	description, _ := stringOf(f, "description", "descricao")

	g := goals.Goal{
		Title:       title,
		Target:      target.Abs(),
		Current:     current.Abs(),
		Category:    category,
		Description: description,
		Recovery:    provenance(d),
	}
	if deadline, ok := dateOf(f, "deadline", "prazo", "date", "data"); ok {
		g.TargetDate = &deadline
	}
	return g
}

// Category maps a category document. Unknown types become expense.
func (m *Mapper) Category(d Document) categories.Category {
	f := d.Fields

	name, ok := stringOf(f, "name", "nome", "category")
	if !ok {
		name = categories.DefaultName
	}
	icon, ok := stringOf(f, "icon", "icone")
	if !ok {
		icon = categories.DefaultIcon
	}
	color, ok := stringOf(f, "color", "cor")
	if !ok {
		color = categories.DefaultColor
	}
	typ := categories.TypeExpense
	if raw, ok := stringOf(f, "type", "tipo"); ok {
		if t, ok := transactions.ParseType(raw); ok {
			typ = string(t)
		}
	}

	return categories.Category{
		Name:     name,
		Icon:     icon,
		Color:    color,
		Type:     typ,
		Recovery: provenance(d),
	}
}

// ============================================================================
// Field extraction
// ============================================================================

// lookup returns the value of the first key present with a non-empty value.
// Keys match exactly first, then case-insensitively in sorted field order.
func lookup(fields map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && !isEmpty(v) {
			return v, true
		}
		for _, name := range (Document{Fields: fields}).FieldNames() {
			if v := fields[name]; strings.EqualFold(name, k) && !isEmpty(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case float64:
		return t == 0 || math.IsNaN(t)
	case float32:
		return t == 0 || math.IsNaN(float64(t))
	case int:
		return t == 0
	case int64:
		return t == 0
	case int32:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f == 0
	case decimal.Decimal:
		return t.IsZero()
	}
	return false
}

func stringOf(fields map[string]any, keys ...string) (string, bool) {
	for i := range keys {
		v, ok := lookup(fields, keys[i])
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t), true
		case float64, int, int64, json.Number:
			return toText(t), true
		}
	}
	return "", false
}

func toText(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

// amountOf returns the signed amount of the first usable synonym
func amountOf(fields map[string]any, keys ...string) (decimal.Decimal, bool) {
	for i := range keys {
		v, ok := lookup(fields, keys[i])
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok && !d.IsZero() {
			return d, true
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case int32:
		return decimal.NewFromInt32(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case decimal.Decimal:
		return t, true
	case string:
		d, err := money.ParseAmount(t)
		return d, err == nil
	}
	return decimal.Zero, false
}

func intOf(fields map[string]any, keys ...string) (int, bool) {
	for i := range keys {
		v, ok := lookup(fields, keys[i])
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n != 0 {
				return n, true
			}
			continue
		}
		if d, ok := toDecimal(v); ok && !d.IsZero() {
			return int(d.IntPart()), true
		}
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// msThreshold separates epoch seconds from epoch milliseconds; 1e11 seconds is
// past the year 5000.
const msThreshold = 1e11

func dateOf(fields map[string]any, keys ...string) (time.Time, bool) {
	for i := range keys {
		v, ok := lookup(fields, keys[i])
		if !ok {
			continue
		}
		if t, ok := toTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case map[string]any:
		// Serialised store timestamp: {seconds, nanoseconds} or {_seconds, _nanoseconds}
		secs, ok := lookup(t, "seconds", "_seconds")
		if !ok {
			return time.Time{}, false
		}
		s, ok := toDecimal(secs)
		if !ok {
			return time.Time{}, false
		}
		var nanos int64
		if n, ok := lookup(t, "nanoseconds", "_nanoseconds"); ok {
			if d, ok := toDecimal(n); ok {
				nanos = d.IntPart()
			}
		}
		return time.Unix(s.IntPart(), nanos).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	}

	d, ok := toDecimal(v)
	if !ok || !d.IsPositive() {
		return time.Time{}, false
	}
	f, _ := d.Float64()
	if f > msThreshold {
		return time.UnixMilli(d.IntPart()).UTC(), true
	}
	return time.Unix(d.IntPart(), 0).UTC(), true
}

func tagsOf(fields map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := lookup(fields, k)
		if !ok {
			continue
		}
		var tags []string
		switch t := v.(type) {
		case []string:
			tags = append(tags, t...)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					tags = append(tags, strings.TrimSpace(s))
				}
			}
		default:
			continue
		}
		if tags != nil {
			return tags
		}
	}
	return []string{}
}
