package finance

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/family-finance-tracker/pkg/money"
)

// ParsedTransaction is the result of parsing a quick capture line
type ParsedTransaction struct {
	Description string
	Amount      decimal.Decimal // always >= 0
	Type        string          // "income" for a leading '+', otherwise "expense"
	Currency    string
	Date        time.Time
	RawText     string
}

// QuickCaptureParser parses lines such as "Mercado R$ 85,90 ontem" or "+Salário 3500"
type QuickCaptureParser struct {
	amountRegex     *regexp.Regexp
	defaultCurrency string
}

// NewQuickCaptureParser creates a parser; amounts without a symbol use defaultCurrency
func NewQuickCaptureParser(defaultCurrency string) *QuickCaptureParser {
	// Groups: (currency_prefix)(amount)(currency_suffix)
	amountPattern := `(?i)(?:(R\$|US\$|\$|€|BRL|USD|EUR)\s*)?(\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?)\s*(R\$|US\$|\$|€|BRL|USD|EUR)?`
	if defaultCurrency == "" {
		defaultCurrency = money.BRL
	}
	return &QuickCaptureParser{
		amountRegex:     regexp.MustCompile(amountPattern),
		defaultCurrency: defaultCurrency,
	}
}

var relativeDays = map[string]int{
	"hoje":      0,
	"today":     0,
	"ontem":     -1,
	"yesterday": -1,
	"anteontem": -2,
}

// Parse extracts a transaction from text. now anchors relative dates.
func (p *QuickCaptureParser) Parse(rawText string, now time.Time) ParsedTransaction {
	result := ParsedTransaction{
		RawText:  rawText,
		Type:     "expense",
		Currency: p.defaultCurrency,
		Date:     dateOnly(now),
	}

	text := strings.TrimSpace(rawText)
	if strings.HasPrefix(text, "+") {
		result.Type = "income"
		text = strings.TrimSpace(strings.TrimPrefix(text, "+"))
	}

	text = p.extractDate(text, now, &result)

	matches := p.amountRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		result.Description = cleanDescription(text)
		return result
	}

	// The last number is most likely the amount
	match := matches[len(matches)-1]
	if amount, err := money.ParseAmount(text[match[4]:match[5]]); err == nil {
		result.Amount = amount.Abs()
	}
	if c := currencyOf(text, match); c != "" {
		result.Currency = c
	}

	result.Description = cleanDescription(text[:match[0]] + " " + text[match[1]:])
	return result
}

func (p *QuickCaptureParser) extractDate(text string, now time.Time, result *ParsedTransaction) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if offset, ok := relativeDays[strings.ToLower(w)]; ok {
			result.Date = dateOnly(now).AddDate(0, 0, offset)
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func currencyOf(text string, match []int) string {
	for _, group := range [][2]int{{match[2], match[3]}, {match[6], match[7]}} {
		if group[0] == -1 {
			continue
		}
		switch strings.ToUpper(text[group[0]:group[1]]) {
		case "R$", "BRL":
			return money.BRL
		case "$", "US$", "USD":
			return money.USD
		case "€", "EUR":
			return money.EUR
		}
	}
	return ""
}

func cleanDescription(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		return desc
	}
	r := []rune(desc)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
