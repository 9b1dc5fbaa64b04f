package textract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

// Confidence levels of the rule-based parser. A labelled value is trusted more than a positional guess.
const (
	confLabelled   = 0.95
	confExactDate  = 0.95
	confDate       = 0.85
	confCode       = 0.95
	confSymbol     = 0.85
	confDefault    = 0.6
	confPositional = 0.7
	confItemQty    = 0.9
	confItem       = 0.8
)

const amountExpr = `-?(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2}`

var (
	itemPattern = regexp.MustCompile(`^(.+?)\s+(?:(\d+(?:[.,]\d+)?)\s*[xX×*]\s*(` + amountExpr + `)\s+)?(` + amountExpr + `)$`)

	currencyCode = regexp.MustCompile(`\b(EUR|USD|GBP|CHF|BRL|CAD|AUD|JPY|PLN|SEK|NOK|DKK)\b`)

	currencySymbols = map[string]string{"€": "EUR", "£": "GBP", "$": "USD", "R$": "BRL"}

	// R$ must be looked at before $.
	symbolOrder = []string{"R$", "€", "£", "$"}
)

func parseReceipt(lines []string, p *Profile) *document.ReceiptData {
	rc := &document.ReceiptData{
		Currency: detectCurrency(lines, p),
	}

	for _, line := range lines {
		if dates, exact := findDates(line); len(dates) > 0 {
			conf := confDate
			if exact {
				conf = confExactDate
			}

			rc.TransactionDate = document.NewField(dates[0], conf)

			break
		}
	}

	merchantIdx := -1
	totalIdx := len(lines)

	for i, line := range lines {
		lower := strings.ToLower(line)

		if l := matchLabel(lower, p.Merchant); l != "" && rc.Merchant == nil {
			if v := labelValue(line, l); v != "" {
				rc.Merchant = document.NewField(v, confLabelled)
				merchantIdx = i
			}

			continue
		}

		if matchLabel(lower, p.Subtotal) != "" || matchLabel(lower, p.Total) == "" {
			continue
		}

		amount, ok := lastAmount(line)
		if !ok {
			continue
		}

		// Tax summaries are often labelled "total" too; the grand total is the largest.
		if rc.Total == nil || amount.GreaterThan(rc.Total.Value) {
			rc.Total = document.NewField(amount, confLabelled)
			totalIdx = i
		}
	}

	if rc.Merchant == nil {
		for i, line := range lines[:min(3, len(lines))] {
			if looksLikeName(line) {
				rc.Merchant = document.NewField(line, confPositional)
				merchantIdx = i

				break
			}
		}
	}

	start := merchantIdx + 1
	if start > totalIdx {
		start = 0
	}

	for _, line := range lines[start:totalIdx] {
		if item, ok := parseItem(line, p); ok {
			rc.Items = append(rc.Items, item)
		}
	}

	return rc
}

func parseItem(line string, p *Profile) (document.LineItem, bool) {
	lower := strings.ToLower(line)
	if matchLabel(lower, p.Subtotal) != "" || matchLabel(lower, p.Total) != "" || matchLabel(lower, p.NonItem) != "" {
		return document.LineItem{}, false
	}

	if dates, _ := findDates(line); len(dates) > 0 {
		return document.LineItem{}, false
	}

	m := itemPattern.FindStringSubmatch(stripCurrency(line))
	if m == nil || !strings.ContainsFunc(m[1], unicode.IsLetter) {
		return document.LineItem{}, false
	}

	total, err := parseAmount(m[4])
	if err != nil {
		return document.LineItem{}, false
	}

	item := document.LineItem{
		Name:       strings.TrimSpace(m[1]),
		Quantity:   decimal.NewFromInt(1),
		UnitPrice:  total,
		LineTotal:  total,
		Confidence: confItem,
	}

	if m[2] != "" {
		qty, qErr := decimal.NewFromString(strings.ReplaceAll(m[2], ",", "."))
		unit, uErr := parseAmount(m[3])

		if qErr == nil && uErr == nil {
			item.Quantity = qty
			item.UnitPrice = unit
			item.Confidence = confItemQty
		}
	}

	return item, true
}

func detectCurrency(lines []string, p *Profile) *document.Field[string] {
	text := strings.Join(lines, "\n")

	if m := currencyCode.FindString(text); m != "" {
		return document.NewField(m, confCode)
	}

	for _, sym := range symbolOrder {
		if strings.Contains(text, sym) {
			return document.NewField(currencySymbols[sym], confSymbol)
		}
	}

	if p.Currency != "" {
		return document.NewField(p.Currency, confDefault)
	}

	return nil
}

func stripCurrency(line string) string {
	line = currencyCode.ReplaceAllString(line, "")
	for _, sym := range symbolOrder {
		line = strings.ReplaceAll(line, sym, "")
	}

	return strings.Join(strings.Fields(line), " ")
}

func looksLikeName(line string) bool {
	if _, ok := lastAmount(line); ok {
		return false
	}

	if dates, _ := findDates(line); len(dates) > 0 {
		return false
	}

	return strings.ContainsFunc(line, unicode.IsLetter)
}
