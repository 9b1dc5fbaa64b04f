package textract

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// amountPattern matches money with exactly two decimals in either "1.234,56" or "1,234.56" notation.
var amountPattern = regexp.MustCompile(`-?(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2}`)

// parseAmount reads an amount written with either comma or dot as decimal separator.
// Format examples: "1.234,56" -> 1234.56, "1,234.56" -> 1234.56, "-588,74" -> -588.74, "10,00" -> 10.
// A lone separator followed by exactly three digits is read as a thousands separator.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)

	negative := strings.HasPrefix(clean, "-") || strings.HasSuffix(clean, "-")
	clean = strings.Trim(clean, "-+ ")

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	var decimalSep, thousandsSep string

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			decimalSep, thousandsSep = ",", "."
		} else {
			decimalSep, thousandsSep = ".", ","
		}
	case lastComma >= 0:
		decimalSep, thousandsSep = separatorRole(clean, ",")
	case lastDot >= 0:
		decimalSep, thousandsSep = separatorRole(clean, ".")
	}

	if thousandsSep != "" {
		clean = strings.ReplaceAll(clean, thousandsSep, "")
	}

	if decimalSep == "," {
		clean = strings.ReplaceAll(clean, ",", ".")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, err
	}

	if negative {
		d = d.Neg()
	}

	return d, nil
}

func separatorRole(s, sep string) (string, string) {
	if strings.Count(s, sep) > 1 {
		return "", sep
	}

	if len(s)-strings.LastIndex(s, sep)-1 == 3 {
		return "", sep
	}

	return sep, ""
}

// lastAmount returns the right-most amount on a line, which on receipts and payslips is the value column.
func lastAmount(line string) (decimal.Decimal, bool) {
	matches := amountPattern.FindAllString(stripDates(line), -1)
	if len(matches) == 0 {
		return decimal.Zero, false
	}

	d, err := parseAmount(matches[len(matches)-1])
	if err != nil {
		return decimal.Zero, false
	}

	return d, true
}

var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
	exact  bool
}{
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "2006-01-02", true},
	{regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), "02/01/2006", false},
	{regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`), "02.01.2006", false},
	{regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`), "02-01-2006", false},
}

// findDates returns every date on the line in order of appearance. Day-first layouts are ambiguous for
// US-style receipts, which is reflected by exact=false.
func findDates(line string) ([]time.Time, bool) {
	type hit struct {
		at int
		t  time.Time
	}

	var hits []hit

	exact := true

	for _, p := range datePatterns {
		for _, loc := range p.re.FindAllStringIndex(line, -1) {
			t, err := time.Parse(p.layout, line[loc[0]:loc[1]])
			if err != nil {
				continue
			}

			hits = append(hits, hit{at: loc[0], t: t})
			exact = exact && p.exact
		}
	}

	slices.SortFunc(hits, func(a, b hit) int { return a.at - b.at })

	dates := make([]time.Time, len(hits))
	for i, h := range hits {
		dates[i] = h.t
	}

	return dates, exact
}

func stripDates(line string) string {
	for _, p := range datePatterns {
		line = p.re.ReplaceAllString(line, " ")
	}

	return line
}
