package textract

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

const (
	confAmount       = 0.93
	confDeduction    = 0.88
	confPeriod       = 0.9
	confInconsistent = 0.5
)

func parsePayslip(lines []string, p *Profile) *document.PayslipData {
	ps := &document.PayslipData{
		Currency: detectCurrency(lines, p),
	}

	for _, line := range lines {
		lower := strings.ToLower(line)

		if l := matchLabel(lower, p.Employer); l != "" {
			if v := labelValue(line, l); v != "" && ps.Employer == nil {
				ps.Employer = document.NewField(v, confLabelled)
			}

			continue
		}

		if l := matchLabel(lower, p.PayPeriod); l != "" {
			setPeriod(ps, line, confPeriod)
			continue
		}

		amount, ok := lastAmount(line)
		if !ok {
			continue
		}

		switch {
		case matchLabel(lower, p.Gross) != "":
			ps.Gross = document.NewField(amount.Abs(), confAmount)
		case matchLabel(lower, p.Net) != "":
			ps.Net = document.NewField(amount.Abs(), confAmount)
		case matchLabel(lower, p.Deductions) != "":
			if ps.Deductions == nil {
				ps.Deductions = make(map[string]document.Field[decimal.Decimal])
			}

			ps.Deductions[deductionKey(line)] = document.Field[decimal.Decimal]{Value: amount.Abs(), Confidence: confDeduction}
		}
	}

	if ps.Employer == nil && len(lines) > 0 && looksLikeName(lines[0]) {
		ps.Employer = document.NewField(lines[0], confPositional)
	}

	if ps.PayPeriodEnd == nil {
		for _, line := range lines {
			if dates, _ := findDates(line); len(dates) >= 2 {
				setPeriod(ps, line, confPositional)
				break
			}
		}
	}

	if ps.Gross != nil && ps.Net != nil && ps.Gross.Value.LessThan(ps.Net.Value) {
		ps.Gross.Confidence = confInconsistent
		ps.Net.Confidence = confInconsistent
	}

	return ps
}

func setPeriod(ps *document.PayslipData, line string, conf float64) {
	dates, exact := findDates(line)
	if !exact {
		conf -= 0.05
	}

	switch len(dates) {
	case 0:
		return
	case 1:
		ps.PayPeriodEnd = document.NewField(dates[0], conf)
	default:
		ps.PayPeriodStart = document.NewField(dates[0], conf)
		ps.PayPeriodEnd = document.NewField(dates[len(dates)-1], conf)
	}
}

// deductionKey turns "Income tax (20%): 500,00" into "income_tax".
func deductionKey(line string) string {
	loc := amountPattern.FindStringIndex(line)

	label := line
	if loc != nil {
		label = line[:loc[0]]
	}

	if i := strings.IndexAny(label, ":(0123456789"); i >= 0 {
		label = label[:i]
	}

	return strings.Join(strings.Fields(strings.ToLower(label)), "_")
}
