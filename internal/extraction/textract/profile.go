package textract

import (
	"strings"
)

// Profile describes the labels a family of receipts and payslips uses for each field.
// Adding a new language is just adding a new Profile to the profiles slice.
type Profile struct {
	Name     string
	Currency string // assumed when the document names none

	Merchant []string
	Total    []string
	Subtotal []string // lines that look like totals but are not
	NonItem  []string // payment and tax lines that must not become line items

	Employer   []string
	Gross      []string
	Net        []string
	PayPeriod  []string
	Deductions []string
}

// profiles is the ordered list of label sets tried during auto-detection. Labels are lower case;
// longer labels come first so "net pay" wins over "net".
var profiles = []Profile{
	{
		Name:       "en",
		Merchant:   []string{"merchant", "store", "shop"},
		Total:      []string{"amount due", "grand total", "total due", "total"},
		Subtotal:   []string{"subtotal", "sub-total", "sub total"},
		NonItem:    []string{"vat", "tax", "change", "cash", "card", "visa", "mastercard", "tip", "balance"},
		Employer:   []string{"employer", "company"},
		Gross:      []string{"gross pay", "gross salary", "total gross", "gross"},
		Net:        []string{"net pay", "net salary", "take home pay", "net"},
		PayPeriod:  []string{"pay period", "period"},
		Deductions: []string{"income tax", "social security", "national insurance", "pension", "health insurance", "tax"},
	},
	{
		Name:       "pt",
		Currency:   "EUR",
		Merchant:   []string{"loja", "estabelecimento"},
		Total:      []string{"total a pagar", "total"},
		Subtotal:   []string{"subtotal", "sub-total"},
		NonItem:    []string{"iva", "troco", "numerário", "multibanco", "cartão", "mb way"},
		Employer:   []string{"entidade patronal", "empresa", "entidade empregadora"},
		Gross:      []string{"total ilíquido", "vencimento ilíquido", "remuneração ilíquida", "ilíquido"},
		Net:        []string{"líquido a receber", "vencimento líquido", "total líquido", "líquido"},
		PayPeriod:  []string{"período", "periodo"},
		Deductions: []string{"segurança social", "retenção irs", "irs", "sindicato", "seguro"},
	},
}

// detectProfile picks the profile whose labels occur most often in the text. English wins ties.
func detectProfile(lines []string) *Profile {
	best, bestScore := &profiles[0], -1

	for i := range profiles {
		p := &profiles[i]
		score := 0

		for _, line := range lines {
			lower := strings.ToLower(line)

			for _, labels := range [][]string{p.Total, p.Employer, p.Gross, p.Net, p.Deductions, p.NonItem} {
				if matchLabel(lower, labels) != "" {
					score++
				}
			}
		}

		if score > bestScore {
			best, bestScore = p, score
		}
	}

	return best
}

// matchLabel returns the first label the lower-cased line starts with, followed by a separator or the end.
func matchLabel(lower string, labels []string) string {
	for _, l := range labels {
		rest, ok := strings.CutPrefix(lower, l)
		if !ok {
			continue
		}

		if rest == "" || strings.ContainsAny(rest[:1], " :.\t") {
			return l
		}
	}

	return ""
}

// labelValue returns what follows the label on the line, without the separator.
func labelValue(line, label string) string {
	v := line[len(label):]
	return strings.TrimSpace(strings.TrimLeft(v, " :.\t"))
}
