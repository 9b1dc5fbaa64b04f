package document

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Correction field names accepted during verification.
const (
	FieldMerchant        = "merchant"
	FieldTotalAmount     = "total_amount"
	FieldCurrency        = "currency"
	FieldTransactionDate = "transaction_date"
	FieldEmployer        = "employer"
	FieldGrossAmount     = "gross_amount"
	FieldNetAmount       = "net_amount"
	FieldPayPeriodStart  = "pay_period_start"
	FieldPayPeriodEnd    = "pay_period_end"
	FieldCategory        = "category"
	FieldSubcategory     = "subcategory"

	lineItemsPrefix  = "line_items."
	deductionsPrefix = "deductions."
)

// Human-entered values are trusted fully.
const correctedConfidence = 1.0

// ApplyCorrections returns a corrected copy of r and one audit entry per field whose value actually changed.
// Keys are processed in sorted order so the audit trail is deterministic.
func ApplyCorrections(r *ExtractionResult, corrections map[string]string, actor Actor, now time.Time) (*ExtractionResult, []CorrectionAuditEntry, error) {
	out := r.Clone()
	if len(corrections) == 0 {
		return out, nil, nil
	}

	keys := make([]string, 0, len(corrections))
	for k := range corrections {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	verr := &ValidationError{}

	var entries []CorrectionAuditEntry

	for _, key := range keys {
		value := strings.TrimSpace(corrections[key])

		prev, next, err := applyOne(out, key, value)
		if err != nil {
			verr.Add(key, err.Error())
			continue
		}

		if prev == next {
			continue
		}

		entries = append(entries, CorrectionAuditEntry{
			Field:         key,
			PreviousValue: prev,
			NewValue:      next,
			ActorType:     actor.Type,
			ActorID:       actor.ID,
			CreatedAt:     now,
		})
	}

	if err := verr.Err(); err != nil {
		return nil, nil, err
	}

	return out, entries, nil
}

type correctionError string

func (e correctionError) Error() string { return string(e) }

const (
	errUnknownField  = correctionError("unknown field")
	errInvalidAmount = correctionError("must be a decimal amount")
	errInvalidDate   = correctionError("must be a date in YYYY-MM-DD format")
	errInvalidCode   = correctionError("must be a 3-letter currency code")
	errNoSuchItem    = correctionError("line item does not exist")
)

func applyOne(r *ExtractionResult, key, value string) (string, string, error) {
	switch key {
	case FieldCategory, FieldSubcategory:
		if r.Classification == nil {
			r.Classification = &Classification{}
		}

		target := &r.Classification.Category
		if key == FieldSubcategory {
			target = &r.Classification.Subcategory
		}

		prev := *target
		*target = value

		if prev != value {
			r.Classification.Confidence = correctedConfidence
		}

		return prev, value, nil
	}

	switch {
	case r.Receipt != nil:
		return applyReceipt(r.Receipt, key, value)
	case r.Payslip != nil:
		return applyPayslip(r.Payslip, key, value)
	}

	return "", "", errUnknownField
}

func applyReceipt(rc *ReceiptData, key, value string) (string, string, error) {
	switch key {
	case FieldMerchant:
		return setText(&rc.Merchant, value)
	case FieldTotalAmount:
		return setAmount(&rc.Total, value)
	case FieldCurrency:
		return setCurrency(&rc.Currency, value)
	case FieldTransactionDate:
		return setDate(&rc.TransactionDate, value)
	}

	if rest, ok := strings.CutPrefix(key, lineItemsPrefix); ok {
		return applyLineItem(rc, rest, value)
	}

	return "", "", errUnknownField
}

func applyPayslip(p *PayslipData, key, value string) (string, string, error) {
	switch key {
	case FieldEmployer:
		return setText(&p.Employer, value)
	case FieldGrossAmount:
		return setAmount(&p.Gross, value)
	case FieldNetAmount:
		return setAmount(&p.Net, value)
	case FieldCurrency:
		return setCurrency(&p.Currency, value)
	case FieldPayPeriodStart:
		return setDate(&p.PayPeriodStart, value)
	case FieldPayPeriodEnd:
		return setDate(&p.PayPeriodEnd, value)
	}

	label, ok := strings.CutPrefix(key, deductionsPrefix)
	if !ok || label == "" {
		return "", "", errUnknownField
	}

	prev := ""
	if d, found := p.Deductions[label]; found {
		prev = FormatAmount(d.Value)
	}

	if value == "" {
		delete(p.Deductions, label)
		return prev, "", nil
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return "", "", errInvalidAmount
	}

	if p.Deductions == nil {
		p.Deductions = make(map[string]Field[decimal.Decimal])
	}

	p.Deductions[label] = Field[decimal.Decimal]{Value: amount, Confidence: correctedConfidence}

	return prev, FormatAmount(amount), nil
}

// applyLineItem handles "<index>.<attribute>" keys.
func applyLineItem(rc *ReceiptData, rest, value string) (string, string, error) {
	idxStr, attr, ok := strings.Cut(rest, ".")
	if !ok {
		return "", "", errUnknownField
	}

	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 || idx >= len(rc.Items) {
		return "", "", errNoSuchItem
	}

	it := &rc.Items[idx]

	var prev, next string

	switch attr {
	case "name":
		prev, next = it.Name, value
		it.Name = value
	case "category":
		prev, next = it.Category, value
		it.Category = value
	case "quantity", "unit_price", "line_total":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return "", "", errInvalidAmount
		}

		target := map[string]*decimal.Decimal{
			"quantity":   &it.Quantity,
			"unit_price": &it.UnitPrice,
			"line_total": &it.LineTotal,
		}[attr]

		prev, next = target.String(), d.String()
		*target = d
	default:
		return "", "", errUnknownField
	}

	if prev != next {
		it.Confidence = correctedConfidence
	}

	return prev, next, nil
}

func setText(f **Field[string], value string) (string, string, error) {
	prev := ""
	if *f != nil {
		prev = (*f).Value
	}

	if value == "" {
		*f = nil
		return prev, "", nil
	}

	if prev != value {
		*f = NewField(value, correctedConfidence)
	}

	return prev, value, nil
}

func setCurrency(f **Field[string], value string) (string, string, error) {
	value = strings.ToUpper(value)
	if value != "" && !isCurrencyCode(value) {
		return "", "", errInvalidCode
	}

	return setText(f, value)
}

func setAmount(f **Field[decimal.Decimal], value string) (string, string, error) {
	prev := ""
	if *f != nil {
		prev = FormatAmount((*f).Value)
	}

	if value == "" {
		*f = nil
		return prev, "", nil
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return "", "", errInvalidAmount
	}

	next := FormatAmount(d)
	if prev != next {
		*f = NewField(d, correctedConfidence)
	}

	return prev, next, nil
}

func setDate(f **Field[time.Time], value string) (string, string, error) {
	prev := ""
	if *f != nil {
		prev = (*f).Value.Format(time.DateOnly)
	}

	if value == "" {
		*f = nil
		return prev, "", nil
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return "", "", errInvalidDate
	}

	if prev != value {
		*f = NewField(t, correctedConfidence)
	}

	return prev, t.Format(time.DateOnly), nil
}

// FormatAmount renders money with two decimals, the representation used in audit entries.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}

	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}

	return true
}
