package document

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Field is an extracted value together with the extractor's confidence in it.
type Field[T any] struct {
	Value      T       `json:"value"`
	Confidence float64 `json:"confidence"`
}

func NewField[T any](v T, confidence float64) *Field[T] {
	return &Field[T]{Value: v, Confidence: confidence}
}

// ExtractionResult holds the structured field candidates produced for a document before verification.
// Exactly one of Receipt and Payslip is set, matching Kind.
type ExtractionResult struct {
	Kind           Kind            `json:"kind"`
	Receipt        *ReceiptData    `json:"receipt,omitempty"`
	Payslip        *PayslipData    `json:"payslip,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	RawText        string          `json:"raw_text,omitempty"`
	ExtractedAt    time.Time       `json:"extracted_at"`
}

type ReceiptData struct {
	Merchant        *Field[string]          `json:"merchant,omitempty"`
	Total           *Field[decimal.Decimal] `json:"total_amount,omitempty"`
	Currency        *Field[string]          `json:"currency,omitempty"`
	TransactionDate *Field[time.Time]       `json:"transaction_date,omitempty"`
	Items           []LineItem              `json:"line_items,omitempty"`
}

type LineItem struct {
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Category   string          `json:"category,omitempty"`
	Confidence float64         `json:"confidence"`
}

type PayslipData struct {
	Employer       *Field[string]                     `json:"employer,omitempty"`
	Gross          *Field[decimal.Decimal]            `json:"gross_amount,omitempty"`
	Net            *Field[decimal.Decimal]            `json:"net_amount,omitempty"`
	Currency       *Field[string]                     `json:"currency,omitempty"`
	PayPeriodStart *Field[time.Time]                  `json:"pay_period_start,omitempty"`
	PayPeriodEnd   *Field[time.Time]                  `json:"pay_period_end,omitempty"`
	Deductions     map[string]Field[decimal.Decimal] `json:"deductions,omitempty"`
}

// Classification is the category decision attached to an extraction.
type Classification struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ExtractionConfidence is the minimum confidence over every present field, line item and deduction.
// A result without any field scores 0.
func (r *ExtractionResult) ExtractionConfidence() float64 {
	lowest := math.Inf(1)

	observe := func(c float64) {
		lowest = math.Min(lowest, c)
	}

	switch {
	case r.Receipt != nil:
		rc := r.Receipt
		observeField(rc.Merchant, observe)
		observeField(rc.Total, observe)
		observeField(rc.Currency, observe)
		observeField(rc.TransactionDate, observe)

		for _, it := range rc.Items {
			observe(it.Confidence)
		}
	case r.Payslip != nil:
		p := r.Payslip
		observeField(p.Employer, observe)
		observeField(p.Gross, observe)
		observeField(p.Net, observe)
		observeField(p.Currency, observe)
		observeField(p.PayPeriodStart, observe)
		observeField(p.PayPeriodEnd, observe)

		for _, d := range p.Deductions {
			observe(d.Confidence)
		}
	}

	if math.IsInf(lowest, 1) {
		return 0
	}

	return clamp(lowest)
}

// AggregateConfidence is the value used for threshold decisions: the pipeline is only as confident
// as its least confident stage.
func (r *ExtractionResult) AggregateConfidence() float64 {
	c := r.ExtractionConfidence()
	if r.Classification != nil {
		c = math.Min(c, clamp(r.Classification.Confidence))
	}

	return c
}

// MerchantText returns the text the classifier works on: merchant or employer name.
func (r *ExtractionResult) MerchantText() string {
	switch {
	case r.Receipt != nil && r.Receipt.Merchant != nil:
		return r.Receipt.Merchant.Value
	case r.Payslip != nil && r.Payslip.Employer != nil:
		return r.Payslip.Employer.Value
	}

	return ""
}

// ItemNames returns the receipt line item names in order.
func (r *ExtractionResult) ItemNames() []string {
	if r.Receipt == nil {
		return nil
	}

	names := make([]string, 0, len(r.Receipt.Items))
	for _, it := range r.Receipt.Items {
		names = append(names, it.Name)
	}

	return names
}

// Clone returns a deep copy so corrections never alter the stored candidate.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}

	out := *r

	if r.Receipt != nil {
		rc := *r.Receipt
		rc.Merchant = cloneField(r.Receipt.Merchant)
		rc.Total = cloneField(r.Receipt.Total)
		rc.Currency = cloneField(r.Receipt.Currency)
		rc.TransactionDate = cloneField(r.Receipt.TransactionDate)
		rc.Items = slices.Clone(r.Receipt.Items)
		out.Receipt = &rc
	}

	if r.Payslip != nil {
		p := *r.Payslip
		p.Employer = cloneField(r.Payslip.Employer)
		p.Gross = cloneField(r.Payslip.Gross)
		p.Net = cloneField(r.Payslip.Net)
		p.Currency = cloneField(r.Payslip.Currency)
		p.PayPeriodStart = cloneField(r.Payslip.PayPeriodStart)
		p.PayPeriodEnd = cloneField(r.Payslip.PayPeriodEnd)
		p.Deductions = maps.Clone(r.Payslip.Deductions)
		out.Payslip = &p
	}

	if r.Classification != nil {
		c := *r.Classification
		out.Classification = &c
	}

	return &out
}

func observeField[T any](f *Field[T], observe func(float64)) {
	if f != nil {
		observe(f.Confidence)
	}
}

func cloneField[T any](f *Field[T]) *Field[T] {
	if f == nil {
		return nil
	}

	c := *f

	return &c
}

func clamp(c float64) float64 {
	return math.Max(0, math.Min(1, c))
}
