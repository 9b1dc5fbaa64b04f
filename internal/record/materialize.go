package record

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

// DefaultTolerance is the allowed gap between a receipt total and the sum of its line items.
var DefaultTolerance = decimal.RequireFromString("0.05")

type Policy struct {
	Tolerance decimal.Decimal
}

// Materialize maps a verified extraction result into the financial record it describes. It is pure:
// nothing is persisted and the same input always yields the same record.
// Missing required fields are reported together as a *document.ValidationError keyed by correction field name.
func Materialize(doc *document.Document, r *document.ExtractionResult, p Policy) (*Materialized, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: document has no extraction result", document.ErrValidation)
	}

	if r.Kind != doc.Kind {
		return nil, fmt.Errorf("%w: extraction kind %s does not match document kind %s", document.ErrValidation, r.Kind, doc.Kind)
	}

	switch doc.Kind {
	case document.KindReceipt:
		e, err := materializeExpense(doc, r, p)
		if err != nil {
			return nil, err
		}

		return &Materialized{Expense: e}, nil
	case document.KindPayslip:
		i, err := materializeIncome(doc, r)
		if err != nil {
			return nil, err
		}

		return &Materialized{Income: i}, nil
	}

	return nil, fmt.Errorf("%w: unknown document kind %q", document.ErrValidation, doc.Kind)
}

func materializeExpense(doc *document.Document, r *document.ExtractionResult, p Policy) (*Expense, error) {
	rc := r.Receipt
	if rc == nil {
		rc = &document.ReceiptData{}
	}

	verr := &document.ValidationError{}
	category, subcategory := classificationOf(r, verr)

	if rc.Merchant == nil || strings.TrimSpace(rc.Merchant.Value) == "" {
		verr.Add(document.FieldMerchant, "is required")
	}

	if rc.Total == nil {
		verr.Add(document.FieldTotalAmount, "is required")
	} else if !rc.Total.Value.IsPositive() {
		verr.Add(document.FieldTotalAmount, "must be greater than zero")
	}

	if rc.Currency == nil || rc.Currency.Value == "" {
		verr.Add(document.FieldCurrency, "is required")
	}

	if rc.TransactionDate == nil {
		verr.Add(document.FieldTransactionDate, "is required")
	}

	for i, it := range rc.Items {
		if strings.TrimSpace(it.Name) == "" {
			verr.Add(fmt.Sprintf("line_items.%d.name", i), "is required")
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	e := &Expense{
		OwnerID:     doc.OwnerID,
		DocumentID:  new(doc.ID),
		Amount:      rc.Total.Value,
		Currency:    rc.Currency.Value,
		Category:    category,
		Subcategory: subcategory,
		Merchant:    strings.TrimSpace(rc.Merchant.Value),
		Date:        rc.TransactionDate.Value,
		Description: doc.OriginalFilename,
		Verified:    true,
	}

	if len(rc.Items) == 0 {
		return e, nil
	}

	sum := decimal.Zero
	e.Items = make([]ExpenseItem, len(rc.Items))

	for i, it := range rc.Items {
		item := ExpenseItem{
			Position:   i,
			Name:       strings.TrimSpace(it.Name),
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.LineTotal,
			Category:   it.Category,
		}

		if item.Category == "" {
			item.Category = category
			item.Subcategory = subcategory
		}

		e.Items[i] = item
		sum = sum.Add(it.LineTotal)
	}

	if delta := sum.Sub(e.Amount); delta.Abs().GreaterThan(p.Tolerance) {
		e.NeedsReview = true
		e.ReconciliationDelta = &delta
	}

	return e, nil
}

func materializeIncome(doc *document.Document, r *document.ExtractionResult) (*Income, error) {
	ps := r.Payslip
	if ps == nil {
		ps = &document.PayslipData{}
	}

	verr := &document.ValidationError{}
	category, subcategory := classificationOf(r, verr)

	if ps.Employer == nil || strings.TrimSpace(ps.Employer.Value) == "" {
		verr.Add(document.FieldEmployer, "is required")
	}

	if ps.Net == nil {
		verr.Add(document.FieldNetAmount, "is required")
	} else if !ps.Net.Value.IsPositive() {
		verr.Add(document.FieldNetAmount, "must be greater than zero")
	}

	if ps.Net != nil && ps.Gross != nil && ps.Gross.Value.LessThan(ps.Net.Value) {
		verr.Add(document.FieldGrossAmount, "must not be lower than the net amount")
	}

	if ps.Currency == nil || ps.Currency.Value == "" {
		verr.Add(document.FieldCurrency, "is required")
	}

	if ps.PayPeriodEnd == nil {
		verr.Add(document.FieldPayPeriodEnd, "is required")
	}

	if ps.PayPeriodStart != nil && ps.PayPeriodEnd != nil && ps.PayPeriodStart.Value.After(ps.PayPeriodEnd.Value) {
		verr.Add(document.FieldPayPeriodStart, "must not be after the period end")
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	in := &Income{
		OwnerID:     doc.OwnerID,
		DocumentID:  new(doc.ID),
		Source:      strings.TrimSpace(ps.Employer.Value),
		NetAmount:   ps.Net.Value,
		Currency:    ps.Currency.Value,
		Category:    category,
		Subcategory: subcategory,
		PeriodEnd:   new(ps.PayPeriodEnd.Value),
		Date:        ps.PayPeriodEnd.Value,
		Verified:    true,
	}

	if ps.Gross != nil {
		in.GrossAmount = new(ps.Gross.Value)
	}

	if ps.PayPeriodStart != nil {
		in.PeriodStart = new(ps.PayPeriodStart.Value)
	}

	if len(ps.Deductions) > 0 {
		in.Deductions = make(map[string]decimal.Decimal, len(ps.Deductions))
		for label, d := range ps.Deductions {
			in.Deductions[label] = d.Value
		}
	}

	return in, nil
}

func classificationOf(r *document.ExtractionResult, verr *document.ValidationError) (string, string) {
	if r.Classification == nil || strings.TrimSpace(r.Classification.Category) == "" {
		verr.Add(document.FieldCategory, "is required")
		return "", ""
	}

	return strings.TrimSpace(r.Classification.Category), strings.TrimSpace(r.Classification.Subcategory)
}
