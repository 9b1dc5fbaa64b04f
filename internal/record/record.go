package record

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDerived  = errors.New("record is derived from a verified document")
)

// Kind tells which financial record a document produced.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Expense is money spent, either entered manually or derived from a verified receipt.
type Expense struct {
	ID                  uuid.UUID
	OwnerID             uuid.UUID
	DocumentID          *uuid.UUID // nil for manual entries
	Amount              decimal.Decimal
	Currency            string
	Category            string
	Subcategory         string
	Merchant            string
	Date                time.Time
	Description         string
	Verified            bool
	NeedsReview         bool
	ReconciliationDelta *decimal.Decimal
	Items               []ExpenseItem
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ExpenseItem struct {
	Position    int
	Name        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	Category    string
	Subcategory string
}

// Income is money received, usually derived from a verified payslip.
type Income struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	DocumentID  *uuid.UUID
	Source      string
	GrossAmount *decimal.Decimal
	NetAmount   decimal.Decimal
	Currency    string
	Category    string
	Subcategory string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Date        time.Time
	Deductions  map[string]decimal.Decimal
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Derived reports whether the expense came out of document verification.
func (e *Expense) Derived() bool {
	return e.DocumentID != nil
}

func (i *Income) Derived() bool {
	return i.DocumentID != nil
}

// Materialized is the single record produced for a verified document.
type Materialized struct {
	Expense *Expense
	Income  *Income
}

func (m *Materialized) Kind() Kind {
	if m.Income != nil {
		return KindIncome
	}

	return KindExpense
}

// ID is only known after the record was persisted.
func (m *Materialized) ID() uuid.UUID {
	if m.Income != nil {
		return m.Income.ID
	}

	return m.Expense.ID
}

func (m *Materialized) NeedsReview() bool {
	return m.Expense != nil && m.Expense.NeedsReview
}
