package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=record
type Repository interface {
	CreateExpense(ctx context.Context, e *Expense) error
	GetExpense(ctx context.Context, ownerID, id uuid.UUID) (*Expense, error)
	ListExpenses(ctx context.Context, filter ListFilter) ([]*Expense, error)
	UpdateExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, ownerID, id uuid.UUID) error

	CreateIncome(ctx context.Context, i *Income) error
	GetIncome(ctx context.Context, ownerID, id uuid.UUID) (*Income, error)
	ListIncomes(ctx context.Context, filter ListFilter) ([]*Income, error)
	UpdateIncome(ctx context.Context, i *Income) error
	DeleteIncome(ctx context.Context, ownerID, id uuid.UUID) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ListFilter struct {
	OwnerID   uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Category  *string
}

type ExpenseParams struct {
	OwnerID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Subcategory string
	Merchant    string
	Date        time.Time
	Description string
}

// ExpenseUpdate changes only the non-nil fields.
type ExpenseUpdate struct {
	Amount      *decimal.Decimal
	Currency    *string
	Category    *string
	Subcategory *string
	Merchant    *string
	Date        *time.Time
	Description *string
}

type IncomeParams struct {
	OwnerID     uuid.UUID
	Source      string
	GrossAmount *decimal.Decimal
	NetAmount   decimal.Decimal
	Currency    string
	Category    string
	Subcategory string
	Date        time.Time
}

type IncomeUpdate struct {
	Source      *string
	GrossAmount *decimal.Decimal
	NetAmount   *decimal.Decimal
	Currency    *string
	Category    *string
	Subcategory *string
	Date        *time.Time
}

func (s *Service) CreateExpense(ctx context.Context, params ExpenseParams) (*Expense, error) {
	e := &Expense{
		OwnerID:     params.OwnerID,
		Amount:      params.Amount,
		Currency:    strings.ToUpper(params.Currency),
		Category:    params.Category,
		Subcategory: params.Subcategory,
		Merchant:    params.Merchant,
		Date:        params.Date,
		Description: params.Description,
		Verified:    true,
	}

	if err := validateExpense(e); err != nil {
		return nil, err
	}

	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	return e, nil
}

func (s *Service) GetExpense(ctx context.Context, ownerID, id uuid.UUID) (*Expense, error) {
	return s.repo.GetExpense(ctx, ownerID, id)
}

func (s *Service) ListExpenses(ctx context.Context, filter ListFilter) ([]*Expense, error) {
	return s.repo.ListExpenses(ctx, filter)
}

// UpdateExpense edits a record. Edits to derived records never touch the source document or its audit trail.
func (s *Service) UpdateExpense(ctx context.Context, ownerID, id uuid.UUID, upd ExpenseUpdate) (*Expense, error) {
	e, err := s.repo.GetExpense(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Amount != nil {
		e.Amount = *upd.Amount
	}

	if upd.Currency != nil {
		e.Currency = strings.ToUpper(*upd.Currency)
	}

	if upd.Category != nil {
		e.Category = *upd.Category
	}

	if upd.Subcategory != nil {
		e.Subcategory = *upd.Subcategory
	}

	if upd.Merchant != nil {
		e.Merchant = *upd.Merchant
	}

	if upd.Date != nil {
		e.Date = *upd.Date
	}

	if upd.Description != nil {
		e.Description = *upd.Description
	}

	if err := validateExpense(e); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}

	return e, nil
}

// DeleteExpense removes a manual expense. Expenses derived from a document stay as long as the document is verified.
func (s *Service) DeleteExpense(ctx context.Context, ownerID, id uuid.UUID) error {
	e, err := s.repo.GetExpense(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if e.Derived() {
		return ErrDerived
	}

	return s.repo.DeleteExpense(ctx, ownerID, id)
}

func (s *Service) CreateIncome(ctx context.Context, params IncomeParams) (*Income, error) {
	in := &Income{
		OwnerID:     params.OwnerID,
		Source:      params.Source,
		GrossAmount: params.GrossAmount,
		NetAmount:   params.NetAmount,
		Currency:    strings.ToUpper(params.Currency),
		Category:    params.Category,
		Subcategory: params.Subcategory,
		Date:        params.Date,
		Verified:    true,
	}

	if err := validateIncome(in); err != nil {
		return nil, err
	}

	if err := s.repo.CreateIncome(ctx, in); err != nil {
		return nil, fmt.Errorf("create income: %w", err)
	}

	return in, nil
}

func (s *Service) GetIncome(ctx context.Context, ownerID, id uuid.UUID) (*Income, error) {
	return s.repo.GetIncome(ctx, ownerID, id)
}

func (s *Service) ListIncomes(ctx context.Context, filter ListFilter) ([]*Income, error) {
	return s.repo.ListIncomes(ctx, filter)
}

func (s *Service) UpdateIncome(ctx context.Context, ownerID, id uuid.UUID, upd IncomeUpdate) (*Income, error) {
	in, err := s.repo.GetIncome(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Source != nil {
		in.Source = *upd.Source
	}

	if upd.GrossAmount != nil {
		in.GrossAmount = upd.GrossAmount
	}

	if upd.NetAmount != nil {
		in.NetAmount = *upd.NetAmount
	}

	if upd.Currency != nil {
		in.Currency = strings.ToUpper(*upd.Currency)
	}

	if upd.Category != nil {
		in.Category = *upd.Category
	}

	if upd.Subcategory != nil {
		in.Subcategory = *upd.Subcategory
	}

	if upd.Date != nil {
		in.Date = *upd.Date
	}

	if err := validateIncome(in); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateIncome(ctx, in); err != nil {
		return nil, fmt.Errorf("update income: %w", err)
	}

	return in, nil
}

func (s *Service) DeleteIncome(ctx context.Context, ownerID, id uuid.UUID) error {
	in, err := s.repo.GetIncome(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if in.Derived() {
		return ErrDerived
	}

	return s.repo.DeleteIncome(ctx, ownerID, id)
}

func validateExpense(e *Expense) error {
	verr := &document.ValidationError{}

	if !e.Amount.IsPositive() {
		verr.Add("amount", "must be greater than zero")
	}

	validateCommon(verr, e.Currency, e.Category, e.Date)

	return verr.Err()
}

func validateIncome(in *Income) error {
	verr := &document.ValidationError{}

	if strings.TrimSpace(in.Source) == "" {
		verr.Add("source", "is required")
	}

	if !in.NetAmount.IsPositive() {
		verr.Add("net_amount", "must be greater than zero")
	}

	if in.GrossAmount != nil && in.GrossAmount.LessThan(in.NetAmount) {
		verr.Add("gross_amount", "must not be lower than the net amount")
	}

	validateCommon(verr, in.Currency, in.Category, in.Date)

	return verr.Err()
}

func validateCommon(verr *document.ValidationError, currency, category string, date time.Time) {
	if len(currency) != 3 {
		verr.Add("currency", "must be a 3-letter currency code")
	}

	if strings.TrimSpace(category) == "" {
		verr.Add("category", "is required")
	}

	if date.IsZero() {
		verr.Add("date", "is required")
	}
}
