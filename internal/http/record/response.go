package record

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/record"
)

type expenseItemResponse struct {
	Position    int             `json:"position"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Category    string          `json:"category,omitempty"`
	Subcategory string          `json:"subcategory,omitempty"`
}

type expenseResponse struct {
	ID                  uuid.UUID             `json:"id"`
	DocumentID          *uuid.UUID            `json:"document_id,omitempty"`
	Amount              decimal.Decimal       `json:"amount"`
	Currency            string                `json:"currency"`
	Category            string                `json:"category"`
	Subcategory         string                `json:"subcategory,omitempty"`
	Merchant            string                `json:"merchant,omitempty"`
	Date                string                `json:"date"`
	Description         string                `json:"description,omitempty"`
	Verified            bool                  `json:"verified"`
	NeedsReview         bool                  `json:"needs_review"`
	ReconciliationDelta *decimal.Decimal      `json:"reconciliation_delta,omitempty"`
	Items               []expenseItemResponse `json:"items,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func toExpenseResponse(e *record.Expense) expenseResponse {
	resp := expenseResponse{
		ID:                  e.ID,
		DocumentID:          e.DocumentID,
		Amount:              e.Amount,
		Currency:            e.Currency,
		Category:            e.Category,
		Subcategory:         e.Subcategory,
		Merchant:            e.Merchant,
		Date:                e.Date.Format(time.DateOnly),
		Description:         e.Description,
		Verified:            e.Verified,
		NeedsReview:         e.NeedsReview,
		ReconciliationDelta: e.ReconciliationDelta,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}

	for _, it := range e.Items {
		resp.Items = append(resp.Items, expenseItemResponse(it))
	}

	return resp
}

type incomeResponse struct {
	ID          uuid.UUID                  `json:"id"`
	DocumentID  *uuid.UUID                 `json:"document_id,omitempty"`
	Source      string                     `json:"source"`
	GrossAmount *decimal.Decimal           `json:"gross_amount,omitempty"`
	NetAmount   decimal.Decimal            `json:"net_amount"`
	Currency    string                     `json:"currency"`
	Category    string                     `json:"category"`
	Subcategory string                     `json:"subcategory,omitempty"`
	PeriodStart *string                    `json:"period_start,omitempty"`
	PeriodEnd   *string                    `json:"period_end,omitempty"`
	Date        string                     `json:"date"`
	Deductions  map[string]decimal.Decimal `json:"deductions,omitempty"`
	Verified    bool                       `json:"verified"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func toIncomeResponse(in *record.Income) incomeResponse {
	return incomeResponse{
		ID:          in.ID,
		DocumentID:  in.DocumentID,
		Source:      in.Source,
		GrossAmount: in.GrossAmount,
		NetAmount:   in.NetAmount,
		Currency:    in.Currency,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		PeriodStart: dateOnly(in.PeriodStart),
		PeriodEnd:   dateOnly(in.PeriodEnd),
		Date:        in.Date.Format(time.DateOnly),
		Deductions:  in.Deductions,
		Verified:    in.Verified,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
}

func dateOnly(t *time.Time) *string {
	if t == nil {
		return nil
	}

	return new(t.Format(time.DateOnly))
}
