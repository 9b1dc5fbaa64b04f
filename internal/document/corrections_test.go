package document_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

func payslipResult() *document.ExtractionResult {
	return &document.ExtractionResult{
		Kind: document.KindPayslip,
		Payslip: &document.PayslipData{
			Employer:     document.NewField("Acme Corp", 0.95),
			Gross:        document.NewField(decimal.RequireFromString("3200.00"), 0.93),
			Net:          document.NewField(decimal.RequireFromString("2600.00"), 0.72),
			Currency:     document.NewField("EUR", 0.99),
			PayPeriodEnd: document.NewField(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 0.9),
		},
		Classification: &document.Classification{Category: "salary", Confidence: 0.9},
	}
}

func TestApplyCorrections(t *testing.T) {
	now := time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC)
	reviewer := document.Actor{Type: document.ActorReviewer, ID: "rev-1"}

	type testCase struct {
		name        string
		corrections map[string]string
		wantFields  []string
		check       func(t *testing.T, r *document.ExtractionResult)
		wantErr     bool
	}

	tests := []testCase{
		{
			name:        "NetAmountCorrected",
			corrections: map[string]string{"net_amount": "2650.00"},
			wantFields:  []string{"net_amount"},
			check: func(t *testing.T, r *document.ExtractionResult) {
				assert.True(t, r.Payslip.Net.Value.Equal(decimal.RequireFromString("2650")))
				assert.Equal(t, 1.0, r.Payslip.Net.Confidence)
			},
		},
		{
			name:        "UnchangedValueHasNoEntry",
			corrections: map[string]string{"net_amount": "2600", "employer": "Acme Corp"},
			wantFields:  nil,
			check: func(t *testing.T, r *document.ExtractionResult) {
				assert.Equal(t, 0.72, r.Payslip.Net.Confidence)
			},
		},
		{
			name:        "SortedKeys",
			corrections: map[string]string{"pay_period_start": "2025-01-01", "category": "bonus", "deductions.tax": "600"},
			wantFields:  []string{"category", "deductions.tax", "pay_period_start"},
			check: func(t *testing.T, r *document.ExtractionResult) {
				assert.Equal(t, "bonus", r.Classification.Category)
				assert.Equal(t, 1.0, r.Classification.Confidence)
				assert.True(t, r.Payslip.Deductions["tax"].Value.Equal(decimal.NewFromInt(600)))
				assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), r.Payslip.PayPeriodStart.Value)
			},
		},
		{
			name:        "EmptyClears",
			corrections: map[string]string{"gross_amount": ""},
			wantFields:  []string{"gross_amount"},
			check: func(t *testing.T, r *document.ExtractionResult) {
				assert.Nil(t, r.Payslip.Gross)
			},
		},
		{
			name:        "CurrencyUppercased",
			corrections: map[string]string{"currency": "usd"},
			wantFields:  []string{"currency"},
			check: func(t *testing.T, r *document.ExtractionResult) {
				assert.Equal(t, "USD", r.Payslip.Currency.Value)
			},
		},
		{
			name:        "UnknownField",
			corrections: map[string]string{"merchant": "Lidl"},
			wantErr:     true,
		},
		{
			name:        "BadAmount",
			corrections: map[string]string{"net_amount": "lots"},
			wantErr:     true,
		},
		{
			name:        "BadDate",
			corrections: map[string]string{"pay_period_end": "31/01/2025"},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := payslipResult()

			got, entries, err := document.ApplyCorrections(orig, tt.corrections, reviewer, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, document.ErrValidation))

				var verr *document.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.NotEmpty(t, verr.Problems)

				return
			}

			require.NoError(t, err)

			var fields []string
			for _, e := range entries {
				fields = append(fields, e.Field)
				assert.Equal(t, document.ActorReviewer, e.ActorType)
				assert.Equal(t, "rev-1", e.ActorID)
				assert.Equal(t, now, e.CreatedAt)
			}

			assert.Equal(t, tt.wantFields, fields)

			if tt.check != nil {
				tt.check(t, got)
			}

			assert.True(t, orig.Payslip.Net.Value.Equal(decimal.RequireFromString("2600")), "original must stay untouched")
		})
	}
}

func TestApplyCorrections_AuditValues(t *testing.T) {
	_, entries, err := document.ApplyCorrections(payslipResult(), map[string]string{"net_amount": "2650"},
		document.SystemActor, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "2600.00", entries[0].PreviousValue)
	assert.Equal(t, "2650.00", entries[0].NewValue)
	assert.Equal(t, document.ActorSystem, entries[0].ActorType)
}

func TestApplyCorrections_LineItems(t *testing.T) {
	r := &document.ExtractionResult{
		Kind: document.KindReceipt,
		Receipt: &document.ReceiptData{
			Merchant: document.NewField("Lidl", 0.9),
			Items: []document.LineItem{
				{Name: "Mlk", Quantity: decimal.NewFromInt(1), LineTotal: decimal.RequireFromString("1.20"), Confidence: 0.6},
			},
		},
	}

	got, entries, err := document.ApplyCorrections(r, map[string]string{
		"line_items.0.name":       "Milk",
		"line_items.0.line_total": "1.25",
	}, document.Actor{Type: document.ActorReviewer, ID: "r"}, time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "Milk", got.Receipt.Items[0].Name)
	assert.True(t, got.Receipt.Items[0].LineTotal.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, 1.0, got.Receipt.Items[0].Confidence)

	_, _, err = document.ApplyCorrections(r, map[string]string{"line_items.3.name": "X"},
		document.Actor{Type: document.ActorReviewer, ID: "r"}, time.Now())
	assert.ErrorIs(t, err, document.ErrValidation)
}
