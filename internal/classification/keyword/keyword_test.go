package keyword_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/classification"
	"github.com/MrJamesThe3rd/docket/internal/classification/keyword"
	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/matching"
)

type stubSuggester struct {
	mapping *matching.Mapping
	err     error
}

func (s stubSuggester) Suggest(_ context.Context, _ uuid.UUID, _ string) (*matching.Mapping, error) {
	return s.mapping, s.err
}

func TestClassifier_Classify(t *testing.T) {
	rules, err := keyword.LoadRules("")
	require.NoError(t, err)

	type testCase struct {
		name    string
		learned keyword.Suggester
		in      classification.Input
		want    document.Classification
	}

	tests := []testCase{
		{
			name:    "LearnedMappingWins",
			learned: stubSuggester{mapping: &matching.Mapping{Category: "household", Subcategory: "cleaning"}},
			in:      classification.Input{Kind: document.KindReceipt, Merchant: "Continente Bom Dia"},
			want:    document.Classification{Category: "household", Subcategory: "cleaning", Confidence: keyword.LearnedConfidence},
		},
		{
			name: "MerchantKeywordIgnoresAccents",
			in:   classification.Input{Kind: document.KindReceipt, Merchant: "FARMÁCIA Central"},
			want: document.Classification{Category: "health", Subcategory: "pharmacy", Confidence: keyword.MerchantConfidence},
		},
		{
			name:    "LookupErrorFallsBackToRules",
			learned: stubSuggester{err: errors.New("db down")},
			in:      classification.Input{Kind: document.KindReceipt, Merchant: "Lidl & Cia"},
			want:    document.Classification{Category: "groceries", Subcategory: "supermarket", Confidence: keyword.MerchantConfidence},
		},
		{
			name: "ItemsVote",
			in: classification.Input{
				Kind:     document.KindReceipt,
				Merchant: "Loja do Bairro",
				Items:    []string{"Leite meio gordo", "Pão", "Cafe"},
			},
			want: document.Classification{Category: "groceries", Subcategory: "supermarket", Confidence: keyword.ItemConfidence},
		},
		{
			name: "WholeWordsOnly",
			in:   classification.Input{Kind: document.KindReceipt, Merchant: "BPI Agencia"},
			want: document.Classification{Category: "uncategorized", Confidence: 0.4},
		},
		{
			name: "PayslipFallback",
			in:   classification.Input{Kind: document.KindPayslip, Merchant: "Acme Lda"},
			want: document.Classification{Category: "salary", Subcategory: "employment", Confidence: 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyword.New(rules, tt.learned).Classify(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestClassifier_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := keyword.New(keyword.Rules{}, nil).Classify(ctx, classification.Input{Kind: document.KindReceipt})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	custom := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(custom, []byte(`
categories:
  - name: pets
    merchants: [zooplus]
`), 0o600))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("categories: [name: {"), 0o600))

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("categories:\n  - merchants: [x]\n"), 0o600))

	rules, err := keyword.LoadRules(custom)
	require.NoError(t, err)

	got, err := keyword.New(rules, nil).Classify(context.Background(), classification.Input{
		Kind:     document.KindPayslip,
		Merchant: "Zooplus GmbH",
	})
	require.NoError(t, err)
	assert.Equal(t, "pets", got.Category)

	_, err = keyword.LoadRules(broken)
	assert.Error(t, err)

	_, err = keyword.LoadRules(unnamed)
	assert.Error(t, err)

	_, err = keyword.LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
