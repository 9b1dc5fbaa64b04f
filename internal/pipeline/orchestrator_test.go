package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/docket/internal/classification"
	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/extraction"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	"github.com/MrJamesThe3rd/docket/internal/memstore"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/storage"
)

type extractFunc func(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error)

func (f extractFunc) Extract(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error) {
	return f(ctx, data, mimeType, kind)
}

type classifyFunc func(ctx context.Context, in classification.Input) (*document.Classification, error)

func (f classifyFunc) Classify(ctx context.Context, in classification.Input) (*document.Classification, error) {
	return f(ctx, in)
}

// memFiles is a storage backend that can be told to fail.
type memFiles struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failStore bool
}

func newMemFiles() *memFiles {
	return &memFiles{objects: make(map[string][]byte)}
}

func (f *memFiles) Store(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failStore {
		return "", storage.ErrStorage
	}

	f.objects[key] = data

	return key, nil
}

func (f *memFiles) Retrieve(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[locator]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return data, nil
}

func (f *memFiles) Delete(_ context.Context, locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, locator)

	return nil
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.objects)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func receiptResult(conf float64, items ...document.LineItem) *document.ExtractionResult {
	return &document.ExtractionResult{
		Kind: document.KindReceipt,
		Receipt: &document.ReceiptData{
			Merchant:        document.NewField("Pingo Doce", conf),
			Total:           document.NewField(dec("23.45"), conf),
			Currency:        document.NewField("EUR", conf),
			TransactionDate: document.NewField(day(2024, time.March, 2), conf),
			Items:           items,
		},
	}
}

func payslipResult(conf float64) *document.ExtractionResult {
	return &document.ExtractionResult{
		Kind: document.KindPayslip,
		Payslip: &document.PayslipData{
			Employer:       document.NewField("Acme Lda", conf),
			Gross:          document.NewField(dec("3200.00"), conf),
			Net:            document.NewField(dec("2600.00"), conf),
			Currency:       document.NewField("EUR", conf),
			PayPeriodStart: document.NewField(day(2024, time.March, 1), conf),
			PayPeriodEnd:   document.NewField(day(2024, time.March, 31), conf),
		},
	}
}

func returning(results ...*document.ExtractionResult) extractFunc {
	var (
		mu    sync.Mutex
		calls int
	)

	return func(_ context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
		mu.Lock()
		defer mu.Unlock()

		r := results[min(calls, len(results)-1)]
		calls++

		return r.Clone(), nil
	}
}

func classifyAs(category string, conf float64) classifyFunc {
	return func(_ context.Context, _ classification.Input) (*document.Classification, error) {
		return &document.Classification{Category: category, Confidence: conf}, nil
	}
}

func testConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.ExtractTimeout = time.Second
	cfg.ClassifyTimeout = time.Second
	cfg.SweepInterval = 10 * time.Millisecond

	return cfg
}

type harness struct {
	store *memstore.Store
	files *memFiles
	orch  *pipeline.Orchestrator
	owner uuid.UUID
}

func newHarness(t *testing.T, cfg pipeline.Config, ext extraction.Extractor, cls classification.Classifier, learner pipeline.Learner) *harness {
	t.Helper()

	h := &harness{store: memstore.New(), files: newMemFiles(), owner: uuid.New()}
	h.orch = pipeline.New(pipeline.Deps{
		Repo:       h.store,
		Files:      h.files,
		Extractor:  ext,
		Classifier: cls,
		Learner:    learner,
	}, cfg)

	return h
}

func (h *harness) submit(t *testing.T, kind document.Kind) *document.Document {
	t.Helper()

	doc, err := h.orch.Submit(context.Background(), pipeline.SubmitParams{
		OwnerID:  h.owner,
		Kind:     kind,
		Filename: "scan.txt",
		Data:     []byte("TOTAL 23,45\n"),
	})
	require.NoError(t, err)

	return doc
}

func (h *harness) process(t *testing.T, id uuid.UUID) *document.Document {
	t.Helper()

	require.NoError(t, h.orch.Process(context.Background(), id))

	return h.get(t, id)
}

func (h *harness) get(t *testing.T, id uuid.UUID) *document.Document {
	t.Helper()

	doc, err := h.store.GetDocument(context.Background(), h.owner, id)
	require.NoError(t, err)

	return doc
}

func (h *harness) expenses(t *testing.T) []*record.Expense {
	t.Helper()

	out, err := h.store.ListExpenses(context.Background(), record.ListFilter{OwnerID: h.owner})
	require.NoError(t, err)

	return out
}

func (h *harness) approve(corrections map[string]string, id uuid.UUID) (*record.Materialized, error) {
	return h.orch.Approve(context.Background(), pipeline.Approval{
		DocumentID:  id,
		OwnerID:     h.owner,
		Actor:       document.Actor{Type: document.ActorReviewer, ID: "ana"},
		Corrections: corrections,
	})
}

func TestOrchestrator_LowConfidenceNeedsReextraction(t *testing.T) {
	noClassify := classifyFunc(func(_ context.Context, _ classification.Input) (*document.Classification, error) {
		t.Error("classifier must not run below the reupload threshold")
		return nil, errors.New("unexpected")
	})

	h := newHarness(t, testConfig(), returning(receiptResult(0.45)), noClassify, nil)
	doc := h.submit(t, document.KindReceipt)
	assert.Equal(t, document.StatusPending, doc.Status)

	doc = h.process(t, doc.ID)
	assert.Equal(t, document.StatusNeedsReextraction, doc.Status)
	require.NotNil(t, doc.OCRConfidence)
	assert.InDelta(t, 0.45, *doc.OCRConfidence, 1e-9)
	assert.Equal(t, 1, doc.Attempt)
	assert.Empty(t, h.expenses(t))

	_, err := h.approve(nil, doc.ID)
	assert.ErrorIs(t, err, document.ErrConflict)
}

func TestOrchestrator_LowClassificationNeedsReextraction(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.90)), classifyAs("Groceries", 0.30), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	assert.Equal(t, document.StatusNeedsReextraction, doc.Status)
	require.NotNil(t, doc.OCRConfidence)
	assert.InDelta(t, 0.90, *doc.OCRConfidence, 1e-9)
	require.NotNil(t, doc.Confidence)
	assert.InDelta(t, 0.30, *doc.Confidence, 1e-9)

	_, err := h.approve(nil, doc.ID)
	assert.ErrorIs(t, err, document.ErrConflict)
	assert.Empty(t, h.expenses(t))
}

func TestOrchestrator_ApproveWithoutCorrections(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.92)), classifyAs("Groceries", 0.90), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	assert.Equal(t, document.StatusPendingVerification, doc.Status)
	assert.False(t, doc.LowConfidence(0.85))
	require.NotNil(t, doc.Confidence)
	assert.InDelta(t, 0.90, *doc.Confidence, 1e-9)

	m, err := h.approve(nil, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, record.KindExpense, m.Kind())

	expenses := h.expenses(t)
	require.Len(t, expenses, 1)
	assert.Equal(t, "Groceries", expenses[0].Category)
	assert.Equal(t, m.ID(), expenses[0].ID)
	assert.True(t, expenses[0].Amount.Equal(dec("23.45")))
	assert.Equal(t, document.StatusVerified, h.get(t, doc.ID).Status)

	history, err := h.store.ListCorrections(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	docs := document.NewService(h.store, h.files)
	assert.ErrorIs(t, docs.Delete(context.Background(), h.owner, doc.ID), document.ErrConflict)
}

func TestOrchestrator_PayslipCorrection(t *testing.T) {
	h := newHarness(t, testConfig(), returning(payslipResult(0.70)), classifyAs("salary", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindPayslip).ID)

	assert.Equal(t, document.StatusPendingVerification, doc.Status)
	assert.True(t, doc.LowConfidence(0.85))

	m, err := h.approve(map[string]string{document.FieldNetAmount: "2650.00"}, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, m.Income)
	assert.True(t, m.Income.NetAmount.Equal(dec("2650.00")))
	assert.Equal(t, day(2024, time.March, 31), m.Income.Date)

	history, err := h.store.ListCorrections(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, document.FieldNetAmount, history[0].Field)
	assert.Equal(t, "2600.00", history[0].PreviousValue)
	assert.Equal(t, "2650.00", history[0].NewValue)
	assert.Equal(t, document.ActorReviewer, history[0].ActorType)
	assert.Equal(t, "ana", history[0].ActorID)

	stored, err := h.store.GetExtraction(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Payslip.Net.Value.Equal(dec("2650.00")))
	assert.InDelta(t, 1.0, stored.Payslip.Net.Confidence, 1e-9)
}

func TestOrchestrator_ConcurrentApprovals(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.92)), classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	const attempts = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for range attempts {
		wg.Go(func() {
			_, err := h.approve(nil, doc.ID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, document.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, h.expenses(t), 1)
}

func TestOrchestrator_AdapterFailures(t *testing.T) {
	type testCase struct {
		name       string
		extract    extractFunc
		classify   classifyFunc
		wantReason string
	}

	blocking := extractFunc(func(ctx context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	tests := []testCase{
		{
			name:       "ExtractionTimeout",
			extract:    blocking,
			classify:   classifyAs("Groceries", 0.9),
			wantReason: "timeout",
		},
		{
			name: "UnsupportedFormat",
			extract: func(_ context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
				return nil, extraction.ErrUnsupportedFormat
			},
			classify:   classifyAs("Groceries", 0.9),
			wantReason: "unsupported format",
		},
		{
			name: "WrongKind",
			extract: func(_ context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
				return payslipResult(0.9), nil
			},
			classify:   classifyAs("Groceries", 0.9),
			wantReason: "malformed document",
		},
		{
			name:    "ClassifierDown",
			extract: returning(receiptResult(0.9)),
			classify: func(_ context.Context, _ classification.Input) (*document.Classification, error) {
				return nil, errors.New("connection refused")
			},
			wantReason: "classification service unavailable",
		},
		{
			name: "ExtractorError",
			extract: func(_ context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
				return nil, errors.New("extraction service returned status 500: <html>stack trace</html>")
			},
			classify:   classifyAs("Groceries", 0.9),
			wantReason: "extraction service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ExtractTimeout = 20 * time.Millisecond

			h := newHarness(t, cfg, tt.extract, tt.classify, nil)
			doc := h.process(t, h.submit(t, document.KindReceipt).ID)

			assert.Equal(t, document.StatusFailed, doc.Status)
			assert.Equal(t, tt.wantReason, doc.FailureReason)
			assert.Equal(t, 1, h.files.count(), "original file is kept for a retry")
			assert.Empty(t, h.expenses(t))
		})
	}
}

func TestOrchestrator_Retry(t *testing.T) {
	calls := 0
	ext := extractFunc(func(_ context.Context, _ []byte, _ string, _ document.Kind) (*document.ExtractionResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ocr service unreachable")
		}

		return receiptResult(0.9), nil
	})

	h := newHarness(t, testConfig(), ext, classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)
	require.Equal(t, document.StatusFailed, doc.Status)

	_, err := h.orch.Retry(context.Background(), uuid.New(), doc.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)

	retried, err := h.orch.Retry(context.Background(), h.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, retried.Status)
	assert.Empty(t, retried.FailureReason)

	doc = h.process(t, doc.ID)
	assert.Equal(t, document.StatusPendingVerification, doc.Status)
	assert.Equal(t, 2, doc.Attempt)

	_, err = h.orch.Retry(context.Background(), h.owner, doc.ID)
	assert.ErrorIs(t, err, document.ErrConflict)
}

func TestOrchestrator_ReuploadReplacesExtraction(t *testing.T) {
	first := receiptResult(0.5,
		document.LineItem{Name: "Leite", Quantity: dec("1"), UnitPrice: dec("0.95"), LineTotal: dec("0.95"), Confidence: 0.5},
		document.LineItem{Name: "Pao", Quantity: dec("1"), UnitPrice: dec("1.50"), LineTotal: dec("1.50"), Confidence: 0.5},
	)
	second := receiptResult(0.9,
		document.LineItem{Name: "Cabaz", Quantity: dec("1"), UnitPrice: dec("23.45"), LineTotal: dec("23.45"), Confidence: 0.9},
	)
	second.Receipt.Currency = nil

	h := newHarness(t, testConfig(), returning(first, second), classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)
	require.Equal(t, document.StatusNeedsReextraction, doc.Status)
	oldLocator := doc.Locator

	_, err := h.orch.Reupload(context.Background(), pipeline.ReuploadParams{
		OwnerID:    h.owner,
		DocumentID: doc.ID,
		Filename:   "sharper.txt",
		Data:       []byte("TOTAL 23,45 again\n"),
	})
	require.NoError(t, err)

	doc = h.process(t, doc.ID)
	assert.Equal(t, document.StatusPendingVerification, doc.Status)
	assert.Equal(t, "sharper.txt", doc.OriginalFilename)
	assert.NotEqual(t, oldLocator, doc.Locator)
	assert.Equal(t, 1, h.files.count())

	stored, err := h.store.GetExtraction(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Receipt.Items, 1)
	assert.Equal(t, "Cabaz", stored.Receipt.Items[0].Name)
	assert.Nil(t, stored.Receipt.Currency, "fields of the previous attempt must not survive")
}

func TestOrchestrator_AutoApprove(t *testing.T) {
	cfg := testConfig()
	cfg.AutoApprove = true

	h := newHarness(t, cfg, returning(receiptResult(0.95)), classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	assert.Equal(t, document.StatusVerified, doc.Status)
	assert.Len(t, h.expenses(t), 1)

	below := newHarness(t, cfg, returning(receiptResult(0.8)), classifyAs("Groceries", 0.9), nil)
	doc = below.process(t, below.submit(t, document.KindReceipt).ID)

	assert.Equal(t, document.StatusPendingVerification, doc.Status)
	assert.Empty(t, below.expenses(t))
}

func TestOrchestrator_ApproveValidation(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	_, err := h.approve(map[string]string{
		document.FieldMerchant:    "Continente",
		document.FieldTotalAmount: "twelve",
	}, doc.ID)

	var verr *document.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, document.ErrValidation)
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, document.FieldTotalAmount, verr.Problems[0].Field)

	_, err = h.approve(map[string]string{document.FieldCategory: ""}, doc.ID)
	assert.ErrorIs(t, err, document.ErrValidation)

	assert.Equal(t, document.StatusPendingVerification, h.get(t, doc.ID).Status)
	assert.Empty(t, h.expenses(t))

	history, err := h.store.ListCorrections(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	stored, err := h.store.GetExtraction(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pingo Doce", stored.Receipt.Merchant.Value)
}

func TestOrchestrator_Reject(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("Groceries", 0.9), nil)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	_, err := h.orch.Reject(context.Background(), pipeline.Rejection{DocumentID: doc.ID, OwnerID: uuid.New(), Reason: "duplicate"})
	assert.ErrorIs(t, err, document.ErrNotFound)

	rejected, err := h.orch.Reject(context.Background(), pipeline.Rejection{
		DocumentID: doc.ID,
		OwnerID:    h.owner,
		Actor:      document.Actor{Type: document.ActorReviewer, ID: "ana"},
		Reason:     " duplicate ",
	})
	require.NoError(t, err)
	assert.Equal(t, document.StatusRejected, rejected.Status)
	assert.Equal(t, "duplicate", rejected.FailureReason)

	_, err = h.approve(nil, doc.ID)
	assert.ErrorIs(t, err, document.ErrConflict)
	assert.Empty(t, h.expenses(t))

	docs := document.NewService(h.store, h.files)
	require.NoError(t, docs.Delete(context.Background(), h.owner, doc.ID))
	assert.Zero(t, h.files.count())
}

func TestOrchestrator_LearnsReviewerCategory(t *testing.T) {
	ctrl := gomock.NewController(t)
	learner := pipeline.NewMockLearner(ctrl)

	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("uncategorized", 0.9), learner)
	doc := h.process(t, h.submit(t, document.KindReceipt).ID)

	learner.EXPECT().Learn(gomock.Any(), matching.Mapping{
		OwnerID:     h.owner,
		Pattern:     "Pingo Doce",
		Category:    "groceries",
		Subcategory: "supermarket",
	}).Return(nil)

	m, err := h.approve(map[string]string{
		document.FieldCategory:    "groceries",
		document.FieldSubcategory: "supermarket",
	}, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "groceries", m.Expense.Category)
}

func TestOrchestrator_SubmitRejectsUploads(t *testing.T) {
	type testCase struct {
		name    string
		kind    document.Kind
		data    []byte
		wantErr error
	}

	cfg := testConfig()
	cfg.MaxUploadBytes = 64

	tests := []testCase{
		{name: "UnknownKind", kind: "invoice", data: []byte("TOTAL 1.00"), wantErr: document.ErrValidation},
		{name: "Empty", kind: document.KindReceipt, wantErr: storage.ErrUnsupportedType},
		{name: "Zip", kind: document.KindReceipt, data: []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), wantErr: storage.ErrUnsupportedType},
		{name: "TooLarge", kind: document.KindReceipt, data: make([]byte, 65), wantErr: storage.ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := pipeline.NewMockRepository(ctrl)
			files := newMemFiles()

			orch := pipeline.New(pipeline.Deps{Repo: repo, Files: files}, cfg)

			_, err := orch.Submit(context.Background(), pipeline.SubmitParams{OwnerID: uuid.New(), Kind: tt.kind, Data: tt.data})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, files.count())
		})
	}
}

func TestOrchestrator_SubmitStorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := pipeline.NewMockRepository(ctrl)
	files := newMemFiles()
	files.failStore = true

	orch := pipeline.New(pipeline.Deps{Repo: repo, Files: files}, testConfig())

	_, err := orch.Submit(context.Background(), pipeline.SubmitParams{
		OwnerID: uuid.New(),
		Kind:    document.KindReceipt,
		Data:    []byte("TOTAL 1.00"),
	})
	assert.ErrorIs(t, err, storage.ErrStorage)
}

func TestOrchestrator_SubmitInsertFailureRemovesFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := pipeline.NewMockRepository(ctrl)
	repo.EXPECT().CreateDocument(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	files := newMemFiles()
	orch := pipeline.New(pipeline.Deps{Repo: repo, Files: files}, testConfig())

	_, err := orch.Submit(context.Background(), pipeline.SubmitParams{
		OwnerID:  uuid.New(),
		Kind:     document.KindReceipt,
		Filename: "../../etc/passwd",
		Data:     []byte("TOTAL 1.00"),
	})
	require.Error(t, err)
	assert.Zero(t, files.count())
}

func TestOrchestrator_SubmitSanitizesFilename(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("Groceries", 0.9), nil)

	doc, err := h.orch.Submit(context.Background(), pipeline.SubmitParams{
		OwnerID:  h.owner,
		Kind:     document.KindReceipt,
		Filename: "../../etc/passwd",
		Data:     []byte("TOTAL 1.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "passwd", doc.OriginalFilename)
	assert.Equal(t, "text/plain", doc.MIMEType)
	assert.Equal(t, 1, doc.Version)
}

func TestOrchestrator_RecoverInterrupted(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("Groceries", 0.9), nil)

	stuck := &document.Document{
		OwnerID:    h.owner,
		Kind:       document.KindReceipt,
		Status:     document.StatusExtracting,
		Attempt:    1,
		Version:    2,
		UploadedAt: time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateDocument(context.Background(), stuck))

	require.NoError(t, h.orch.RecoverInterrupted(context.Background()))

	doc := h.get(t, stuck.ID)
	assert.Equal(t, document.StatusFailed, doc.Status)
	assert.Equal(t, "processing interrupted", doc.FailureReason)
	assert.Equal(t, 3, doc.Version)
}

func TestOrchestrator_Run(t *testing.T) {
	h := newHarness(t, testConfig(), returning(receiptResult(0.9)), classifyAs("Groceries", 0.9), nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	docs := []*document.Document{h.submit(t, document.KindReceipt), h.submit(t, document.KindReceipt)}

	for _, d := range docs {
		assert.Eventually(t, func() bool {
			got, err := h.store.GetDocument(context.Background(), h.owner, d.ID)
			return err == nil && got.Status == document.StatusPendingVerification
		}, 2*time.Second, 5*time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestConfig_Validate(t *testing.T) {
	type testCase struct {
		name    string
		mutate  func(c *pipeline.Config)
		wantErr bool
	}

	tests := []testCase{
		{name: "Defaults", mutate: func(_ *pipeline.Config) {}},
		{name: "ThresholdsInverted", mutate: func(c *pipeline.Config) { c.ReuploadThreshold = 0.9 }, wantErr: true},
		{name: "ThresholdAboveOne", mutate: func(c *pipeline.Config) { c.AutoTrustThreshold = 1.2 }, wantErr: true},
		{name: "NoWorkers", mutate: func(c *pipeline.Config) { c.Workers = 0 }, wantErr: true},
		{name: "NegativeTolerance", mutate: func(c *pipeline.Config) { c.Tolerance = dec("-0.01") }, wantErr: true},
		{name: "ZeroTimeout", mutate: func(c *pipeline.Config) { c.ExtractTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := pipeline.DefaultConfig()
			tt.mutate(&cfg)

			if tt.wantErr {
				assert.Error(t, cfg.Validate())
				return
			}

			assert.NoError(t, cfg.Validate())
		})
	}
}
