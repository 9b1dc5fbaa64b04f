package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/memstore"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

func seed(t *testing.T, s *memstore.Store, owner uuid.UUID, status document.Status, conf *float64, uploaded time.Time) *document.Document {
	t.Helper()

	doc := &document.Document{
		OwnerID:    owner,
		Kind:       document.KindReceipt,
		Status:     status,
		Confidence: conf,
		UploadedAt: uploaded,
	}
	require.NoError(t, s.CreateDocument(context.Background(), doc))

	return doc
}

func TestStore_Transition(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	owner := uuid.New()
	doc := seed(t, s, owner, document.StatusPending, nil, time.Now())

	t.Run("RollbackDiscardsStagedWrites", func(t *testing.T) {
		tx, err := s.BeginTransition(ctx, doc.ID)
		require.NoError(t, err)

		d := tx.Document()
		require.NoError(t, d.Transition(document.StatusExtracting, time.Now()))
		require.NoError(t, tx.SaveDocument(ctx, d))
		require.NoError(t, tx.Rollback())

		got, err := s.GetDocument(ctx, owner, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, document.StatusPending, got.Status)
	})

	t.Run("CommitAppliesAll", func(t *testing.T) {
		tx, err := s.BeginTransition(ctx, doc.ID)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		d := tx.Document()
		require.NoError(t, d.Transition(document.StatusExtracting, time.Now()))
		require.NoError(t, tx.SaveDocument(ctx, d))
		require.NoError(t, tx.AppendCorrections(ctx, []document.CorrectionAuditEntry{{DocumentID: doc.ID, Field: document.FieldMerchant}}))
		require.NoError(t, tx.Commit())

		got, err := s.GetDocument(ctx, owner, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, document.StatusExtracting, got.Status)
		assert.Equal(t, doc.Version+1, got.Version)

		history, err := s.ListCorrections(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.NotEqual(t, uuid.Nil, history[0].ID)
	})

	t.Run("UnknownDocument", func(t *testing.T) {
		_, err := s.BeginTransition(ctx, uuid.New())
		assert.ErrorIs(t, err, document.ErrNotFound)
	})
}

func TestStore_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	owner := uuid.New()

	free := seed(t, s, owner, document.StatusFailed, nil, time.Now())
	used := seed(t, s, owner, document.StatusVerified, nil, time.Now())

	require.NoError(t, s.CreateExpense(ctx, &record.Expense{
		OwnerID:    owner,
		DocumentID: &used.ID,
		Amount:     decimal.RequireFromString("9.99"),
		Currency:   "EUR",
		Date:       time.Now(),
	}))

	_, err := s.DeleteDocument(ctx, uuid.New(), free.ID)
	assert.ErrorIs(t, err, document.ErrNotFound, "other owners cannot delete")

	_, err = s.DeleteDocument(ctx, owner, used.ID)
	assert.ErrorIs(t, err, document.ErrConflict)

	deleted, err := s.DeleteDocument(ctx, owner, free.ID)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)

	_, err = s.GetDocument(ctx, owner, free.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = s.BeginTransition(ctx, free.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestStore_ListPending(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	owner := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	high := seed(t, s, owner, document.StatusPendingVerification, new(0.95), base)
	low := seed(t, s, owner, document.StatusPendingVerification, new(0.40), base.Add(time.Hour))
	unscored := seed(t, s, owner, document.StatusPendingVerification, nil, base.Add(2*time.Hour))
	seed(t, s, owner, document.StatusVerified, new(0.10), base)
	seed(t, s, uuid.New(), document.StatusPendingVerification, new(0.10), base)

	ids := func(docs []*document.Document) []uuid.UUID {
		out := make([]uuid.UUID, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}

		return out
	}

	type testCase struct {
		name  string
		query verification.Query
		want  []uuid.UUID
	}

	tests := []testCase{
		{
			name:  "ByConfidence",
			query: verification.Query{OwnerID: owner, Sort: verification.SortConfidence},
			want:  []uuid.UUID{unscored.ID, low.ID, high.ID},
		},
		{
			name:  "ByAge",
			query: verification.Query{OwnerID: owner, Sort: verification.SortAge},
			want:  []uuid.UUID{high.ID, low.ID, unscored.ID},
		},
		{
			name:  "BelowThresholdKeepsUnscored",
			query: verification.Query{OwnerID: owner, Sort: verification.SortAge, ConfidenceBelow: new(0.85)},
			want:  []uuid.UUID{low.ID, unscored.ID},
		},
		{
			name:  "UploadedBefore",
			query: verification.Query{OwnerID: owner, Sort: verification.SortAge, UploadedBefore: new(base.Add(90 * time.Minute))},
			want:  []uuid.UUID{high.ID, low.ID},
		},
		{
			name:  "Paged",
			query: verification.Query{OwnerID: owner, Sort: verification.SortAge, Limit: 1, Offset: 1},
			want:  []uuid.UUID{low.ID},
		},
		{
			name:  "OffsetPastEnd",
			query: verification.Query{OwnerID: owner, Sort: verification.SortAge, Offset: 10},
			want:  []uuid.UUID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.ListPending(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}

	n, err := s.CountPending(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_TransitionsLockPerDocument(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	owner := uuid.New()
	a := seed(t, s, owner, document.StatusPending, nil, time.Now())
	b := seed(t, s, owner, document.StatusPending, nil, time.Now())

	txA, err := s.BeginTransition(ctx, a.ID)
	require.NoError(t, err)

	opened := make(chan error, 1)

	go func() {
		txB, err := s.BeginTransition(ctx, b.ID)
		if err == nil {
			err = txB.Rollback()
		}
		opened <- err
	}()

	select {
	case err := <-opened:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("a transition on another document waited for an unrelated one")
	}

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	sameDone := make(chan struct{})

	go func() {
		defer close(sameDone)

		tx, err := s.BeginTransition(blocked, a.ID)
		if err == nil {
			_ = tx.Rollback()
		}
	}()

	select {
	case <-sameDone:
		t.Fatal("a second transition on the same document did not wait")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, txA.Rollback())
	<-sameDone
}
