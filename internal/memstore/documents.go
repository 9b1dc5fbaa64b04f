package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

func (s *Store) CreateDocument(_ context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	s.documents[doc.ID] = copyDocument(doc)

	return nil
}

func (s *Store) GetDocument(_ context.Context, ownerID, id uuid.UUID) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[id]
	if !ok || d.OwnerID != ownerID || d.DeletedAt != nil {
		return nil, document.ErrNotFound
	}

	return copyDocument(d), nil
}

func (s *Store) ListDocuments(_ context.Context, filter document.ListFilter) ([]*document.Document, error) {
	docs := s.collect(func(d *document.Document) bool {
		return d.OwnerID == filter.OwnerID &&
			(filter.Kind == nil || d.Kind == *filter.Kind) &&
			(filter.Status == nil || d.Status == *filter.Status)
	})

	slices.SortStableFunc(docs, func(a, b *document.Document) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})

	return docs, nil
}

func (s *Store) GetExtraction(_ context.Context, id uuid.UUID) (*document.ExtractionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.extractions[id]
	if !ok {
		return nil, document.ErrNotFound
	}

	return r.Clone(), nil
}

func (s *Store) ListCorrections(_ context.Context, id uuid.UUID) ([]document.CorrectionAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []document.CorrectionAuditEntry

	for _, e := range s.corrections {
		if e.DocumentID == id {
			out = append(out, e)
		}
	}

	return out, nil
}

func (s *Store) DeleteDocument(_ context.Context, ownerID, id uuid.UUID) (*document.Document, error) {
	unlock := s.rows.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[id]
	if !ok || d.OwnerID != ownerID || d.DeletedAt != nil {
		return nil, document.ErrNotFound
	}

	if s.referenced(id) {
		return nil, fmt.Errorf("%w: a financial record references the document", document.ErrConflict)
	}

	now := time.Now().UTC()
	d.DeletedAt = &now
	d.UpdatedAt = now

	return copyDocument(d), nil
}

func (s *Store) referenced(id uuid.UUID) bool {
	for _, e := range s.expenses {
		if e.DocumentID != nil && *e.DocumentID == id {
			return true
		}
	}

	for _, i := range s.incomes {
		if i.DocumentID != nil && *i.DocumentID == id {
			return true
		}
	}

	return false
}

func (s *Store) ListByStatus(_ context.Context, status document.Status, limit int) ([]uuid.UUID, error) {
	docs := s.collect(func(d *document.Document) bool { return d.Status == status })

	slices.SortStableFunc(docs, func(a, b *document.Document) int {
		return a.UploadedAt.Compare(b.UploadedAt)
	})

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	return ids, nil
}

func (s *Store) ListPending(_ context.Context, q verification.Query) ([]*document.Document, error) {
	docs := s.collect(func(d *document.Document) bool {
		return d.OwnerID == q.OwnerID &&
			d.Status == document.StatusPendingVerification &&
			(q.Kind == nil || d.Kind == *q.Kind) &&
			(q.ConfidenceBelow == nil || d.Confidence == nil || *d.Confidence < *q.ConfidenceBelow) &&
			(q.UploadedBefore == nil || d.UploadedAt.Before(*q.UploadedBefore))
	})

	slices.SortStableFunc(docs, func(a, b *document.Document) int {
		if q.Sort == verification.SortConfidence {
			if c := cmp.Compare(confidenceOf(a), confidenceOf(b)); c != 0 {
				return c
			}
		}

		return a.UploadedAt.Compare(b.UploadedAt)
	})

	if q.Offset >= len(docs) {
		return nil, nil
	}

	docs = docs[q.Offset:]

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	return docs, nil
}

func (s *Store) CountPending(_ context.Context, ownerID uuid.UUID) (int, error) {
	docs := s.collect(func(d *document.Document) bool {
		return d.OwnerID == ownerID && d.Status == document.StatusPendingVerification
	})

	return len(docs), nil
}

func confidenceOf(d *document.Document) float64 {
	if d.Confidence == nil {
		return 0
	}

	return *d.Confidence
}

// collect returns copies of the live documents matching keep.
func (s *Store) collect(keep func(d *document.Document) bool) []*document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*document.Document

	for _, d := range s.documents {
		if d.DeletedAt == nil && keep(d) {
			out = append(out, copyDocument(d))
		}
	}

	return out
}

// BeginTransition holds the document's row lock until Commit or Rollback. Writes are staged and
// applied together on Commit.
func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (pipeline.TransitionTx, error) {
	unlock := s.rows.Lock(id)

	if err := ctx.Err(); err != nil {
		unlock()
		return nil, err
	}

	s.mu.RLock()
	d, ok := s.documents[id]
	s.mu.RUnlock()

	if !ok || d.DeletedAt != nil {
		unlock()
		return nil, document.ErrNotFound
	}

	return &transitionTx{store: s, unlock: unlock, doc: copyDocument(d), version: d.Version}, nil
}

type transitionTx struct {
	store   *Store
	unlock  func()
	doc     *document.Document
	version int
	done    bool

	saved       *document.Document
	extraction  *document.ExtractionResult
	corrections []document.CorrectionAuditEntry
	expense     *record.Expense
	income      *record.Income
}

func (tx *transitionTx) Document() *document.Document {
	return tx.doc
}

func (tx *transitionTx) Extraction(_ context.Context) (*document.ExtractionResult, error) {
	if tx.extraction != nil {
		return tx.extraction.Clone(), nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	r, ok := tx.store.extractions[tx.doc.ID]
	if !ok {
		return nil, document.ErrNotFound
	}

	return r.Clone(), nil
}

func (tx *transitionTx) SaveDocument(_ context.Context, doc *document.Document) error {
	tx.store.mu.RLock()
	current := tx.store.documents[doc.ID].Version
	tx.store.mu.RUnlock()

	if current != tx.version {
		return fmt.Errorf("%w: version %d changed to %d", document.ErrConflict, tx.version, current)
	}

	tx.saved = copyDocument(doc)

	return nil
}

func (tx *transitionTx) SaveExtraction(_ context.Context, _ uuid.UUID, r *document.ExtractionResult) error {
	tx.extraction = r.Clone()
	return nil
}

func (tx *transitionTx) AppendCorrections(_ context.Context, entries []document.CorrectionAuditEntry) error {
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}

		tx.corrections = append(tx.corrections, e)
	}

	return nil
}

func (tx *transitionTx) CreateExpense(_ context.Context, e *record.Expense) error {
	now := time.Now().UTC()
	e.ID = uuid.New()
	e.CreatedAt = now
	e.UpdatedAt = now
	tx.expense = copyExpense(e)

	return nil
}

func (tx *transitionTx) CreateIncome(_ context.Context, i *record.Income) error {
	now := time.Now().UTC()
	i.ID = uuid.New()
	i.CreatedAt = now
	i.UpdatedAt = now
	tx.income = copyIncome(i)

	return nil
}

func (tx *transitionTx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}

	tx.done = true
	defer tx.unlock()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.saved != nil {
		s.documents[tx.saved.ID] = tx.saved
	}

	if tx.extraction != nil {
		s.extractions[tx.doc.ID] = tx.extraction
	}

	s.corrections = append(s.corrections, tx.corrections...)

	if tx.expense != nil {
		s.expenses[tx.expense.ID] = tx.expense
	}

	if tx.income != nil {
		s.incomes[tx.income.ID] = tx.income
	}

	return nil
}

// Rollback after Commit is a no-op so callers can defer it.
func (tx *transitionTx) Rollback() error {
	if tx.done {
		return nil
	}

	tx.done = true
	tx.unlock()

	return nil
}
