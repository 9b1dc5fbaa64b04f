package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	recordstore "github.com/MrJamesThe3rd/docket/internal/record/store"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type scanner interface {
	Scan(dest ...any) error
}

const documentColumns = `id, owner_id, kind, original_filename, locator, size, mime_type, status, ocr_confidence,
	confidence, failure_reason, attempt, version, uploaded_at, processed_at, updated_at, deleted_at`

// scanDocument expects the columns in documentColumns order.
func scanDocument(s scanner) (*document.Document, error) {
	var (
		d              document.Document
		kind, status   string
		ocr, aggregate sql.NullFloat64
	)

	if err := s.Scan(
		&d.ID, &d.OwnerID, &kind, &d.OriginalFilename, &d.Locator, &d.Size, &d.MIMEType, &status, &ocr,
		&aggregate, &d.FailureReason, &d.Attempt, &d.Version, &d.UploadedAt, &d.ProcessedAt, &d.UpdatedAt, &d.DeletedAt,
	); err != nil {
		return nil, err
	}

	d.Kind = document.Kind(kind)
	d.Status = document.Status(status)

	if ocr.Valid {
		d.OCRConfidence = &ocr.Float64
	}

	if aggregate.Valid {
		d.Confidence = &aggregate.Float64
	}

	return &d, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (owner_id, kind, original_filename, locator, size, mime_type, status, version,
			uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, uploaded_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		doc.OwnerID,
		doc.Kind,
		doc.OriginalFilename,
		doc.Locator,
		doc.Size,
		doc.MIMEType,
		doc.Status,
		doc.Version,
	).Scan(&doc.ID, &doc.UploadedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	return nil
}

func (s *Store) GetDocument(ctx context.Context, ownerID, id uuid.UUID) (*document.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting document: %w", err)
	}

	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, filter document.ListFilter) ([]*document.Document, error) {
	b := psql.Select(documentColumns).
		From("documents").
		Where("owner_id = ?", filter.OwnerID).
		Where("deleted_at IS NULL").
		OrderBy("uploaded_at DESC")

	if filter.Kind != nil {
		b = b.Where(sq.Eq{"kind": string(*filter.Kind)})
	}

	if filter.Status != nil {
		b = b.Where(sq.Eq{"status": string(*filter.Status)})
	}

	return s.queryDocuments(ctx, b)
}

func (s *Store) queryDocuments(ctx context.Context, b sq.SelectBuilder) ([]*document.Document, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building document query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (s *Store) GetExtraction(ctx context.Context, id uuid.UUID) (*document.ExtractionResult, error) {
	return getExtraction(ctx, s.db, id)
}

func getExtraction(ctx context.Context, q recordstore.Querier, id uuid.UUID) (*document.ExtractionResult, error) {
	var raw []byte

	err := q.QueryRowContext(ctx, `SELECT result FROM extraction_results WHERE document_id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("getting extraction: %w", err)
	}

	var r document.ExtractionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding extraction: %w", err)
	}

	return &r, nil
}

func (s *Store) ListCorrections(ctx context.Context, id uuid.UUID) ([]document.CorrectionAuditEntry, error) {
	query := `
		SELECT id, document_id, field, previous_value, new_value, actor_type, actor_id, created_at
		FROM correction_audit
		WHERE document_id = $1
		ORDER BY created_at, field
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("listing corrections: %w", err)
	}
	defer rows.Close()

	var entries []document.CorrectionAuditEntry

	for rows.Next() {
		var (
			e         document.CorrectionAuditEntry
			actorType string
		)

		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Field, &e.PreviousValue, &e.NewValue, &actorType, &e.ActorID,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning correction: %w", err)
		}

		e.ActorType = document.ActorType(actorType)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DeleteDocument soft-deletes the document. The row lock keeps a concurrent approval from creating a
// record between the reference check and the update.
func (s *Store) DeleteDocument(ctx context.Context, ownerID, id uuid.UUID) (*document.Document, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
		FOR UPDATE`

	doc, err := scanDocument(dbTx.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("locking document: %w", err)
	}

	var referenced bool

	refQuery := `
		SELECT EXISTS (SELECT 1 FROM expenses WHERE document_id = $1)
			OR EXISTS (SELECT 1 FROM incomes WHERE document_id = $1)
	`
	if err := dbTx.QueryRowContext(ctx, refQuery, id).Scan(&referenced); err != nil {
		return nil, fmt.Errorf("checking record references: %w", err)
	}

	if referenced {
		return nil, fmt.Errorf("%w: a financial record references the document", document.ErrConflict)
	}

	err = dbTx.QueryRowContext(ctx,
		`UPDATE documents SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 RETURNING deleted_at, updated_at`, id,
	).Scan(&doc.DeletedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return doc, nil
}

func (s *Store) ListByStatus(ctx context.Context, status document.Status, limit int) ([]uuid.UUID, error) {
	b := psql.Select("id").
		From("documents").
		Where(sq.Eq{"status": string(status)}).
		Where("deleted_at IS NULL").
		OrderBy("uploaded_at")

	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building status query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents by status: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) ListPending(ctx context.Context, q verification.Query) ([]*document.Document, error) {
	b := psql.Select(documentColumns).
		From("documents").
		Where("owner_id = ?", q.OwnerID).
		Where(sq.Eq{"status": string(document.StatusPendingVerification)}).
		Where("deleted_at IS NULL")

	if q.Kind != nil {
		b = b.Where(sq.Eq{"kind": string(*q.Kind)})
	}

	if q.ConfidenceBelow != nil {
		b = b.Where(sq.Or{sq.Eq{"confidence": nil}, sq.Lt{"confidence": *q.ConfidenceBelow}})
	}

	if q.UploadedBefore != nil {
		b = b.Where(sq.Lt{"uploaded_at": *q.UploadedBefore})
	}

	if q.Sort == verification.SortConfidence {
		b = b.OrderBy("COALESCE(confidence, 0) ASC", "uploaded_at ASC")
	} else {
		b = b.OrderBy("uploaded_at ASC")
	}

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}

	return s.queryDocuments(ctx, b)
}

func (s *Store) CountPending(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM documents
		WHERE owner_id = $1 AND status = $2 AND deleted_at IS NULL
	`

	var n int
	if err := s.db.QueryRowContext(ctx, query, ownerID, document.StatusPendingVerification).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending documents: %w", err)
	}

	return n, nil
}

type transitionTx struct {
	tx      *sql.Tx
	doc     *document.Document
	version int
}

// BeginTransition locks the document row with SELECT ... FOR UPDATE, which also serializes
// transitions across API instances.
func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (pipeline.TransitionTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition tx: %w", err)
	}

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	doc, err := scanDocument(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		dbTx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}

		return nil, fmt.Errorf("locking document: %w", err)
	}

	return &transitionTx{tx: dbTx, doc: doc, version: doc.Version}, nil
}

func (t *transitionTx) Commit() error   { return t.tx.Commit() }
func (t *transitionTx) Rollback() error { return t.tx.Rollback() }

func (t *transitionTx) Document() *document.Document {
	return t.doc
}

func (t *transitionTx) Extraction(ctx context.Context) (*document.ExtractionResult, error) {
	return getExtraction(ctx, t.tx, t.doc.ID)
}

func (t *transitionTx) SaveDocument(ctx context.Context, doc *document.Document) error {
	query := `
		UPDATE documents
		SET status = $1, ocr_confidence = $2, confidence = $3, failure_reason = $4, attempt = $5, version = $6,
			processed_at = $7, locator = $8, mime_type = $9, size = $10, original_filename = $11, updated_at = $12
		WHERE id = $13 AND version = $14
	`

	res, err := t.tx.ExecContext(ctx, query,
		doc.Status,
		doc.OCRConfidence,
		doc.Confidence,
		doc.FailureReason,
		doc.Attempt,
		doc.Version,
		doc.ProcessedAt,
		doc.Locator,
		doc.MIMEType,
		doc.Size,
		doc.OriginalFilename,
		doc.UpdatedAt,
		doc.ID,
		t.version,
	)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: version %d is stale", document.ErrConflict, t.version)
	}

	t.version = doc.Version

	return nil
}

func (t *transitionTx) SaveExtraction(ctx context.Context, id uuid.UUID, r *document.ExtractionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding extraction: %w", err)
	}

	query := `
		INSERT INTO extraction_results (document_id, result, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (document_id) DO UPDATE SET result = EXCLUDED.result, updated_at = NOW()
	`

	if _, err := t.tx.ExecContext(ctx, query, id, raw); err != nil {
		return fmt.Errorf("saving extraction: %w", err)
	}

	return nil
}

func (t *transitionTx) AppendCorrections(ctx context.Context, entries []document.CorrectionAuditEntry) error {
	query := `
		INSERT INTO correction_audit (document_id, field, previous_value, new_value, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	for i := range entries {
		e := &entries[i]

		err := t.tx.QueryRowContext(ctx, query,
			e.DocumentID, e.Field, e.PreviousValue, e.NewValue, e.ActorType, e.ActorID, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("appending correction %s: %w", e.Field, err)
		}
	}

	return nil
}

func (t *transitionTx) CreateExpense(ctx context.Context, e *record.Expense) error {
	return recordstore.InsertExpense(ctx, t.tx, e)
}

func (t *transitionTx) CreateIncome(ctx context.Context, i *record.Income) error {
	return recordstore.InsertIncome(ctx, t.tx, i)
}
