// Package pipeline drives documents through extraction, classification and verification into financial records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	"github.com/MrJamesThe3rd/docket/internal/record"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=pipeline
type Repository interface {
	CreateDocument(ctx context.Context, doc *document.Document) error
	GetDocument(ctx context.Context, ownerID, id uuid.UUID) (*document.Document, error)

	// ListByStatus returns document ids in the given status, oldest upload first. limit <= 0 means no limit.
	ListByStatus(ctx context.Context, status document.Status, limit int) ([]uuid.UUID, error)

	// BeginTransition locks the document row until Commit or Rollback. Deleted documents are not found.
	BeginTransition(ctx context.Context, id uuid.UUID) (TransitionTx, error)
}

// TransitionTx is a unit of work on a single locked document.
type TransitionTx interface {
	Document() *document.Document
	Extraction(ctx context.Context) (*document.ExtractionResult, error)
	// SaveDocument fails with document.ErrConflict when the stored version moved since the row was locked.
	SaveDocument(ctx context.Context, doc *document.Document) error
	// SaveExtraction replaces the stored extraction result as a whole.
	SaveExtraction(ctx context.Context, id uuid.UUID, r *document.ExtractionResult) error
	AppendCorrections(ctx context.Context, entries []document.CorrectionAuditEntry) error
	CreateExpense(ctx context.Context, e *record.Expense) error
	CreateIncome(ctx context.Context, i *record.Income) error
	Commit() error
	Rollback() error
}

// Learner remembers category decisions made by reviewers.
type Learner interface {
	Learn(ctx context.Context, mapping matching.Mapping) error
}

type Config struct {
	ReuploadThreshold  float64
	AutoTrustThreshold float64
	AutoApprove        bool
	ExtractTimeout     time.Duration
	ClassifyTimeout    time.Duration
	Tolerance          decimal.Decimal
	MaxUploadBytes     int64
	Workers            int
	QueueSize          int
	SweepInterval      time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReuploadThreshold:  0.60,
		AutoTrustThreshold: 0.85,
		ExtractTimeout:     30 * time.Second,
		ClassifyTimeout:    10 * time.Second,
		Tolerance:          record.DefaultTolerance,
		MaxUploadBytes:     10 << 20,
		Workers:            4,
		QueueSize:          100,
		SweepInterval:      30 * time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.ReuploadThreshold < 0 || c.ReuploadThreshold > 1 {
		errs = append(errs, fmt.Errorf("reupload threshold %v out of [0,1]", c.ReuploadThreshold))
	}

	if c.AutoTrustThreshold < 0 || c.AutoTrustThreshold > 1 {
		errs = append(errs, fmt.Errorf("auto-trust threshold %v out of [0,1]", c.AutoTrustThreshold))
	}

	if c.ReuploadThreshold > c.AutoTrustThreshold {
		errs = append(errs, errors.New("reupload threshold must not exceed auto-trust threshold"))
	}

	if c.ExtractTimeout <= 0 || c.ClassifyTimeout <= 0 {
		errs = append(errs, errors.New("adapter timeouts must be positive"))
	}

	if c.Tolerance.IsNegative() {
		errs = append(errs, errors.New("reconciliation tolerance must not be negative"))
	}

	if c.Workers < 1 || c.QueueSize < 1 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("workers, queue size and sweep interval must be positive"))
	}

	return errors.Join(errs...)
}

type SubmitParams struct {
	OwnerID  uuid.UUID
	Kind     document.Kind
	Filename string
	Data     []byte
}

type ReuploadParams struct {
	OwnerID    uuid.UUID
	DocumentID uuid.UUID
	Filename   string
	Data       []byte
}

// Approval confirms a document, optionally with field corrections keyed like document.FieldMerchant.
type Approval struct {
	DocumentID  uuid.UUID
	OwnerID     uuid.UUID
	Actor       document.Actor
	Corrections map[string]string
}

type Rejection struct {
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	Actor      document.Actor
	Reason     string
}
