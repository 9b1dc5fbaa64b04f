package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/classification"
	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/extraction"
	"github.com/MrJamesThe3rd/docket/internal/keylock"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/storage"
)

const reasonInterrupted = "processing interrupted"

var (
	errExtractorUnavailable  = errors.New("extraction service unavailable")
	errClassifierUnavailable = errors.New("classification service unavailable")
)

type Deps struct {
	Repo       Repository
	Files      storage.Storage
	Extractor  extraction.Extractor
	Classifier classification.Classifier
	Learner    Learner // optional
	Logger     *slog.Logger
}

type Orchestrator struct {
	repo       Repository
	files      storage.Storage
	extractor  extraction.Extractor
	classifier classification.Classifier
	learner    Learner
	log        *slog.Logger
	cfg        Config
	locks      *keylock.Map
	jobs       chan uuid.UUID
}

func New(deps Deps, cfg Config) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		repo:       deps.Repo,
		files:      deps.Files,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		learner:    deps.Learner,
		log:        log.With("component", "pipeline"),
		cfg:        cfg,
		locks:      keylock.New(),
		jobs:       make(chan uuid.UUID, max(cfg.QueueSize, 1)),
	}
}

// Submit stores the uploaded file, records a pending document and queues it for processing.
// No document row exists when storing the file fails.
func (o *Orchestrator) Submit(ctx context.Context, p SubmitParams) (*document.Document, error) {
	if !p.Kind.Valid() {
		verr := &document.ValidationError{}
		verr.Add("kind", fmt.Sprintf("must be %s or %s", document.KindReceipt, document.KindPayslip))

		return nil, verr
	}

	info, err := storage.Inspect(p.Data, o.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	locator, err := o.files.Store(ctx, storage.Key(p.OwnerID, string(p.Kind), info.Extension), p.Data, info.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	now := time.Now().UTC()
	doc := &document.Document{
		OwnerID:          p.OwnerID,
		Kind:             p.Kind,
		OriginalFilename: filename(p.Filename, info.Extension),
		Locator:          locator,
		Size:             info.Size,
		MIMEType:         info.MIMEType,
		Status:           document.StatusPending,
		Version:          1,
		UploadedAt:       now,
		UpdatedAt:        now,
	}

	if err := o.repo.CreateDocument(ctx, doc); err != nil {
		o.discard(ctx, locator)
		return nil, fmt.Errorf("create document: %w", err)
	}

	o.log.Info("document submitted", "document_id", doc.ID, "kind", doc.Kind, "mime_type", doc.MIMEType, "size", doc.Size)
	o.enqueue(doc.ID)

	return doc, nil
}

// Process runs one extraction attempt for a pending document. Adapter failures end in status failed and
// are not returned; the error only reports problems with the document itself or the database.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	unlock := o.locks.Lock(id)
	defer unlock()

	var doc document.Document

	err := o.inTransition(ctx, id, func(tx TransitionTx) error {
		d := tx.Document()
		if d.Status != document.StatusPending {
			return fmt.Errorf("%w: document is %s, not pending", document.ErrConflict, d.Status)
		}

		if err := d.Transition(document.StatusExtracting, time.Now().UTC()); err != nil {
			return err
		}

		d.Attempt++
		d.FailureReason = ""
		d.OCRConfidence = nil
		d.Confidence = nil
		doc = *d

		return tx.SaveDocument(ctx, d)
	})
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}

	log := o.log.With("document_id", id, "attempt", doc.Attempt)

	result, err := o.analyze(ctx, &doc)
	if err != nil {
		return o.fail(ctx, id, err)
	}

	extracted := result.ExtractionConfidence()
	aggregate := result.AggregateConfidence()

	next := document.StatusPendingVerification
	if aggregate < o.cfg.ReuploadThreshold {
		next = document.StatusNeedsReextraction
	}

	err = o.inTransition(ctx, id, func(tx TransitionTx) error {
		d := tx.Document()
		if d.Status != document.StatusExtracting || d.Attempt != doc.Attempt {
			return fmt.Errorf("%w: attempt %d was superseded", document.ErrConflict, doc.Attempt)
		}

		if err := tx.SaveExtraction(ctx, id, result); err != nil {
			return err
		}

		now := time.Now().UTC()
		d.OCRConfidence = &extracted
		d.Confidence = &aggregate
		d.ProcessedAt = &now

		if err := d.Transition(next, now); err != nil {
			return err
		}

		doc = *d

		return tx.SaveDocument(ctx, d)
	})
	if err != nil {
		return fmt.Errorf("store extraction: %w", err)
	}

	log.Info("document processed",
		"status", next,
		"extraction_confidence", extracted,
		"confidence", aggregate,
		"low_confidence", doc.LowConfidence(o.cfg.AutoTrustThreshold),
	)

	if next != document.StatusPendingVerification || !o.cfg.AutoApprove || aggregate < o.cfg.AutoTrustThreshold {
		return nil
	}

	m, err := o.approve(ctx, Approval{DocumentID: id, OwnerID: doc.OwnerID, Actor: document.SystemActor})
	if err != nil {
		// Left for a reviewer.
		log.Warn("auto-approval failed", "error", err)
		return nil
	}

	log.Info("document auto-approved", "record_kind", m.Kind(), "record_id", m.ID())

	return nil
}

// analyze runs the adapters. Nothing is persisted here.
func (o *Orchestrator) analyze(ctx context.Context, doc *document.Document) (*document.ExtractionResult, error) {
	data, err := o.files.Retrieve(ctx, doc.Locator)
	if err != nil {
		return nil, fmt.Errorf("retrieve file: %w", err)
	}

	ectx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()

	result, err := o.extractor.Extract(ectx, data, doc.MIMEType, doc.Kind)
	if err != nil {
		return nil, fmt.Errorf("extract: %w: %w", errExtractorUnavailable, err)
	}

	if result == nil || result.Kind != doc.Kind {
		return nil, fmt.Errorf("extract: %w: result does not describe a %s", extraction.ErrMalformed, doc.Kind)
	}

	// The aggregate can only fall once classified, so the result already needs a re-upload.
	if result.ExtractionConfidence() < o.cfg.ReuploadThreshold {
		return result, nil
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.ClassifyTimeout)
	defer cancel()

	c, err := o.classifier.Classify(cctx, classification.InputFor(doc, result))
	if err != nil {
		return nil, fmt.Errorf("classify: %w: %w", errClassifierUnavailable, err)
	}

	result.Classification = c

	return result, nil
}

// fail moves an extracting document to failed. It still runs when ctx was cancelled so shutdowns
// do not leave documents stuck in extracting.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, cause error) error {
	reason := failureReason(cause)
	o.log.Warn("document processing failed", "document_id", id, "reason", reason, "error", cause)

	ctx = context.WithoutCancel(ctx)

	err := o.inTransition(ctx, id, func(tx TransitionTx) error {
		d := tx.Document()
		if d.Status != document.StatusExtracting {
			return fmt.Errorf("%w: document is %s", document.ErrConflict, d.Status)
		}

		if err := d.Transition(document.StatusFailed, time.Now().UTC()); err != nil {
			return err
		}

		d.FailureReason = reason

		return tx.SaveDocument(ctx, d)
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return reasonInterrupted
	case errors.Is(err, extraction.ErrUnsupportedFormat):
		return extraction.ErrUnsupportedFormat.Error()
	case errors.Is(err, extraction.ErrMalformed):
		return extraction.ErrMalformed.Error()
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrStorage):
		return "stored file unavailable"
	case errors.Is(err, errClassifierUnavailable):
		return errClassifierUnavailable.Error()
	}

	// Adapter messages stay in the log; callers only see the taxonomy.
	return errExtractorUnavailable.Error()
}

// Approve verifies a document and materializes its financial record in one transaction.
// A document that is no longer pending verification yields document.ErrConflict.
func (o *Orchestrator) Approve(ctx context.Context, a Approval) (*record.Materialized, error) {
	unlock := o.locks.Lock(a.DocumentID)
	defer unlock()

	return o.approve(ctx, a)
}

// approve expects the document lock to be held.
func (o *Orchestrator) approve(ctx context.Context, a Approval) (*record.Materialized, error) {
	tx, err := o.repo.BeginTransition(ctx, a.DocumentID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	doc := tx.Document()
	if doc.OwnerID != a.OwnerID {
		return nil, document.ErrNotFound
	}

	if doc.Status != document.StatusPendingVerification {
		return nil, fmt.Errorf("%w: document is %s", document.ErrConflict, doc.Status)
	}

	current, err := tx.Extraction(ctx)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, fmt.Errorf("%w: document has no extraction result", document.ErrValidation)
		}

		return nil, fmt.Errorf("load extraction: %w", err)
	}

	now := time.Now().UTC()

	corrected, entries, err := document.ApplyCorrections(current, a.Corrections, a.Actor, now)
	if err != nil {
		return nil, err
	}

	m, err := record.Materialize(doc, corrected, record.Policy{Tolerance: o.cfg.Tolerance})
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].DocumentID = doc.ID
	}

	if len(entries) > 0 {
		if err := tx.AppendCorrections(ctx, entries); err != nil {
			return nil, fmt.Errorf("append corrections: %w", err)
		}

		if err := tx.SaveExtraction(ctx, doc.ID, corrected); err != nil {
			return nil, fmt.Errorf("save corrected extraction: %w", err)
		}
	}

	if m.Expense != nil {
		err = tx.CreateExpense(ctx, m.Expense)
	} else {
		err = tx.CreateIncome(ctx, m.Income)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Kind(), err)
	}

	if err := doc.Transition(document.StatusVerified, now); err != nil {
		return nil, err
	}

	if err := tx.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}

	o.log.Info("document verified",
		"document_id", doc.ID,
		"actor_type", a.Actor.Type,
		"corrections", len(entries),
		"record_kind", m.Kind(),
		"record_id", m.ID(),
		"needs_review", m.NeedsReview(),
	)

	o.learn(ctx, doc, corrected, entries)

	return m, nil
}

// learn remembers the merchant's category when a reviewer changed it on a receipt.
func (o *Orchestrator) learn(ctx context.Context, doc *document.Document, r *document.ExtractionResult, entries []document.CorrectionAuditEntry) {
	if o.learner == nil || doc.Kind != document.KindReceipt || r.Classification == nil {
		return
	}

	changed := false

	for _, e := range entries {
		if e.ActorType == document.ActorReviewer && (e.Field == document.FieldCategory || e.Field == document.FieldSubcategory) {
			changed = true
			break
		}
	}

	if !changed {
		return
	}

	err := o.learner.Learn(ctx, matching.Mapping{
		OwnerID:     doc.OwnerID,
		Pattern:     r.MerchantText(),
		Category:    r.Classification.Category,
		Subcategory: r.Classification.Subcategory,
	})
	if err != nil {
		o.log.Warn("failed to learn category", "document_id", doc.ID, "error", err)
	}
}

// Reject discards a document awaiting verification. No record is created.
func (o *Orchestrator) Reject(ctx context.Context, r Rejection) (*document.Document, error) {
	unlock := o.locks.Lock(r.DocumentID)
	defer unlock()

	var out document.Document

	err := o.inTransition(ctx, r.DocumentID, func(tx TransitionTx) error {
		doc := tx.Document()
		if doc.OwnerID != r.OwnerID {
			return document.ErrNotFound
		}

		if doc.Status != document.StatusPendingVerification {
			return fmt.Errorf("%w: document is %s", document.ErrConflict, doc.Status)
		}

		if err := doc.Transition(document.StatusRejected, time.Now().UTC()); err != nil {
			return err
		}

		doc.FailureReason = strings.TrimSpace(r.Reason)
		out = *doc

		return tx.SaveDocument(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("document rejected", "document_id", r.DocumentID, "actor_type", r.Actor.Type, "actor_id", r.Actor.ID)

	return &out, nil
}

// Retry starts a fresh attempt for a failed document with the file it already has.
func (o *Orchestrator) Retry(ctx context.Context, ownerID, id uuid.UUID) (*document.Document, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	var out document.Document

	err := o.inTransition(ctx, id, func(tx TransitionTx) error {
		doc := tx.Document()
		if doc.OwnerID != ownerID {
			return document.ErrNotFound
		}

		if doc.Status != document.StatusFailed {
			return fmt.Errorf("%w: only failed documents can be retried, document is %s", document.ErrConflict, doc.Status)
		}

		if err := doc.Transition(document.StatusPending, time.Now().UTC()); err != nil {
			return err
		}

		doc.FailureReason = ""
		out = *doc

		return tx.SaveDocument(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	o.enqueue(id)

	return &out, nil
}

// Reupload replaces the file of a failed or unreadable document and starts a fresh attempt.
func (o *Orchestrator) Reupload(ctx context.Context, p ReuploadParams) (*document.Document, error) {
	info, err := storage.Inspect(p.Data, o.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(p.DocumentID)
	defer unlock()

	current, err := o.repo.GetDocument(ctx, p.OwnerID, p.DocumentID)
	if err != nil {
		return nil, err
	}

	if !reuploadable(current.Status) {
		return nil, fmt.Errorf("%w: document is %s", document.ErrConflict, current.Status)
	}

	locator, err := o.files.Store(ctx, storage.Key(p.OwnerID, string(current.Kind), info.Extension), p.Data, info.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	var (
		out        document.Document
		oldLocator string
	)

	err = o.inTransition(ctx, p.DocumentID, func(tx TransitionTx) error {
		doc := tx.Document()
		if doc.OwnerID != p.OwnerID {
			return document.ErrNotFound
		}

		if !reuploadable(doc.Status) {
			return fmt.Errorf("%w: document is %s", document.ErrConflict, doc.Status)
		}

		if err := doc.Transition(document.StatusPending, time.Now().UTC()); err != nil {
			return err
		}

		oldLocator = doc.Locator
		doc.Locator = locator
		doc.MIMEType = info.MIMEType
		doc.Size = info.Size
		doc.OriginalFilename = filename(p.Filename, info.Extension)
		doc.FailureReason = ""
		out = *doc

		return tx.SaveDocument(ctx, doc)
	})
	if err != nil {
		o.discard(ctx, locator)
		return nil, err
	}

	o.discard(ctx, oldLocator)
	o.enqueue(p.DocumentID)

	return &out, nil
}

func reuploadable(s document.Status) bool {
	return s == document.StatusFailed || s == document.StatusNeedsReextraction
}

func (o *Orchestrator) inTransition(ctx context.Context, id uuid.UUID, fn func(tx TransitionTx) error) error {
	tx, err := o.repo.BeginTransition(ctx, id)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}

	return nil
}

// discard removes a stored object that no document points at.
func (o *Orchestrator) discard(ctx context.Context, locator string) {
	if err := o.files.Delete(context.WithoutCancel(ctx), locator); err != nil {
		o.log.Warn("failed to remove stored file", "locator", locator, "error", err)
	}
}

func filename(name, ext string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload" + ext
	}

	return name
}
