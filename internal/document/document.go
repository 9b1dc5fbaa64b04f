package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrConflict   = errors.New("document state conflict")
	ErrValidation = errors.New("validation failed")
)

// Kind is the type of financial document that was uploaded.
type Kind string

const (
	KindReceipt Kind = "receipt"
	KindPayslip Kind = "payslip"
)

func (k Kind) Valid() bool {
	return k == KindReceipt || k == KindPayslip
}

// Status represents the processing state of a document.
type Status string

const (
	StatusPending             Status = "pending"
	StatusExtracting          Status = "extracting"
	StatusNeedsReextraction   Status = "needs_reextraction"
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusRejected            Status = "rejected"
	StatusFailed              Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:             {StatusExtracting, StatusFailed},
	StatusExtracting:          {StatusNeedsReextraction, StatusPendingVerification, StatusFailed},
	StatusNeedsReextraction:   {StatusPending, StatusFailed},
	StatusPendingVerification: {StatusVerified, StatusRejected, StatusFailed},
	StatusFailed:              {StatusPending},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// Failed and needs_reextraction only go back to pending, which starts a fresh attempt.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExtracting, StatusNeedsReextraction, StatusPendingVerification,
		StatusVerified, StatusRejected, StatusFailed:
		return true
	}

	return false
}

// Document is an uploaded receipt or payslip and its processing metadata.
type Document struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Kind             Kind
	OriginalFilename string
	Locator          string
	Size             int64
	MIMEType         string
	Status           Status
	OCRConfidence    *float64
	Confidence       *float64
	FailureReason    string
	Attempt          int
	Version          int
	UploadedAt       time.Time
	ProcessedAt      *time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// Transition moves the document to next, bumping its version.
func (d *Document) Transition(next Status, now time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrConflict, d.Status, next)
	}

	d.Status = next
	d.Version++
	d.UpdatedAt = now

	return nil
}

// LowConfidence reports whether the aggregate confidence is under the auto-trust threshold.
func (d *Document) LowConfidence(autoTrust float64) bool {
	return d.Confidence == nil || *d.Confidence < autoTrust
}

// ActorType distinguishes automated changes from human ones in the audit trail.
type ActorType string

const (
	ActorSystem   ActorType = "system"
	ActorReviewer ActorType = "reviewer"
)

// Actor identifies who performed a verification action.
type Actor struct {
	Type ActorType
	ID   string
}

// SystemActor is used for auto-approval.
var SystemActor = Actor{Type: ActorSystem, ID: "pipeline"}

// CorrectionAuditEntry records one field change made during verification. Entries are append-only.
type CorrectionAuditEntry struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Field         string
	PreviousValue string
	NewValue      string
	ActorType     ActorType
	ActorID       string
	CreatedAt     time.Time
}

// ValidationError lists the fields that prevented an operation.
type ValidationError struct {
	Problems []FieldProblem
}

type FieldProblem struct {
	Field   string
	Message string
}

func (e *ValidationError) Add(field, message string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: message})
}

func (e *ValidationError) HasProblems() bool {
	return len(e.Problems) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Err returns nil when no problem was recorded.
func (e *ValidationError) Err() error {
	if !e.HasProblems() {
		return nil
	}

	return e
}
