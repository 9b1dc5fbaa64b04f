// Package verification exposes documents awaiting human review and accepts review decisions.
package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
)

type Sort string

const (
	// SortConfidence lists the riskiest documents first.
	SortConfidence Sort = "confidence"
	SortAge        Sort = "age"
)

func (s Sort) Valid() bool {
	return s == SortConfidence || s == SortAge
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Filter struct {
	OwnerID           uuid.UUID
	Kind              *document.Kind
	LowConfidenceOnly bool
	UploadedBefore    *time.Time
	Sort              Sort
	Limit             int
	Offset            int
}

// Query is what the repository runs. ConfidenceBelow also matches documents without a confidence.
type Query struct {
	OwnerID         uuid.UUID
	Kind            *document.Kind
	ConfidenceBelow *float64
	UploadedBefore  *time.Time
	Sort            Sort
	Limit           int
	Offset          int
}

//go:generate mockgen -source=queue.go -destination=repository_mock.go -package=verification
type Repository interface {
	ListPending(ctx context.Context, q Query) ([]*document.Document, error)
	CountPending(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type Decider interface {
	Approve(ctx context.Context, a pipeline.Approval) (*record.Materialized, error)
	Reject(ctx context.Context, r pipeline.Rejection) (*document.Document, error)
}

// Item is a queue entry. LowConfidence is derived on every read.
type Item struct {
	Document      *document.Document
	LowConfidence bool
}

type Queue struct {
	repo      Repository
	decider   Decider
	autoTrust float64
}

func NewQueue(repo Repository, decider Decider, autoTrust float64) *Queue {
	return &Queue{repo: repo, decider: decider, autoTrust: autoTrust}
}

// List returns documents in pending_verification. Nothing is cached, every call reflects current state.
func (q *Queue) List(ctx context.Context, f Filter) ([]Item, error) {
	query := Query{
		OwnerID:        f.OwnerID,
		Kind:           f.Kind,
		UploadedBefore: f.UploadedBefore,
		Sort:           f.Sort,
		Limit:          f.Limit,
		Offset:         max(f.Offset, 0),
	}

	if query.Sort == "" {
		query.Sort = SortConfidence
	}

	if !query.Sort.Valid() {
		verr := &document.ValidationError{}
		verr.Add("sort", "must be confidence or age")

		return nil, verr
	}

	if query.Limit <= 0 {
		query.Limit = DefaultLimit
	}

	query.Limit = min(query.Limit, MaxLimit)

	if f.LowConfidenceOnly {
		query.ConfidenceBelow = &q.autoTrust
	}

	docs, err := q.repo.ListPending(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}

	items := make([]Item, len(docs))
	for i, d := range docs {
		items[i] = Item{Document: d, LowConfidence: d.LowConfidence(q.autoTrust)}
	}

	return items, nil
}

// Count is the number of documents waiting for the owner.
func (q *Queue) Count(ctx context.Context, ownerID uuid.UUID) (int, error) {
	n, err := q.repo.CountPending(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("count pending documents: %w", err)
	}

	return n, nil
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type Decision struct {
	DocumentID  uuid.UUID
	OwnerID     uuid.UUID
	ReviewerID  string
	Action      Action
	Corrections map[string]string
	Reason      string
}

type Outcome struct {
	Status      document.Status
	RecordKind  record.Kind
	RecordID    *uuid.UUID
	NeedsReview bool
}

// Decide applies a reviewer decision. Decisions on documents no longer pending verification fail with
// document.ErrConflict.
func (q *Queue) Decide(ctx context.Context, d Decision) (*Outcome, error) {
	actor := document.Actor{Type: document.ActorReviewer, ID: strings.TrimSpace(d.ReviewerID)}
	if actor.ID == "" {
		actor.ID = d.OwnerID.String()
	}

	switch d.Action {
	case ActionApprove:
		m, err := q.decider.Approve(ctx, pipeline.Approval{
			DocumentID:  d.DocumentID,
			OwnerID:     d.OwnerID,
			Actor:       actor,
			Corrections: d.Corrections,
		})
		if err != nil {
			return nil, err
		}

		id := m.ID()

		return &Outcome{
			Status:      document.StatusVerified,
			RecordKind:  m.Kind(),
			RecordID:    &id,
			NeedsReview: m.NeedsReview(),
		}, nil
	case ActionReject:
		if len(d.Corrections) > 0 {
			verr := &document.ValidationError{}
			verr.Add("corrections", "only accepted together with approve")

			return nil, verr
		}

		doc, err := q.decider.Reject(ctx, pipeline.Rejection{
			DocumentID: d.DocumentID,
			OwnerID:    d.OwnerID,
			Actor:      actor,
			Reason:     d.Reason,
		})
		if err != nil {
			return nil, err
		}

		return &Outcome{Status: doc.Status}, nil
	}

	verr := &document.ValidationError{}
	verr.Add("decision", "must be approve or reject")

	return nil, verr
}
