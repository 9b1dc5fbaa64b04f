package verification

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	documentHTTP "github.com/MrJamesThe3rd/docket/internal/http/document"
	"github.com/MrJamesThe3rd/docket/internal/http/respond"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

type Handler struct {
	queue *verification.Queue
}

func NewHandler(queue *verification.Queue) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/count", h.count)
	r.Post("/{id}", h.decide)
}

type itemResponse struct {
	documentHTTP.Response
	LowConfidence bool `json:"low_confidence"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := verification.Filter{
		OwnerID: owner,
		Sort:    verification.Sort(q.Get("sort")),
	}

	if s := q.Get("kind"); s != "" {
		kind := document.Kind(s)
		if !kind.Valid() {
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}

		filter.Kind = &kind
	}

	if s := q.Get("low_confidence"); s != "" {
		low, err := strconv.ParseBool(s)
		if err != nil {
			http.Error(w, "low_confidence must be a boolean", http.StatusBadRequest)
			return
		}

		filter.LowConfidenceOnly = low
	}

	if s := q.Get("uploaded_before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "uploaded_before must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}

		filter.UploadedBefore = &t
	}

	var err error

	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		http.Error(w, "limit must be an integer", http.StatusBadRequest)
		return
	}

	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		http.Error(w, "offset must be an integer", http.StatusBadRequest)
		return
	}

	items, err := h.queue.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]itemResponse, len(items))
	for i, it := range items {
		resp[i] = itemResponse{Response: documentHTTP.ToResponse(it.Document), LowConfidence: it.LowConfidence}
	}

	respond.JSON(w, http.StatusOK, resp)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}

type countResponse struct {
	Pending int `json:"pending"`
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	n, err := h.queue.Count(r.Context(), owner)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, countResponse{Pending: n})
}

type decisionRequest struct {
	Decision    string            `json:"decision" validate:"required,oneof=approve reject"`
	Corrections map[string]string `json:"corrections"`
	Reason      string            `json:"reason" validate:"max=500"`
	ReviewerID  string            `json:"reviewer_id" validate:"max=200"`
}

type outcomeResponse struct {
	DocumentID  uuid.UUID       `json:"document_id"`
	Status      document.Status `json:"status"`
	RecordKind  record.Kind     `json:"record_kind,omitempty"`
	RecordID    *uuid.UUID      `json:"record_id,omitempty"`
	NeedsReview bool            `json:"needs_review"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	outcome, err := h.queue.Decide(r.Context(), verification.Decision{
		DocumentID:  id,
		OwnerID:     owner,
		ReviewerID:  req.ReviewerID,
		Action:      verification.Action(req.Decision),
		Corrections: req.Corrections,
		Reason:      req.Reason,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, outcomeResponse{
		DocumentID:  id,
		Status:      outcome.Status,
		RecordKind:  outcome.RecordKind,
		RecordID:    outcome.RecordID,
		NeedsReview: outcome.NeedsReview,
	})
}
