package matching

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	"github.com/MrJamesThe3rd/docket/internal/http/respond"
	"github.com/MrJamesThe3rd/docket/internal/matching"
)

type Handler struct {
	svc *matching.Service
}

func NewHandler(svc *matching.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/suggest", h.suggest)
	r.Post("/", h.learn)
}

type mappingResponse struct {
	Merchant    string `json:"merchant"`
	Pattern     string `json:"pattern,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Matched     bool   `json:"matched"`
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	merchant := r.URL.Query().Get("merchant")
	if merchant == "" {
		http.Error(w, "merchant query parameter is required", http.StatusBadRequest)
		return
	}

	m, err := h.svc.Suggest(r.Context(), owner, merchant)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := mappingResponse{Merchant: merchant}
	if m != nil {
		resp.Pattern = m.Pattern
		resp.Category = m.Category
		resp.Subcategory = m.Subcategory
		resp.Matched = true
	}

	respond.JSON(w, http.StatusOK, resp)
}

type learnRequest struct {
	Pattern     string `json:"pattern" validate:"required,max=200"`
	Category    string `json:"category" validate:"required,max=100"`
	Subcategory string `json:"subcategory" validate:"max=100"`
}

func (h *Handler) learn(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	var req learnRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	err := h.svc.Learn(r.Context(), matching.Mapping{
		OwnerID:     owner,
		Pattern:     req.Pattern,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}
