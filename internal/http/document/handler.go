package document

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	"github.com/MrJamesThe3rd/docket/internal/http/respond"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
)

// multipartOverhead is the room left for form boundaries and headers on top of the file limit.
const multipartOverhead = 1 << 20

type Handler struct {
	docs     *document.Service
	pipeline *pipeline.Orchestrator
	maxBytes int64
	limit    func(http.Handler) http.Handler
}

// NewHandler builds the document routes. limit wraps the upload endpoints, typically with a rate limiter.
func NewHandler(docs *document.Service, p *pipeline.Orchestrator, maxBytes int64, limit func(http.Handler) http.Handler) *Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	return &Handler{docs: docs, pipeline: p, maxBytes: maxBytes, limit: limit}
}

func (h *Handler) Routes(r chi.Router) {
	r.With(h.limit).Post("/", h.upload)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/file", h.download)
	r.Get("/{id}/history", h.history)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/retry", h.retry)
	r.With(h.limit).Post("/{id}/reupload", h.reupload)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	name, data, ok := h.readFile(w, r)
	if !ok {
		return
	}

	doc, err := h.pipeline.Submit(r.Context(), pipeline.SubmitParams{
		OwnerID:  owner,
		Kind:     document.Kind(r.FormValue("kind")),
		Filename: name,
		Data:     data,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/documents/"+doc.ID.String())
	respond.JSON(w, http.StatusAccepted, ToResponse(doc))
}

func (h *Handler) reupload(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	name, data, ok := h.readFile(w, r)
	if !ok {
		return
	}

	doc, err := h.pipeline.Reupload(r.Context(), pipeline.ReuploadParams{
		OwnerID:    owner,
		DocumentID: id,
		Filename:   name,
		Data:       data,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusAccepted, ToResponse(doc))
}

// readFile pulls the "file" part out of a multipart body. Oversized bodies are cut off before they are buffered.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", h.maxBytes), http.StatusRequestEntityTooLarge)
			return "", nil, false
		}

		http.Error(w, "expected a multipart form with a file field", http.StatusBadRequest)

		return "", nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return "", nil, false
	}

	return header.Filename, data, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	filter := document.ListFilter{OwnerID: owner}

	if s := r.URL.Query().Get("kind"); s != "" {
		kind := document.Kind(s)
		if !kind.Valid() {
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}

		filter.Kind = &kind
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := document.Status(s)
		if !status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		filter.Status = &status
	}

	docs, err := h.docs.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(docs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.Get(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	extraction, err := h.docs.Extraction(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := ToResponse(doc)
	resp.Extraction = extraction

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	doc, data, err := h.docs.Download(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalFilename}))

	if _, err := w.Write(data); err != nil {
		slog.Debug("failed to write file", "document_id", doc.ID, "error", err)
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	entries, err := h.docs.History(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toHistory(entries))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.docs.Delete(r.Context(), owner, id); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	doc, err := h.pipeline.Retry(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusAccepted, ToResponse(doc))
}

func ownerAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}

	return owner, id, true
}
