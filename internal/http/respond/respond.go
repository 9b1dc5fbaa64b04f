// Package respond writes JSON responses and maps domain errors to HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error    string    `json:"error"`
	Problems []problem `json:"problems,omitempty"`
}

type problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status its kind maps to. Unknown errors are logged and hidden behind a 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)

	resp := errorResponse{Error: err.Error()}

	var verr *document.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "validation failed"
		for _, p := range verr.Problems {
			resp.Problems = append(resp.Problems, problem{Field: p.Field, Message: p.Message})
		}
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}

	JSON(w, status, resp)
}

func Status(err error) int {
	switch {
	case errors.Is(err, document.ErrNotFound), errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrConflict), errors.Is(err, record.ErrDerived):
		return http.StatusConflict
	case errors.Is(err, document.ErrValidation), errors.Is(err, matching.ErrInvalidMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, storage.ErrStorage), errors.Is(err, storage.ErrNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body into dst and runs its validate tags. Malformed JSON is a 400, failed rules a 422.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		Error(w, r, validationError(err))
		return false
	}

	return true
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &document.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(jsonName(fe.Field()), rule(fe))
	}

	return verr
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be " + fe.Param() + " characters"
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func jsonName(field string) string {
	var b strings.Builder

	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}

		b.WriteRune(r)
	}

	return strings.ToLower(b.String())
}
