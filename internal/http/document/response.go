package document

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

type Response struct {
	ID               uuid.UUID                  `json:"id"`
	Kind             document.Kind              `json:"kind"`
	OriginalFilename string                     `json:"original_filename"`
	MIMEType         string                     `json:"mime_type"`
	Size             int64                      `json:"size"`
	Status           document.Status            `json:"status"`
	OCRConfidence    *float64                   `json:"ocr_confidence,omitempty"`
	Confidence       *float64                   `json:"confidence,omitempty"`
	FailureReason    string                     `json:"failure_reason,omitempty"`
	Attempt          int                        `json:"attempt"`
	UploadedAt       time.Time                  `json:"uploaded_at"`
	ProcessedAt      *time.Time                 `json:"processed_at,omitempty"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	Extraction       *document.ExtractionResult `json:"extraction,omitempty"`
}

func ToResponse(doc *document.Document) Response {
	return Response{
		ID:               doc.ID,
		Kind:             doc.Kind,
		OriginalFilename: doc.OriginalFilename,
		MIMEType:         doc.MIMEType,
		Size:             doc.Size,
		Status:           doc.Status,
		OCRConfidence:    doc.OCRConfidence,
		Confidence:       doc.Confidence,
		FailureReason:    doc.FailureReason,
		Attempt:          doc.Attempt,
		UploadedAt:       doc.UploadedAt,
		ProcessedAt:      doc.ProcessedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func toResponseList(docs []*document.Document) []Response {
	resp := make([]Response, len(docs))
	for i, doc := range docs {
		resp[i] = ToResponse(doc)
	}

	return resp
}

type correctionResponse struct {
	Field         string             `json:"field"`
	PreviousValue string             `json:"previous_value"`
	NewValue      string             `json:"new_value"`
	ActorType     document.ActorType `json:"actor_type"`
	ActorID       string             `json:"actor_id"`
	CreatedAt     time.Time          `json:"created_at"`
}

func toHistory(entries []document.CorrectionAuditEntry) []correctionResponse {
	resp := make([]correctionResponse, len(entries))
	for i, e := range entries {
		resp[i] = correctionResponse{
			Field:         e.Field,
			PreviousValue: e.PreviousValue,
			NewValue:      e.NewValue,
			ActorType:     e.ActorType,
			ActorID:       e.ActorID,
			CreatedAt:     e.CreatedAt,
		}
	}

	return resp
}
