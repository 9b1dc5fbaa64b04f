// Package classification assigns a spending or income category to an extraction result.
package classification

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

// Input is the text a classifier works on.
type Input struct {
	OwnerID  uuid.UUID
	Kind     document.Kind
	Merchant string
	Items    []string
}

// InputFor collects the classifier input from an extraction result.
func InputFor(doc *document.Document, r *document.ExtractionResult) Input {
	return Input{
		OwnerID:  doc.OwnerID,
		Kind:     doc.Kind,
		Merchant: r.MerchantText(),
		Items:    r.ItemNames(),
	}
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (*document.Classification, error)
}
