package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrJamesThe3rd/docket/internal/document"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformed         = errors.New("malformed document")
)

// Extractor turns the bytes of an uploaded file into field candidates.
// Implementations must honour ctx cancellation; they never see documents of other kinds than the one asked for.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error)
}

// Router picks an extractor by MIME type prefix. The first matching route wins.
type Router struct {
	routes   []route
	fallback Extractor
}

type route struct {
	prefix    string
	extractor Extractor
}

func NewRouter(fallback Extractor) *Router {
	return &Router{fallback: fallback}
}

// Handle sends every MIME type starting with prefix (e.g. "image/") to e.
func (r *Router) Handle(prefix string, e Extractor) *Router {
	r.routes = append(r.routes, route{prefix: prefix, extractor: e})
	return r
}

func (r *Router) Extract(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(mimeType, rt.prefix) {
			return rt.extractor.Extract(ctx, data, mimeType, kind)
		}
	}

	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}

	return r.fallback.Extract(ctx, data, mimeType, kind)
}
