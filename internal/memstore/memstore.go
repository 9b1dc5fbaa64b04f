// Package memstore keeps every repository in process memory. It backs STORE_DRIVER=memory and the
// pipeline tests; data is lost on restart.
package memstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/keylock"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

type Store struct {
	// rows stands in for row locks: one transition or delete per document at a time.
	rows *keylock.Map

	mu          sync.RWMutex
	documents   map[uuid.UUID]*document.Document
	extractions map[uuid.UUID]*document.ExtractionResult
	corrections []document.CorrectionAuditEntry
	expenses    map[uuid.UUID]*record.Expense
	incomes     map[uuid.UUID]*record.Income
	mappings    []mapping
}

type mapping struct {
	matching.Mapping
	seq int
}

func New() *Store {
	return &Store{
		rows:        keylock.New(),
		documents:   make(map[uuid.UUID]*document.Document),
		extractions: make(map[uuid.UUID]*document.ExtractionResult),
		expenses:    make(map[uuid.UUID]*record.Expense),
		incomes:     make(map[uuid.UUID]*record.Income),
	}
}

var (
	_ document.Repository     = (*Store)(nil)
	_ pipeline.Repository     = (*Store)(nil)
	_ verification.Repository = (*Store)(nil)
	_ record.Repository       = (*Store)(nil)
	_ matching.Repository     = (*Store)(nil)
)

func copyDocument(d *document.Document) *document.Document {
	c := *d
	return &c
}
