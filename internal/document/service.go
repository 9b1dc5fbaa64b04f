package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=document
type Repository interface {
	GetDocument(ctx context.Context, ownerID, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]*Document, error)
	GetExtraction(ctx context.Context, id uuid.UUID) (*ExtractionResult, error)
	ListCorrections(ctx context.Context, id uuid.UUID) ([]CorrectionAuditEntry, error)

	// DeleteDocument soft-deletes the document and returns it. It fails with ErrConflict while a
	// financial record references the document.
	DeleteDocument(ctx context.Context, ownerID, id uuid.UUID) (*Document, error)
}

// FileStore gives access to the stored original files.
type FileStore interface {
	Retrieve(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

type Service struct {
	repo  Repository
	files FileStore
}

func NewService(repo Repository, files FileStore) *Service {
	return &Service{repo: repo, files: files}
}

type ListFilter struct {
	OwnerID uuid.UUID
	Kind    *Kind
	Status  *Status
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocument(ctx, ownerID, id)
}

// List returns the owner's documents, newest upload first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Document, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// Extraction returns the current extraction result of a document, or nil when none was produced yet.
func (s *Service) Extraction(ctx context.Context, ownerID, id uuid.UUID) (*ExtractionResult, error) {
	if _, err := s.repo.GetDocument(ctx, ownerID, id); err != nil {
		return nil, err
	}

	result, err := s.repo.GetExtraction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("get extraction: %w", err)
	}

	return result, nil
}

// History returns the correction audit trail of a document in creation order.
func (s *Service) History(ctx context.Context, ownerID, id uuid.UUID) ([]CorrectionAuditEntry, error) {
	if _, err := s.repo.GetDocument(ctx, ownerID, id); err != nil {
		return nil, err
	}

	return s.repo.ListCorrections(ctx, id)
}

// Download returns the document together with its original bytes.
func (s *Service) Download(ctx context.Context, ownerID, id uuid.UUID) (*Document, []byte, error) {
	doc, err := s.repo.GetDocument(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.files.Retrieve(ctx, doc.Locator)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve file: %w", err)
	}

	return doc, data, nil
}

// Delete soft-deletes a document that no financial record depends on and removes its stored file.
// The correction audit trail is kept.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	doc, err := s.repo.DeleteDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.files.Delete(ctx, doc.Locator); err != nil {
		slog.Warn("failed to remove stored file", "document_id", doc.ID, "locator", doc.Locator, "error", err)
	}

	return nil
}
