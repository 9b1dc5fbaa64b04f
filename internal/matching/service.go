package matching

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidMapping = errors.New("pattern and category are required")

// Mapping remembers which category a reviewer picked for a merchant.
type Mapping struct {
	OwnerID     uuid.UUID
	Pattern     string
	Category    string
	Subcategory string
}

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=matching
type Repository interface {
	// FindMatch returns the longest, most recent mapping whose pattern occurs in merchant, or nil.
	FindMatch(ctx context.Context, ownerID uuid.UUID, merchant string) (*Mapping, error)
	CreateMapping(ctx context.Context, mapping Mapping) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Suggest tries to find a learned category for the given merchant.
// Returns nil if no match found.
func (s *Service) Suggest(ctx context.Context, ownerID uuid.UUID, merchant string) (*Mapping, error) {
	merchant = normalize(merchant)
	if merchant == "" {
		return nil, nil
	}

	return s.repo.FindMatch(ctx, ownerID, merchant)
}

// Learn remembers a new mapping between a merchant pattern and a category.
func (s *Service) Learn(ctx context.Context, m Mapping) error {
	m.Pattern = normalize(m.Pattern)
	m.Category = strings.TrimSpace(m.Category)
	m.Subcategory = strings.TrimSpace(m.Subcategory)

	if m.Pattern == "" || m.Category == "" {
		return ErrInvalidMapping
	}

	return s.repo.CreateMapping(ctx, m)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
