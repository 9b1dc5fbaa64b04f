package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/matching"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindMatch(ctx context.Context, ownerID uuid.UUID, merchant string) (*matching.Mapping, error) {
	query := `
		SELECT pattern, category, subcategory
		FROM category_mappings
		WHERE owner_id = $1 AND $2 ILIKE '%' || pattern || '%'
		ORDER BY LENGTH(pattern) DESC, created_at DESC
		LIMIT 1
	`

	m := matching.Mapping{OwnerID: ownerID}

	err := s.db.QueryRowContext(ctx, query, ownerID, merchant).Scan(&m.Pattern, &m.Category, &m.Subcategory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding match: %w", err)
	}

	return &m, nil
}

func (s *Store) CreateMapping(ctx context.Context, m matching.Mapping) error {
	query := `
		INSERT INTO category_mappings (owner_id, pattern, category, subcategory, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, m.OwnerID, m.Pattern, m.Category, m.Subcategory)
	if err != nil {
		return fmt.Errorf("creating mapping: %w", err)
	}

	return nil
}
