package memstore

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/matching"
)

func (s *Store) FindMatch(_ context.Context, ownerID uuid.UUID, merchant string) (*matching.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merchant = strings.ToLower(merchant)

	var best *mapping

	for i := range s.mappings {
		m := &s.mappings[i]
		if m.OwnerID != ownerID || !strings.Contains(merchant, strings.ToLower(m.Pattern)) {
			continue
		}

		if best == nil || len(m.Pattern) > len(best.Pattern) ||
			(len(m.Pattern) == len(best.Pattern) && m.seq > best.seq) {
			best = m
		}
	}

	if best == nil {
		return nil, nil
	}

	out := best.Mapping

	return &out, nil
}

func (s *Store) CreateMapping(_ context.Context, m matching.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mappings = append(s.mappings, mapping{Mapping: m, seq: len(s.mappings)})

	return nil
}
