package memstore

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/record"
)

func copyExpense(e *record.Expense) *record.Expense {
	c := *e
	c.Items = slices.Clone(e.Items)

	return &c
}

func copyIncome(i *record.Income) *record.Income {
	c := *i
	c.Deductions = maps.Clone(i.Deductions)

	return &c
}

func inRange(d time.Time, f record.ListFilter) bool {
	return (f.StartDate == nil || !d.Before(*f.StartDate)) && (f.EndDate == nil || !d.After(*f.EndDate))
}

func (s *Store) CreateExpense(_ context.Context, e *record.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	e.ID = uuid.New()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.expenses[e.ID] = copyExpense(e)

	return nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id uuid.UUID) (*record.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return nil, record.ErrNotFound
	}

	return copyExpense(e), nil
}

func (s *Store) ListExpenses(_ context.Context, filter record.ListFilter) ([]*record.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*record.Expense

	for _, e := range s.expenses {
		if e.OwnerID != filter.OwnerID || !inRange(e.Date, filter) {
			continue
		}

		if filter.Category != nil && e.Category != *filter.Category {
			continue
		}

		out = append(out, copyExpense(e))
	}

	slices.SortStableFunc(out, func(a, b *record.Expense) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}

		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, e *record.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.expenses[e.ID]
	if !ok || current.OwnerID != e.OwnerID {
		return record.ErrNotFound
	}

	e.UpdatedAt = time.Now().UTC()
	s.expenses[e.ID] = copyExpense(e)

	return nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return record.ErrNotFound
	}

	delete(s.expenses, id)

	return nil
}

func (s *Store) CreateIncome(_ context.Context, i *record.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	i.ID = uuid.New()
	i.CreatedAt = now
	i.UpdatedAt = now
	s.incomes[i.ID] = copyIncome(i)

	return nil
}

func (s *Store) GetIncome(_ context.Context, ownerID, id uuid.UUID) (*record.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.incomes[id]
	if !ok || i.OwnerID != ownerID {
		return nil, record.ErrNotFound
	}

	return copyIncome(i), nil
}

func (s *Store) ListIncomes(_ context.Context, filter record.ListFilter) ([]*record.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*record.Income

	for _, i := range s.incomes {
		if i.OwnerID != filter.OwnerID || !inRange(i.Date, filter) {
			continue
		}

		if filter.Category != nil && i.Category != *filter.Category {
			continue
		}

		out = append(out, copyIncome(i))
	}

	slices.SortStableFunc(out, func(a, b *record.Income) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}

		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

func (s *Store) UpdateIncome(_ context.Context, i *record.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.incomes[i.ID]
	if !ok || current.OwnerID != i.OwnerID {
		return record.ErrNotFound
	}

	i.UpdatedAt = time.Now().UTC()
	s.incomes[i.ID] = copyIncome(i)

	return nil
}

func (s *Store) DeleteIncome(_ context.Context, ownerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.incomes[id]
	if !ok || i.OwnerID != ownerID {
		return record.ErrNotFound
	}

	delete(s.incomes, id)

	return nil
}
