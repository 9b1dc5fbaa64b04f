package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/record"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type scanner interface {
	Scan(dest ...any) error
}

const expenseColumns = `id, owner_id, document_id, amount, currency, category, subcategory, merchant, date,
	description, verified, needs_review, reconciliation_delta, created_at, updated_at`

func scanExpense(s scanner) (*record.Expense, error) {
	var (
		e     record.Expense
		delta decimal.NullDecimal
	)

	if err := s.Scan(
		&e.ID, &e.OwnerID, &e.DocumentID, &e.Amount, &e.Currency, &e.Category, &e.Subcategory, &e.Merchant, &e.Date,
		&e.Description, &e.Verified, &e.NeedsReview, &delta, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if delta.Valid {
		e.ReconciliationDelta = &delta.Decimal
	}

	return &e, nil
}

// InsertExpense writes an expense and its items using q, so it can join a caller's transaction.
func InsertExpense(ctx context.Context, q Querier, e *record.Expense) error {
	query := `
		INSERT INTO expenses (owner_id, document_id, amount, currency, category, subcategory, merchant, date,
			description, verified, needs_review, reconciliation_delta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	var delta decimal.NullDecimal
	if e.ReconciliationDelta != nil {
		delta = decimal.NewNullDecimal(*e.ReconciliationDelta)
	}

	err := q.QueryRowContext(ctx, query,
		e.OwnerID,
		e.DocumentID,
		e.Amount,
		e.Currency,
		e.Category,
		e.Subcategory,
		e.Merchant,
		e.Date,
		e.Description,
		e.Verified,
		e.NeedsReview,
		delta,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating expense: %w", err)
	}

	itemQuery := `
		INSERT INTO expense_items (expense_id, position, name, quantity, unit_price, total_price, category, subcategory)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, it := range e.Items {
		_, err := q.ExecContext(ctx, itemQuery,
			e.ID, it.Position, it.Name, it.Quantity, it.UnitPrice, it.TotalPrice, it.Category, it.Subcategory,
		)
		if err != nil {
			return fmt.Errorf("creating expense item %d: %w", it.Position, err)
		}
	}

	return nil
}

func (s *Store) CreateExpense(ctx context.Context, e *record.Expense) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := InsertExpense(ctx, dbTx, e); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetExpense(ctx context.Context, ownerID, id uuid.UUID) (*record.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND owner_id = $2`

	e, err := scanExpense(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}

		return nil, fmt.Errorf("getting expense: %w", err)
	}

	if err := s.attachItems(ctx, []*record.Expense{e}); err != nil {
		return nil, err
	}

	return e, nil
}

func applyFilter(b sq.SelectBuilder, filter record.ListFilter) sq.SelectBuilder {
	// uuid.UUID is an array, which sq.Eq would expand into an IN list.
	b = b.Where("owner_id = ?", filter.OwnerID)

	if filter.StartDate != nil {
		b = b.Where(sq.GtOrEq{"date": *filter.StartDate})
	}

	if filter.EndDate != nil {
		b = b.Where(sq.LtOrEq{"date": *filter.EndDate})
	}

	if filter.Category != nil {
		b = b.Where(sq.Eq{"category": *filter.Category})
	}

	return b.OrderBy("date DESC", "created_at DESC")
}

func (s *Store) ListExpenses(ctx context.Context, filter record.ListFilter) ([]*record.Expense, error) {
	query, args, err := applyFilter(psql.Select(expenseColumns).From("expenses"), filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building expense query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*record.Expense

	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}

		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	if err := s.attachItems(ctx, expenses); err != nil {
		return nil, err
	}

	return expenses, nil
}

func (s *Store) attachItems(ctx context.Context, expenses []*record.Expense) error {
	if len(expenses) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*record.Expense, len(expenses))
	ids := make([]uuid.UUID, len(expenses))

	for i, e := range expenses {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	query, args, err := psql.
		Select("expense_id", "position", "name", "quantity", "unit_price", "total_price", "category", "subcategory").
		From("expense_items").
		Where(sq.Eq{"expense_id": ids}).
		OrderBy("expense_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("building item query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("listing expense items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			expenseID uuid.UUID
			it        record.ExpenseItem
		)

		if err := rows.Scan(&expenseID, &it.Position, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice,
			&it.Category, &it.Subcategory); err != nil {
			return fmt.Errorf("scanning expense item: %w", err)
		}

		e := byID[expenseID]
		e.Items = append(e.Items, it)
	}

	return rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, e *record.Expense) error {
	query := `
		UPDATE expenses
		SET amount = $1, currency = $2, category = $3, subcategory = $4, merchant = $5, date = $6,
			description = $7, updated_at = NOW()
		WHERE id = $8 AND owner_id = $9
		RETURNING updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		e.Amount, e.Currency, e.Category, e.Subcategory, e.Merchant, e.Date, e.Description, e.ID, e.OwnerID,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.ErrNotFound
		}

		return fmt.Errorf("updating expense: %w", err)
	}

	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}

	return expectOne(res, record.ErrNotFound)
}

const incomeColumns = `id, owner_id, document_id, source, gross_amount, net_amount, currency, category, subcategory,
	period_start, period_end, date, deductions, verified, created_at, updated_at`

func scanIncome(s scanner) (*record.Income, error) {
	var (
		in         record.Income
		gross      decimal.NullDecimal
		deductions []byte
	)

	if err := s.Scan(
		&in.ID, &in.OwnerID, &in.DocumentID, &in.Source, &gross, &in.NetAmount, &in.Currency, &in.Category,
		&in.Subcategory, &in.PeriodStart, &in.PeriodEnd, &in.Date, &deductions, &in.Verified, &in.CreatedAt, &in.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if gross.Valid {
		in.GrossAmount = &gross.Decimal
	}

	if len(deductions) > 0 {
		if err := json.Unmarshal(deductions, &in.Deductions); err != nil {
			return nil, fmt.Errorf("decoding deductions: %w", err)
		}
	}

	return &in, nil
}

// InsertIncome writes an income using q, so it can join a caller's transaction.
func InsertIncome(ctx context.Context, q Querier, in *record.Income) error {
	deductions, err := json.Marshal(in.Deductions)
	if err != nil {
		return fmt.Errorf("encoding deductions: %w", err)
	}

	if in.Deductions == nil {
		deductions = []byte("{}")
	}

	var gross decimal.NullDecimal
	if in.GrossAmount != nil {
		gross = decimal.NewNullDecimal(*in.GrossAmount)
	}

	query := `
		INSERT INTO incomes (owner_id, document_id, source, gross_amount, net_amount, currency, category, subcategory,
			period_start, period_end, date, deductions, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = q.QueryRowContext(ctx, query,
		in.OwnerID,
		in.DocumentID,
		in.Source,
		gross,
		in.NetAmount,
		in.Currency,
		in.Category,
		in.Subcategory,
		in.PeriodStart,
		in.PeriodEnd,
		in.Date,
		deductions,
		in.Verified,
	).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating income: %w", err)
	}

	return nil
}

func (s *Store) CreateIncome(ctx context.Context, in *record.Income) error {
	return InsertIncome(ctx, s.db, in)
}

func (s *Store) GetIncome(ctx context.Context, ownerID, id uuid.UUID) (*record.Income, error) {
	query := `SELECT ` + incomeColumns + ` FROM incomes WHERE id = $1 AND owner_id = $2`

	in, err := scanIncome(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}

		return nil, fmt.Errorf("getting income: %w", err)
	}

	return in, nil
}

func (s *Store) ListIncomes(ctx context.Context, filter record.ListFilter) ([]*record.Income, error) {
	query, args, err := applyFilter(psql.Select(incomeColumns).From("incomes"), filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building income query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing incomes: %w", err)
	}
	defer rows.Close()

	var incomes []*record.Income

	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning income: %w", err)
		}

		incomes = append(incomes, in)
	}

	return incomes, rows.Err()
}

func (s *Store) UpdateIncome(ctx context.Context, in *record.Income) error {
	var gross decimal.NullDecimal
	if in.GrossAmount != nil {
		gross = decimal.NewNullDecimal(*in.GrossAmount)
	}

	query := `
		UPDATE incomes
		SET source = $1, gross_amount = $2, net_amount = $3, currency = $4, category = $5, subcategory = $6,
			date = $7, updated_at = NOW()
		WHERE id = $8 AND owner_id = $9
		RETURNING updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		in.Source, gross, in.NetAmount, in.Currency, in.Category, in.Subcategory, in.Date, in.ID, in.OwnerID,
	).Scan(&in.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.ErrNotFound
		}

		return fmt.Errorf("updating income: %w", err)
	}

	return nil
}

func (s *Store) DeleteIncome(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting income: %w", err)
	}

	return expectOne(res, record.ErrNotFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

