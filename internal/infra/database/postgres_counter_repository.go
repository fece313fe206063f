// internal/infra/database/postgres_counter_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"psirt_report_bot/internal/domain/request"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// PostgresCounterRepository implements request.CounterRepository.
type PostgresCounterRepository struct {
	db *sql.DB
}

func NewPostgresCounterRepository(db *sql.DB) *PostgresCounterRepository {
	return &PostgresCounterRepository{db: db}
}

func (r *PostgresCounterRepository) Get(ctx context.Context, name string) (*request.RunCounter, error) {
	query := `SELECT name, count, first_run_at FROM run_counters WHERE name = $1`
	counter := &request.RunCounter{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&counter.Name, &counter.Count, &counter.FirstRunAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, request.ErrCounterNotFound
		}
		return nil, fmt.Errorf("error getting run counter %q: %w", name, err)
	}
	return counter, nil
}

func (r *PostgresCounterRepository) Create(ctx context.Context, counter *request.RunCounter) error {
	query := `INSERT INTO run_counters (name, count, first_run_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, counter.Name, counter.Count, counter.FirstRunAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return request.ErrDuplicateCounter
		}
		return fmt.Errorf("error creating run counter %q: %w", counter.Name, err)
	}
	return nil
}

// Increment is a single UPDATE so concurrent runs never lose an increment.
func (r *PostgresCounterRepository) Increment(ctx context.Context, name string) (*request.RunCounter, error) {
	query := `UPDATE run_counters SET count = count + 1 WHERE name = $1
              RETURNING name, count, first_run_at`
	counter := &request.RunCounter{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&counter.Name, &counter.Count, &counter.FirstRunAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, request.ErrCounterNotFound
		}
		return nil, fmt.Errorf("error incrementing run counter %q: %w", name, err)
	}
	return counter, nil
}
