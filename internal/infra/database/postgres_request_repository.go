// internal/infra/database/postgres_request_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"psirt_report_bot/internal/domain/request"
)

// PostgresRequestRepository implements request.Repository on the report_requests table.
// Outcome writes are single UPDATE statements guarded on the current outcome,
// so concurrent runs rely only on per-row atomicity.
type PostgresRequestRepository struct {
	db *sql.DB
}

func NewPostgresRequestRepository(db *sql.DB) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: db}
}

const requestColumns = `id, requester_id, created_at_text, created_at, sender_display_name, reply_target,
       report_variant, report_window_days, classification, outcome, diagnostic,
       dispatch_claimed_at, delivery_status_code, delivered_at`

func (r *PostgresRequestRepository) ListPendingIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM report_requests WHERE outcome IS NULL ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying pending report requests: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PostgresRequestRepository) GetByID(ctx context.Context, id int64) (*request.Record, error) {
	query := `SELECT ` + requestColumns + ` FROM report_requests WHERE id = $1`
	var (
		rec            request.Record
		createdAtText  sql.NullString
		classification sql.NullString
		outcome        sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.RequesterID, &createdAtText, &rec.CreatedAt.Time, &rec.SenderDisplayName, &rec.ReplyTarget,
		&rec.ReportVariant, &rec.ReportWindowDays, &classification, &outcome, &rec.Diagnostic,
		&rec.DispatchClaimedAt, &rec.DeliveryStatusCode, &rec.DeliveredAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, request.ErrRequestNotFound
		}
		return nil, fmt.Errorf("error getting report request by ID: %w", err)
	}
	rec.CreatedAt.Text = createdAtText.String
	rec.Classification = request.Classification(classification.String)
	rec.Outcome = request.Outcome(outcome.String)
	return &rec, nil
}

func (r *PostgresRequestRepository) NormalizeCreatedAt(ctx context.Context, id int64, createdAt time.Time) error {
	query := `UPDATE report_requests SET created_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, createdAt)
	if err != nil {
		return fmt.Errorf("error normalizing created_at: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return request.ErrRequestNotFound
	}
	return nil
}

func (r *PostgresRequestRepository) MarkDuplicate(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE report_requests SET outcome = 'duplicate' WHERE id = $1 AND outcome IS NULL`
	return r.execGuarded(ctx, "marking duplicate", query, id)
}

func (r *PostgresRequestRepository) Classify(ctx context.Context, id int64, classification request.Classification, outcome request.Outcome) (bool, error) {
	query := `UPDATE report_requests
               SET classification = $2, outcome = NULLIF($3::text, '')
               WHERE id = $1 AND outcome IS NULL`
	return r.execGuarded(ctx, "classifying request", query, id, string(classification), string(outcome))
}

func (r *PostgresRequestRepository) MarkUnknownRequest(ctx context.Context, id int64, diagnostic string) (bool, error) {
	query := `UPDATE report_requests SET outcome = 'unknown_request', diagnostic = $2
               WHERE id = $1 AND outcome IS NULL`
	return r.execGuarded(ctx, "marking unknown request", query, id, diagnostic)
}

func (r *PostgresRequestRepository) ClaimDispatch(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	query := `UPDATE report_requests SET outcome = 'valid', dispatch_claimed_at = $2
               WHERE id = $1
                 AND (outcome IS NULL
                      OR (outcome = 'valid' AND delivery_status_code IS NULL AND dispatch_claimed_at < $3))`
	return r.execGuarded(ctx, "claiming request for dispatch", query, id, now, staleBefore)
}

func (r *PostgresRequestRepository) RecordDelivery(ctx context.Context, id int64, statusCode int, deliveredAt time.Time) (bool, error) {
	query := `UPDATE report_requests SET delivery_status_code = $2, delivered_at = $3
               WHERE id = $1 AND outcome = 'valid' AND delivery_status_code IS NULL`
	return r.execGuarded(ctx, "recording delivery", query, id, statusCode, deliveredAt)
}

func (r *PostgresRequestRepository) ListStaleClaims(ctx context.Context, staleBefore time.Time) ([]int64, error) {
	query := `SELECT id FROM report_requests
               WHERE outcome = 'valid' AND delivery_status_code IS NULL AND dispatch_claimed_at < $1
               ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("error querying stale dispatch claims: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// execGuarded runs a conditional UPDATE and reports whether a row matched.
func (r *PostgresRequestRepository) execGuarded(ctx context.Context, action, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("error %s: %w", action, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error %s (rows affected): %w", action, err)
	}
	return n == 1, nil
}

// Helper to scan a single id column
func scanIDs(rows *sql.Rows) ([]int64, error) {
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating id rows: %w", err)
	}
	return ids, nil
}
