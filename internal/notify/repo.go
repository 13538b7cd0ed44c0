package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists notification requests in Postgres. Rows are kept
// indefinitely as the delivery audit trail.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const requestColumns = `id, student_id, message, destination, status, sent_at, created_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.StudentID, &req.Message, &req.Destination, &req.Status, &req.SentAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Insert writes a new request.
func (r *Repository) Insert(ctx context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, student_id, message, destination, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, req.ID, req.StudentID, req.Message, req.Destination, req.Status)
	if err := row.Scan(&req.CreatedAt); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ListPending returns pending requests, oldest first, so a drain pass
// delivers in enqueue order.
func (r *Repository) ListPending(ctx context.Context) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM notifications
		WHERE status = $1
		ORDER BY created_at ASC
	`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// GetFailed returns a request only when it is currently failed. Unknown
// ids and records in any other state both resolve to
// ErrNotificationNotFound: retry is a narrow filter by design.
func (r *Repository) GetFailed(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM notifications
		WHERE id = $1 AND status = $2
	`, id, StatusFailed)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed notification %s: %w", id, ErrNotificationNotFound)
	}
	return req, err
}

// MarkSent moves a request to sent with its delivery timestamp.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET status = $2, sent_at = $3 WHERE id = $1
	`, id, StatusSent, at)
	return err
}

// SetStatus updates the status only.
func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotificationNotFound)
	}
	return nil
}

// History returns requests, newest first, optionally scoped to one
// student.
func (r *Repository) History(ctx context.Context, studentID string) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM notifications`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]Request, error) {
	var res []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *req)
	}
	return res, rows.Err()
}
