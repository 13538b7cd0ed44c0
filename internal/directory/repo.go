package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository reads student and roster data from Postgres. The wider
// admin application owns writes to these tables; the scan pipeline
// only resolves and lists.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, student_number, full_name, class_id, guardian_phone, qr_code, user_id, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (*Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.StudentNumber, &s.FullName, &s.ClassID, &s.GuardianPhone, &s.QRCode, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolveByToken finds the student bound to a scan token. Returns nil
// when no student owns the token.
func (r *Repository) ResolveByToken(ctx context.Context, token string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+`
		FROM students WHERE qr_code = $1
	`, token)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetStudent returns a single student by id, or nil when unknown.
func (r *Repository) GetStudent(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+`
		FROM students WHERE id = $1
	`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Exists reports whether a student id is on the roster.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM students WHERE id = $1`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRoster returns all students ordered by student number.
func (r *Repository) ListRoster(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		ORDER BY student_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		roster = append(roster, *s)
	}
	return roster, rows.Err()
}

// GuardianContact returns the guardian phone number for a student.
func (r *Repository) GuardianContact(ctx context.Context, studentID string) (string, error) {
	var phone string
	err := r.db.QueryRowContext(ctx, `SELECT guardian_phone FROM students WHERE id = $1`, studentID).Scan(&phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("guardian contact for %s: %w", studentID, ErrStudentNotFound)
	}
	return phone, err
}

// RegenerateToken swaps a student's scan token for a fresh one in a
// single statement, so the old token stops resolving the moment the
// new one exists.
func (r *Repository) RegenerateToken(ctx context.Context, studentID string) (string, error) {
	token := "QR-" + uuid.NewString()
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET qr_code = $2, updated_at = NOW()
		WHERE id = $1
	`, studentID, token)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("regenerate token for %s: %w", studentID, ErrStudentNotFound)
	}
	return token, nil
}

// UpsertKiosk ensures a kiosk record exists before tokens are issued.
func (r *Repository) UpsertKiosk(ctx context.Context, kioskID string) error {
	if kioskID == "" {
		return errors.New("kiosk id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kiosks (kiosk_id)
		VALUES ($1)
		ON CONFLICT (kiosk_id) DO NOTHING
	`, kioskID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, kioskID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (kiosk_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, kioskID, token, expiresAt)
	return err
}
