package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists the attendance ledger in Postgres. One row per
// (student_id, date), enforced by a unique index that backstops the
// in-process per-key locking.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, student_id, date, check_in_time, check_out_time, status, note, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.Date, &rec.CheckInTime, &rec.CheckOutTime, &rec.Status, &rec.Note, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the record for a student-day, or nil when no row exists.
func (r *Repository) Get(ctx context.Context, studentID string, date time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance WHERE student_id = $1 AND date = $2
	`, studentID, DateOf(date))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Insert writes a new record. A unique violation on (student_id, date)
// means a concurrent scan created the row first and is reported as
// ErrConflictingWrite.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, student_id, date, check_in_time, check_out_time, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`, rec.ID, rec.StudentID, DateOf(rec.Date), rec.CheckInTime, rec.CheckOutTime, rec.Status, rec.Note)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrConflictingWrite
		}
		return Record{}, err
	}
	return rec, nil
}

// MarkCheckedIn sets the check-in time on a record that has none yet.
// The predicate makes the write conditional: zero rows affected means a
// concurrent scan already checked the student in.
func (r *Repository) MarkCheckedIn(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_in_time = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND check_in_time IS NULL
	`, id, at, StatusPresent)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflictingWrite
	}
	return nil
}

// MarkCheckedOut sets the check-out time on a checked-in record.
func (r *Repository) MarkCheckedOut(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_out_time = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND check_in_time IS NOT NULL AND check_out_time IS NULL
	`, id, at, StatusCheckedOut)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflictingWrite
	}
	return nil
}

// ListByDate returns all records for one day, ascending by student id.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE date = $1
		ORDER BY student_id ASC
	`, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByStudent returns a student's history, newest day first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, start, end *time.Time) ([]Record, error) {
	f := Filter{StudentID: studentID, StartDate: start, EndDate: end}
	query, args := filterQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByFilter returns records matching every set filter dimension,
// ordered date desc then student id asc so report output is stable.
func (r *Repository) ListByFilter(ctx context.Context, f Filter) ([]Record, error) {
	query, args := filterQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// filterQuery builds the report query. The class dimension lives on the
// students table, so selecting by class joins through the roster.
func filterQuery(f Filter) (string, []any) {
	cols := "a.id, a.student_id, a.date, a.check_in_time, a.check_out_time, a.status, a.note, a.created_at, a.updated_at"
	query := "SELECT " + cols + " FROM attendance a"
	if f.ClassID != "" {
		query += " INNER JOIN students s ON s.id = a.student_id"
	}
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		clauses = append(clauses, "a.student_id = $"+itoa(len(args)+1))
		args = append(args, f.StudentID)
	}
	if f.ClassID != "" {
		clauses = append(clauses, "s.class_id = $"+itoa(len(args)+1))
		args = append(args, f.ClassID)
	}
	if f.StartDate != nil {
		clauses = append(clauses, "a.date >= $"+itoa(len(args)+1))
		args = append(args, DateOf(*f.StartDate))
	}
	if f.EndDate != nil {
		clauses = append(clauses, "a.date <= $"+itoa(len(args)+1))
		args = append(args, DateOf(*f.EndDate))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY a.date DESC, a.student_id ASC"
	return query, args
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
