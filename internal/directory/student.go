package directory

import (
	"errors"
	"time"
)

// ErrStudentNotFound is returned when a lookup resolves no student.
var ErrStudentNotFound = errors.New("student not found")

// Student is a roster entry. The directory owns student records; the
// attendance core only reads them.
type Student struct {
	ID            string    `json:"id"`
	StudentNumber string    `json:"student_number"`
	FullName      string    `json:"full_name"`
	ClassID       string    `json:"class_id"`
	GuardianPhone string    `json:"guardian_phone"`
	QRCode        string    `json:"qr_code"`
	UserID        *string   `json:"user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
