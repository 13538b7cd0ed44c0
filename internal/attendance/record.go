package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Persisted record statuses. There is no persisted "absent": a missing
// row for (student, date) means the student was absent, and "late" is
// derived at summary time from the check-in hour, never stored.
const (
	StatusPresent    = "present"
	StatusCheckedOut = "checked_out"
)

// Scan types accepted by ProcessScan.
const (
	ScanCheckIn  = "check_in"
	ScanCheckOut = "check_out"
)

// ErrConflictingWrite signals that a concurrent scan won the
// read-modify-write on the same (student, date) key. The service
// re-reads and reports the loser's view as an InvalidTransitionError.
var ErrConflictingWrite = errors.New("conflicting concurrent write")

// InvalidTransitionError reports a scan the day-state machine rejects.
// It carries the current state and the requested scan so the caller can
// reconstruct what happened.
type InvalidTransitionError struct {
	StudentID string
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s for student %s: current state %s", e.Requested, e.StudentID, e.Current)
}

// Record is one attendance row per (student, calendar day).
type Record struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	Date         time.Time  `json:"date"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	Status       string     `json:"status"`
	Note         *string    `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// State returns the day-state machine position for a loaded record.
// A nil record is the implicit absent state.
func (r *Record) State() string {
	switch {
	case r == nil || r.CheckInTime == nil:
		return "absent"
	case r.CheckOutTime != nil:
		return StatusCheckedOut
	default:
		return StatusPresent
	}
}

// Filter selects attendance records for reports. Zero-value dimensions
// impose no constraint; set dimensions compose conjunctively.
type Filter struct {
	StudentID string
	ClassID   string
	StartDate *time.Time
	EndDate   *time.Time
}

// Summary holds the derived counts for one day.
type Summary struct {
	TotalStudents int `json:"total_students"`
	Present       int `json:"present"`
	Absent        int `json:"absent"`
	Late          int `json:"late"`
}

// DateOf truncates a timestamp to day granularity in its location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
