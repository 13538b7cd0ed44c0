package notify

import (
	"errors"
	"time"
)

// Delivery statuses. A record never leaves sent; retrying is a
// transient state held only for the duration of one retry attempt.
const (
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusRetrying = "retrying"
)

// ErrNotificationNotFound is returned for unknown ids, and by Retry for
// records that exist but are not in the failed state.
var ErrNotificationNotFound = errors.New("notification not found")

// Request is one outbound guardian message. Destination is copied from
// the guardian contact at creation time and stays stable even if the
// contact later changes.
type Request struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Message     string     `json:"message"`
	Destination string     `json:"destination"`
	Status      string     `json:"status"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
