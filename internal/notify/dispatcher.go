package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolattend/internal/directory"
	"schoolattend/internal/metrics"
)

type requestRepo interface {
	Insert(ctx context.Context, req Request) (Request, error)
	ListPending(ctx context.Context) ([]Request, error)
	GetFailed(ctx context.Context, id string) (*Request, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	SetStatus(ctx context.Context, id, status string) error
	History(ctx context.Context, studentID string) ([]Request, error)
}

type guardianLookup interface {
	GetStudent(ctx context.Context, id string) (*directory.Student, error)
}

// Transport delivers one message to one destination. A timeout counts
// as a failed delivery.
type Transport interface {
	Send(ctx context.Context, to, body string) error
}

// Dispatcher owns notification status transitions: it enqueues requests
// and delivers them one at a time, honoring the transport's rate limit
// with a fixed delay between sends. Sends are never parallelized.
type Dispatcher struct {
	repo      requestRepo
	dir       guardianLookup
	transport Transport
	sendDelay time.Duration
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. sendDelay is the pause between
// consecutive delivery attempts in a drain pass.
func NewDispatcher(repo requestRepo, dir guardianLookup, transport Transport, sendDelay time.Duration) *Dispatcher {
	if sendDelay < 0 {
		sendDelay = 0
	}
	return &Dispatcher{
		repo:      repo,
		dir:       dir,
		transport: transport,
		sendDelay: sendDelay,
		now:       time.Now,
	}
}

// Enqueue records a pending request addressed to the student's guardian
// contact as it stands right now.
func (d *Dispatcher) Enqueue(ctx context.Context, studentID, message string) (Request, error) {
	student, err := d.dir.GetStudent(ctx, studentID)
	if err != nil {
		return Request{}, err
	}
	if student == nil {
		return Request{}, fmt.Errorf("enqueue for %s: %w", studentID, directory.ErrStudentNotFound)
	}
	return d.repo.Insert(ctx, Request{
		StudentID:   studentID,
		Message:     message,
		Destination: student.GuardianPhone,
		Status:      StatusPending,
	})
}

// Drain delivers every pending request sequentially and returns how
// many were delivered. A transport failure marks that record failed and
// the pass continues; already-sent and already-failed records are never
// touched, so back-to-back drains with no new work process zero.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	pending, err := d.repo.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i, req := range pending {
		if i > 0 && d.sendDelay > 0 {
			select {
			case <-time.After(d.sendDelay):
			case <-ctx.Done():
				return processed, ctx.Err()
			}
		}

		if err := d.transport.Send(ctx, req.Destination, req.Message); err != nil {
			log.Printf("delivery failed for notification %s: %v", req.ID, err)
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			if uerr := d.repo.SetStatus(ctx, req.ID, StatusFailed); uerr != nil {
				log.Printf("mark failed for notification %s: %v", req.ID, uerr)
			}
			continue
		}

		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		if err := d.repo.MarkSent(ctx, req.ID, d.now()); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// Retry re-attempts a failed request once. Records absent or in any
// other state resolve to ErrNotificationNotFound. The record is moved
// to retrying for the attempt and always lands back on sent or failed;
// a transport error is surfaced after the record is forced to failed.
func (d *Dispatcher) Retry(ctx context.Context, id string) (Request, error) {
	req, err := d.repo.GetFailed(ctx, id)
	if err != nil {
		return Request{}, err
	}

	if err := d.repo.SetStatus(ctx, id, StatusRetrying); err != nil {
		return Request{}, err
	}

	if err := d.transport.Send(ctx, req.Destination, req.Message); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		if uerr := d.repo.SetStatus(ctx, id, StatusFailed); uerr != nil {
			log.Printf("mark failed for notification %s: %v", id, uerr)
		}
		req.Status = StatusFailed
		return *req, fmt.Errorf("retry delivery for %s: %w", id, err)
	}

	metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
	sentAt := d.now()
	if err := d.repo.MarkSent(ctx, id, sentAt); err != nil {
		return Request{}, err
	}
	req.Status = StatusSent
	req.SentAt = &sentAt
	return *req, nil
}

// History lists requests, optionally scoped to one student.
func (d *Dispatcher) History(ctx context.Context, studentID string) ([]Request, error) {
	return d.repo.History(ctx, studentID)
}
