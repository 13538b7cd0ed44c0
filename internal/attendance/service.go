package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"schoolattend/internal/directory"
	"schoolattend/internal/metrics"
	"schoolattend/internal/notify"
)

type ledger interface {
	Get(ctx context.Context, studentID string, date time.Time) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	MarkCheckedIn(ctx context.Context, id string, at time.Time) error
	MarkCheckedOut(ctx context.Context, id string, at time.Time) error
	ListByDate(ctx context.Context, date time.Time) ([]Record, error)
	ListByFilter(ctx context.Context, f Filter) ([]Record, error)
}

type roster interface {
	ResolveByToken(ctx context.Context, token string) (*directory.Student, error)
	ListRoster(ctx context.Context) ([]directory.Student, error)
}

type notifier interface {
	Enqueue(ctx context.Context, studentID, message string) (notify.Request, error)
}

// Service owns the per-student-day state machine and the daily summary.
type Service struct {
	repo     ledger
	dir      roster
	notifier notifier
	locks    *keyLock
	lateHour int
	now      func() time.Time
}

// NewService creates a service. lateHour is the hour-of-day at or after
// which a check-in counts as late in summaries.
func NewService(repo ledger, dir roster, n notifier, lateHour int) *Service {
	if lateHour <= 0 {
		lateHour = 8
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		notifier: n,
		locks:    newKeyLock(),
		lateHour: lateHour,
		now:      time.Now,
	}
}

// ProcessScan resolves a scan token and applies exactly one transition
// to the student's record for today. On success it enqueues one guardian
// notification; enqueue failure is logged, never rolled into the scan
// result, because the attendance fact is already committed.
func (s *Service) ProcessScan(ctx context.Context, token, scanType string) (Record, error) {
	if scanType != ScanCheckIn && scanType != ScanCheckOut {
		return Record{}, fmt.Errorf("unknown scan type %q", scanType)
	}

	student, err := s.dir.ResolveByToken(ctx, token)
	if err != nil {
		return Record{}, err
	}
	if student == nil {
		return Record{}, fmt.Errorf("token %s: %w", token, directory.ErrStudentNotFound)
	}

	now := s.now()
	day := DateOf(now)

	// Scans for the same student-day are linearized here; scans for
	// different students proceed in parallel.
	key := student.ID + "|" + day.Format("2006-01-02")
	s.locks.lock(key)
	defer s.locks.unlock(key)

	rec, err := s.repo.Get(ctx, student.ID, day)
	if err != nil {
		return Record{}, err
	}

	out, err := s.applyTransition(ctx, rec, student.ID, scanType, now, day)
	if err != nil {
		var ite *InvalidTransitionError
		if errors.As(err, &ite) {
			metrics.ScansTotal.WithLabelValues(scanType, "rejected").Inc()
		}
		return Record{}, err
	}
	metrics.ScansTotal.WithLabelValues(scanType, "ok").Inc()

	verb := "checked in"
	if scanType == ScanCheckOut {
		verb = "checked out"
	}
	msg := fmt.Sprintf("%s has %s at %s", student.FullName, verb, now.Format("3:04:05 PM"))
	if _, err := s.notifier.Enqueue(ctx, student.ID, msg); err != nil {
		log.Printf("notification enqueue failed for student %s: %v", student.ID, err)
	}

	return out, nil
}

func (s *Service) applyTransition(ctx context.Context, rec *Record, studentID, scanType string, now, day time.Time) (Record, error) {
	invalid := func(current string) error {
		return &InvalidTransitionError{StudentID: studentID, Current: current, Requested: scanType}
	}

	switch {
	case rec == nil && scanType == ScanCheckIn:
		created, err := s.repo.Insert(ctx, Record{
			StudentID:   studentID,
			Date:        day,
			CheckInTime: &now,
			Status:      StatusPresent,
		})
		if errors.Is(err, ErrConflictingWrite) {
			return Record{}, s.loserError(ctx, studentID, day, scanType)
		}
		if err != nil {
			return Record{}, err
		}
		return created, nil

	case rec == nil:
		// check_out with no record for today
		return Record{}, invalid("absent")

	case rec.CheckInTime == nil && scanType == ScanCheckIn:
		if err := s.repo.MarkCheckedIn(ctx, rec.ID, now); err != nil {
			if errors.Is(err, ErrConflictingWrite) {
				return Record{}, s.loserError(ctx, studentID, day, scanType)
			}
			return Record{}, err
		}
		rec.CheckInTime = &now
		rec.Status = StatusPresent
		rec.UpdatedAt = now
		return *rec, nil

	case rec.CheckInTime != nil && rec.CheckOutTime == nil && scanType == ScanCheckOut:
		if err := s.repo.MarkCheckedOut(ctx, rec.ID, now); err != nil {
			if errors.Is(err, ErrConflictingWrite) {
				return Record{}, s.loserError(ctx, studentID, day, scanType)
			}
			return Record{}, err
		}
		rec.CheckOutTime = &now
		rec.Status = StatusCheckedOut
		rec.UpdatedAt = now
		return *rec, nil

	default:
		return Record{}, invalid(rec.State())
	}
}

// loserError re-reads the record a concurrent winner wrote and reports
// the rejection from the loser's perspective.
func (s *Service) loserError(ctx context.Context, studentID string, day time.Time, scanType string) error {
	cur, err := s.repo.Get(ctx, studentID, day)
	if err != nil {
		return err
	}
	return &InvalidTransitionError{StudentID: studentID, Current: cur.State(), Requested: scanType}
}

// Report lists records matching the filter, date desc then student asc.
func (s *Service) Report(ctx context.Context, f Filter) ([]Record, error) {
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, fmt.Errorf("end date before start date")
	}
	return s.repo.ListByFilter(ctx, f)
}

// Summarize derives present/absent/late counts for one day against the
// full roster. Lateness is classified here from the check-in hour, not
// read from the record status. A present row with no check-in time
// counts as present.
func (s *Service) Summarize(ctx context.Context, date time.Time) (Summary, error) {
	students, err := s.dir.ListRoster(ctx)
	if err != nil {
		return Summary{}, err
	}
	records, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{TotalStudents: len(students)}
	for _, rec := range records {
		if rec.Status != StatusPresent && rec.Status != StatusCheckedOut {
			continue
		}
		if rec.CheckInTime != nil && rec.CheckInTime.Hour() >= s.lateHour {
			sum.Late++
		} else {
			sum.Present++
		}
	}
	sum.Absent = sum.TotalStudents - sum.Present - sum.Late
	if sum.Absent < 0 {
		sum.Absent = 0
	}
	return sum, nil
}
