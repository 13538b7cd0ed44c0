package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolattend/internal/directory"
)

type fakeRepo struct {
	mu     sync.Mutex
	reqs   map[string]*Request
	order  []string
	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reqs: make(map[string]*Request)}
}

func (r *fakeRepo) Insert(_ context.Context, req Request) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	req.ID = fmt.Sprintf("n-%d", r.nextID)
	if req.Status == "" {
		req.Status = StatusPending
	}
	req.CreatedAt = time.Now()
	stored := req
	r.reqs[req.ID] = &stored
	r.order = append(r.order, req.ID)
	return req, nil
}

func (r *fakeRepo) ListPending(_ context.Context) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Request
	for _, id := range r.order {
		if r.reqs[id].Status == StatusPending {
			res = append(res, *r.reqs[id])
		}
	}
	return res, nil
}

func (r *fakeRepo) GetFailed(_ context.Context, id string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != StatusFailed {
		return nil, fmt.Errorf("failed notification %s: %w", id, ErrNotificationNotFound)
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return ErrNotificationNotFound
	}
	req.Status = StatusSent
	t := at
	req.SentAt = &t
	return nil
}

func (r *fakeRepo) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return ErrNotificationNotFound
	}
	req.Status = status
	return nil
}

func (r *fakeRepo) History(_ context.Context, studentID string) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Request
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.reqs[r.order[i]]
		if studentID != "" && req.StudentID != studentID {
			continue
		}
		res = append(res, *req)
	}
	return res, nil
}

func (r *fakeRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[id].Status
}

type fakeDirectory struct {
	students map[string]directory.Student
}

func (d *fakeDirectory) GetStudent(_ context.Context, id string) (*directory.Student, error) {
	s, ok := d.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (t *fakeTransport) Send(_ context.Context, to, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failFor[to]; ok {
		return err
	}
	t.sent = append(t.sent, to+": "+body)
	return nil
}

func newTestDispatcher(delay time.Duration) (*Dispatcher, *fakeRepo, *fakeTransport) {
	repo := newFakeRepo()
	transport := &fakeTransport{failFor: map[string]error{}}
	dir := &fakeDirectory{students: map[string]directory.Student{
		"s1": {ID: "s1", FullName: "Alice Tan", GuardianPhone: "+6281234"},
		"s2": {ID: "s2", FullName: "Bob Lim", GuardianPhone: "+6285678"},
	}}
	return NewDispatcher(repo, dir, transport, delay), repo, transport
}

func TestEnqueueCreatesPendingWithGuardianContact(t *testing.T) {
	d, _, _ := newTestDispatcher(0)

	req, err := d.Enqueue(context.Background(), "s1", "Alice Tan has checked in at 7:45:00 AM")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "+6281234", req.Destination)
	assert.Nil(t, req.SentAt)
}

func TestEnqueueUnknownStudent(t *testing.T) {
	d, _, _ := newTestDispatcher(0)

	_, err := d.Enqueue(context.Background(), "nope", "hello")
	assert.ErrorIs(t, err, directory.ErrStudentNotFound)
}

func TestDrainDeliversPendingInOrder(t *testing.T) {
	d, repo, transport := newTestDispatcher(0)

	first, err := d.Enqueue(context.Background(), "s1", "first")
	require.NoError(t, err)
	second, err := d.Enqueue(context.Background(), "s2", "second")
	require.NoError(t, err)

	processed, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	require.Len(t, transport.sent, 2)
	assert.Equal(t, "+6281234: first", transport.sent[0])
	assert.Equal(t, "+6285678: second", transport.sent[1])

	for _, id := range []string{first.ID, second.ID} {
		assert.Equal(t, StatusSent, repo.status(id))
		assert.NotNil(t, repo.reqs[id].SentAt)
	}
}

func TestDrainMarksFailedAndContinues(t *testing.T) {
	d, repo, transport := newTestDispatcher(0)
	transport.failFor["+6281234"] = errors.New("gateway timeout")

	failing, err := d.Enqueue(context.Background(), "s1", "will fail")
	require.NoError(t, err)
	ok, err := d.Enqueue(context.Background(), "s2", "will send")
	require.NoError(t, err)

	processed, err := d.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, StatusFailed, repo.status(failing.ID))
	assert.Equal(t, StatusSent, repo.status(ok.ID))
}

func TestDrainIsIdempotent(t *testing.T) {
	d, _, _ := newTestDispatcher(0)

	_, err := d.Enqueue(context.Background(), "s1", "once")
	require.NoError(t, err)

	processed, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	processed, err = d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

func TestDrainLeavesFailedRecordsAlone(t *testing.T) {
	d, repo, transport := newTestDispatcher(0)
	transport.failFor["+6281234"] = errors.New("down")

	failing, err := d.Enqueue(context.Background(), "s1", "fails")
	require.NoError(t, err)
	_, err = d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, repo.status(failing.ID))

	delete(transport.failFor, "+6281234")
	processed, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, StatusFailed, repo.status(failing.ID))
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	d, repo, _ := newTestDispatcher(50 * time.Millisecond)

	_, err := d.Enqueue(context.Background(), "s1", "one")
	require.NoError(t, err)
	two, err := d.Enqueue(context.Background(), "s2", "two")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := d.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, processed)
	// The interrupted record stays pending for the next drain.
	assert.Equal(t, StatusPending, repo.status(two.ID))
}

func TestRetryOnlyAcceptsFailed(t *testing.T) {
	d, repo, _ := newTestDispatcher(0)

	pending, err := d.Enqueue(context.Background(), "s1", "pending")
	require.NoError(t, err)
	sent, err := d.Enqueue(context.Background(), "s2", "sent")
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(context.Background(), sent.ID, time.Now()))

	for _, id := range []string{pending.ID, sent.ID, "missing"} {
		_, err := d.Retry(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotificationNotFound, "retry on %s", id)
	}
	assert.Equal(t, StatusPending, repo.status(pending.ID))
	assert.Equal(t, StatusSent, repo.status(sent.ID))
}

func TestRetrySuccessTransitionsToSent(t *testing.T) {
	d, repo, transport := newTestDispatcher(0)
	transport.failFor["+6281234"] = errors.New("down")

	req, err := d.Enqueue(context.Background(), "s1", "retry me")
	require.NoError(t, err)
	_, err = d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, repo.status(req.ID))

	delete(transport.failFor, "+6281234")
	retried, err := d.Retry(context.Background(), req.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, retried.Status)
	require.NotNil(t, retried.SentAt)
	assert.Equal(t, StatusSent, repo.status(req.ID))
}

func TestRetryFailureLandsBackOnFailed(t *testing.T) {
	d, repo, transport := newTestDispatcher(0)
	transport.failFor["+6281234"] = errors.New("still down")

	req, err := d.Enqueue(context.Background(), "s1", "retry me")
	require.NoError(t, err)
	_, err = d.Drain(context.Background())
	require.NoError(t, err)

	retried, err := d.Retry(context.Background(), req.ID)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, retried.Status)
	// Never stuck in retrying, even though delivery errored.
	assert.Equal(t, StatusFailed, repo.status(req.ID))
}

func TestHistoryFiltersByStudent(t *testing.T) {
	d, _, _ := newTestDispatcher(0)

	_, err := d.Enqueue(context.Background(), "s1", "a")
	require.NoError(t, err)
	_, err = d.Enqueue(context.Background(), "s2", "b")
	require.NoError(t, err)
	_, err = d.Enqueue(context.Background(), "s1", "c")
	require.NoError(t, err)

	all, err := d.History(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := d.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	for _, req := range alice {
		assert.Equal(t, "s1", req.StudentID)
	}
}
