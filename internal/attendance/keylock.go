package attendance

import "sync"

// keyLock serializes work per (student, date) key so two simultaneous
// scans for the same student cannot both observe the same day-state.
// Entries are reference counted and dropped on last unlock.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*lockEntry)}
}

func (l *keyLock) lock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()
	e.Lock()
}

func (l *keyLock) unlock(key string) {
	l.mu.Lock()
	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
	e.Unlock()
}
