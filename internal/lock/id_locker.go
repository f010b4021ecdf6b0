// Package lock serializes in-process work per transfer id.
package lock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// IDLocker hands out one mutex per id. Entries are dropped when the last
// holder releases them.
type IDLocker struct {
	mapMutex sync.Mutex
	idMap    map[int64]*entry
}

// NewIDLocker constructs an IDLocker.
func NewIDLocker() *IDLocker {
	return &IDLocker{idMap: make(map[int64]*entry)}
}

// AcquireLock blocks until id is free.
func (l *IDLocker) AcquireLock(id int64) {
	l.mapMutex.Lock()
	e, ok := l.idMap[id]
	if !ok {
		e = &entry{}
		l.idMap[id] = e
	}
	e.refs++
	l.mapMutex.Unlock()
	e.mu.Lock()
}

// ReleaseLock frees id. Releasing an id that is not held is a no-op.
func (l *IDLocker) ReleaseLock(id int64) {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()
	e, ok := l.idMap[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.idMap, id)
	}
	e.mu.Unlock()
}

// WithLock runs f while holding id.
func (l *IDLocker) WithLock(id int64, f func() error) error {
	l.AcquireLock(id)
	defer l.ReleaseLock(id)
	return f()
}

// Held returns the number of ids with a holder or waiter.
func (l *IDLocker) Held() int {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()
	return len(l.idMap)
}
