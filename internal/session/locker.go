package session

import "sync"

// Locker serializes dialogue turns per user identifier. Without it, two
// overlapping turns from the same user would read the same snapshot and
// write back divergent updates with last-write-wins at the store.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a per-user turn serializer.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*userLock)}
}

// Lock acquires the lock for userID and returns its release function.
// Entries are removed once no turn holds or waits on them, so the map does
// not grow with the total user population.
func (l *Locker) Lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
