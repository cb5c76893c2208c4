package lending

import "sync"

// memberLocks serializes the limit and duplicate checks of one member.
// Entries are reference counted and dropped once nobody holds or waits on them.
type memberLocks struct {
	mu    sync.Mutex
	locks map[string]*memberLock
}

type memberLock struct {
	sync.Mutex
	refs int
}

func newMemberLocks() *memberLocks {
	return &memberLocks{locks: make(map[string]*memberLock)}
}

// Lock blocks until key is free and returns its unlock func.
func (m *memberLocks) Lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &memberLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

func (m *memberLocks) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
