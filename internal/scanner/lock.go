package scanner

import "sync"

// LockTable guards scan execution: at most one scan per key at a time.
// Purely in-memory; a restarted process always starts with free locks,
// and resumption correctness comes from the checkpoint store instead.
type LockTable struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]bool)}
}

// TryAcquire takes the lock for key if free. Returns false on contention;
// the caller reports "scan in progress" rather than starting another.
func (l *LockTable) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

// Release frees the lock for key.
func (l *LockTable) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// Held reports whether the lock for key is currently taken.
func (l *LockTable) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}
