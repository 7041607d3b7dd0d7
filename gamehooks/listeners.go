package gamehooks

import (
	"sync"
	"sync/atomic"
)

// listeners is a copy-on-write subscriber list. Adds are serialized;
// snapshots are read without locks from any thread.
type listeners[F any] struct {
	mu   sync.Mutex
	list atomic.Pointer[[]F]
}

func (l *listeners[F]) add(f F) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.snapshot()
	next := make([]F, len(old), len(old)+1)
	copy(next, old)
	next = append(next, f)
	l.list.Store(&next)
}

func (l *listeners[F]) snapshot() []F {
	p := l.list.Load()
	if p == nil {
		return nil
	}
	return *p
}
