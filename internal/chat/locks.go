package chat

import (
	"hash/fnv"
	"sync"
)

// sessionLocks serializes persist and fan-out per session id over a fixed
// set of mutexes. Two sessions may share a stripe.
type sessionLocks struct {
	stripes []sync.Mutex
}

func newSessionLocks(n int) *sessionLocks {
	if n <= 0 {
		n = 1
	}
	return &sessionLocks{stripes: make([]sync.Mutex, n)}
}

func (l *sessionLocks) lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
