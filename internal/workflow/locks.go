package workflow

import (
	"hash/fnv"
	"sync"
)

// stripedLocks serializes check-then-act sequences per step. Striping bounds
// memory while keeping unrelated steps off the same mutex; the conditional
// status updates in the store remain the cross-process guard.
type stripedLocks struct {
	stripes []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n <= 0 {
		n = 16
	}
	return &stripedLocks{stripes: make([]sync.Mutex, n)}
}

// lock acquires the stripe for key and returns its unlock func.
func (l *stripedLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[int(h.Sum32())%len(l.stripes)]
	m.Lock()
	return m.Unlock
}
