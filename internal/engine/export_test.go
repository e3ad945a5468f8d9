package engine

// HeldLocks reports how many per-report locks are tracked.
func HeldLocks(e Engine) int {
	e.locks.mu.Lock()
	defer e.locks.mu.Unlock()
	return len(e.locks.m)
}
