// Package msync has small synchronisation primitives missing in stdlib.
package msync

import "time"

type Nothing struct{}

// Lock is a mutex with bounded wait acquire.
// Zero value is not usable, use NewLock.
type Lock chan Nothing

func NewLock() Lock { return make(chan Nothing, 1) }

func (self Lock) Lock()   { self <- Nothing{} }
func (self Lock) Unlock() { <-self }

// TryLock waits at most timeout for the lock. Zero timeout does not wait.
// Returns true if lock acquired, caller must Unlock.
func (self Lock) TryLock(timeout time.Duration) bool {
	select {
	case self <- Nothing{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case self <- Nothing{}:
		return true
	case <-t.C:
		return false
	}
}
