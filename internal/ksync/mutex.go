package ksync

import (
	"errors"
	"sync/atomic"

	"waros/internal/sched"
)

var (
	// ErrDestroyed is returned by Lock/TryLockFor when the mutex was
	// destroyed while the caller was waiting.
	ErrDestroyed = errors.New("ksync: mutex destroyed while waiting")
	// ErrWouldBlock is returned by TryLockFor when the lock could not be
	// acquired within the deadline. TryLock reports failure as false.
	ErrWouldBlock = errors.New("ksync: lock not immediately available")
)

// PrimitiveMutex is the untyped lock: an atomic flag plus a wait queue
// of blocked tasks. It can be embedded in a statically-constructed
// singleton (the original's "staticに宣言できる" guarantee) since its
// zero value is a valid, unlocked mutex.
type PrimitiveMutex struct {
	locked atomic.Bool
	queue  SyncQueue[sched.Task]
}

// Lock blocks the calling task until it acquires the mutex, or returns
// ErrDestroyed if the mutex is torn down while waiting.
func (m *PrimitiveMutex) Lock() error {
	if !m.locked.Swap(true) {
		return nil
	}

	this := sched.This()
	ticket := m.queue.Push(this)

	for {
		this.Suspend()

		acquired := false
		destroyed := false
		sched.CriticalSection(func() {
			if !m.locked.Swap(true) {
				if front, ok := m.queue.Front(); ok && front == this {
					acquired = true
					return
				}
				m.locked.Store(false)
				return
			}
			if !m.queue.Contains(ticket) {
				destroyed = true
			}
		})

		if acquired {
			m.queue.Pop()
			return nil
		}
		if destroyed {
			sched.YieldNow() // hand control back to whichever task is destroying the mutex
			return ErrDestroyed
		}
	}
}

// TryLockFor behaves like Lock but gives up after duration ticks
// asleep, returning ErrWouldBlock if the deadline passes unacquired.
func (m *PrimitiveMutex) TryLockFor(duration uint64) error {
	if !m.locked.Swap(true) {
		return nil
	}

	this := sched.This()
	ticket := m.queue.Push(this)

	sched.Sleep(duration)

	var result error
	sched.CriticalSection(func() {
		if m.locked.Swap(true) {
			if !m.queue.Contains(ticket) {
				result = ErrDestroyed
				return
			}
			m.queue.Remove(ticket)
			result = ErrWouldBlock
			return
		}

		if front, ok := m.queue.Front(); !ok || front != this {
			m.locked.Store(false)
			m.queue.Remove(ticket)
			result = ErrWouldBlock
			return
		}

		m.queue.Pop()
	})

	if result == ErrDestroyed {
		sched.YieldNow()
	}
	return result
}

// TryLock acquires the mutex only if it is immediately available.
func (m *PrimitiveMutex) TryLock() bool { return !m.locked.Swap(true) }

// Unlock releases the mutex and resumes waiters from the front of the
// queue until one resumes successfully (a front task that can no
// longer be resumed, e.g. because it was terminated, is popped and
// the next one is tried).
func (m *PrimitiveMutex) Unlock() {
	if !m.locked.Swap(false) {
		return
	}
	for {
		front, ok := m.queue.Front()
		if !ok {
			return
		}
		if err := front.Resume(); err == nil {
			return
		}
		m.queue.Pop()
	}
}

// Destroy permanently locks the mutex and resumes every waiter so each
// observes its ticket missing from the queue and returns ErrDestroyed
// from Lock/TryLockFor, then yields once to let them run.
func (m *PrimitiveMutex) Destroy() {
	m.locked.Store(true)
	for {
		t, ok := m.queue.Pop()
		if !ok {
			break
		}
		t.ResumeLater()
	}
	sched.YieldNow()
}

// Mutex guards a value of type T behind a PrimitiveMutex.
type Mutex[T any] struct {
	inner PrimitiveMutex
	data  T
}

// NewMutex wraps value in an unlocked Mutex.
func NewMutex[T any](value T) *Mutex[T] { return &Mutex[T]{data: value} }

// Lock blocks until the mutex is acquired and returns a guard
// providing exclusive access to the wrapped value.
func (m *Mutex[T]) Lock() (*MutexGuard[T], error) {
	if err := m.inner.Lock(); err != nil {
		return nil, err
	}
	return &MutexGuard[T]{mutex: m}, nil
}

// TryLockFor behaves like Lock but gives up after duration ticks.
func (m *Mutex[T]) TryLockFor(duration uint64) (*MutexGuard[T], error) {
	if err := m.inner.TryLockFor(duration); err != nil {
		return nil, err
	}
	return &MutexGuard[T]{mutex: m}, nil
}

// TryLock acquires the mutex only if immediately available.
func (m *Mutex[T]) TryLock() (*MutexGuard[T], bool) {
	if !m.inner.TryLock() {
		return nil, false
	}
	return &MutexGuard[T]{mutex: m}, true
}

// Destroy tears the mutex down, matching the original's Drop impl —
// Go has no destructors, so callers must call this explicitly when the
// Mutex's owner is torn down (the same documented-convention gap
// internal/timer's Timer/UnmanagedTimer split already carries).
func (m *Mutex[T]) Destroy() { m.inner.Destroy() }

// MutexGuard provides scoped access to a Mutex's contents; callers
// must call Unlock when done since Go has no Drop to do it implicitly.
type MutexGuard[T any] struct {
	mutex *Mutex[T]
}

// Get returns a pointer to the guarded value.
func (g *MutexGuard[T]) Get() *T { return &g.mutex.data }

// Unlock releases the mutex this guard was issued for.
func (g *MutexGuard[T]) Unlock() { g.mutex.inner.Unlock() }
