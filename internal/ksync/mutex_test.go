package ksync

import (
	"testing"

	"waros/internal/archsup"
	"waros/internal/sched"
	"waros/internal/timer"
)

func fakeCaps() archsup.Capabilities {
	return archsup.Capabilities{
		Switch:           func(from, to *uintptr) {},
		Leap:             func(to uintptr) {},
		InterruptEnable:  func() {},
		InterruptDisable: func() uintptr { return 0 },
		InterruptRestore: func(uintptr) {},
		InterruptWait:    func() {},
	}
}

func newTestScheduler(t *testing.T) {
	t.Helper()
	timer.Init()
	sched.Init(fakeCaps())
}

func TestTryLockSucceedsWhenUnlockedAndFailsWhileLocked(t *testing.T) {
	newTestScheduler(t)

	var m PrimitiveMutex
	if !m.TryLock() {
		t.Fatal("expected the first TryLock on an unlocked mutex to succeed")
	}
	if m.TryLock() {
		t.Fatal("expected a second TryLock on an already-locked mutex to fail")
	}
}

func TestLockUncontendedSucceedsImmediately(t *testing.T) {
	newTestScheduler(t)

	var m PrimitiveMutex
	if err := m.Lock(); err != nil {
		t.Fatalf("unexpected error locking an uncontended mutex: %v", err)
	}
}

func TestUnlockOfAnAlreadyUnlockedMutexIsANoOp(t *testing.T) {
	newTestScheduler(t)

	var m PrimitiveMutex
	m.Unlock() // must not panic
	if !m.TryLock() {
		t.Fatal("TryLock should still succeed: Unlock on an unlocked mutex changes nothing")
	}
}

func TestMutexGuardExposesTheWrappedValue(t *testing.T) {
	newTestScheduler(t)

	m := NewMutex(42)
	guard, err := m.Lock()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *guard.Get() != 42 {
		t.Fatalf("expected guarded value 42, got %d", *guard.Get())
	}
	*guard.Get() = 7
	guard.Unlock()

	guard2, ok := m.TryLock()
	if !ok {
		t.Fatal("expected TryLock to succeed after Unlock")
	}
	if *guard2.Get() != 7 {
		t.Fatalf("expected the mutation to persist across lock/unlock, got %d", *guard2.Get())
	}
}

func TestDestroyWithNoWaitersLocksPermanently(t *testing.T) {
	newTestScheduler(t)

	var m PrimitiveMutex
	m.Destroy()

	if m.TryLock() {
		t.Fatal("expected a destroyed mutex to remain permanently locked")
	}
}
