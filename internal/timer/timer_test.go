package timer

import "testing"

func newTestManager() *Manager {
	return Init()
}

func TestResetArmsAndTickFiresCallback(t *testing.T) {
	m := newTestManager()

	var fired ID
	var count int
	tm := NewTimerWithCallback(func(id ID) { fired = id; count++ })
	tm.Reset(10)

	m.Tick(9)
	if count != 0 {
		t.Fatalf("expected no fire before the deadline, got %d", count)
	}

	m.Tick(1)
	if count != 1 {
		t.Fatalf("expected exactly one fire at the deadline, got %d", count)
	}
	if fired != tm.ID() {
		t.Fatalf("callback invoked with id %v, want %v", fired, tm.ID())
	}
}

func TestTickOrdersEqualDeadlinesByInsertionOrder(t *testing.T) {
	m := newTestManager()

	var order []ID
	a := NewTimerWithCallback(func(id ID) { order = append(order, id) })
	b := NewTimerWithCallback(func(id ID) { order = append(order, id) })
	a.Reset(5)
	b.Reset(5)

	m.Tick(5)

	if len(order) != 2 || order[0] != a.ID() || order[1] != b.ID() {
		t.Fatalf("expected fire order [%v %v], got %v", a.ID(), b.ID(), order)
	}
}

func TestResetRepositionsAnAlreadyTickingTimer(t *testing.T) {
	m := newTestManager()

	var order []ID
	a := NewTimerWithCallback(func(id ID) { order = append(order, id) })
	b := NewTimerWithCallback(func(id ID) { order = append(order, id) })

	a.Reset(20) // would fire after b
	b.Reset(10)
	a.Reset(5) // now a should fire before b

	m.Tick(20)

	if len(order) != 2 || order[0] != a.ID() || order[1] != b.ID() {
		t.Fatalf("expected reposition to reorder fires to [%v %v], got %v", a.ID(), b.ID(), order)
	}
}

func TestCallbackArmingANewTimerDoesNotCorruptTheTraversal(t *testing.T) {
	m := newTestManager()

	var secondFired bool
	var second Timer
	second = NewTimerWithCallback(func(ID) { secondFired = true })

	first := NewTimerWithCallback(func(ID) {
		second.Reset(0) // rearms during the same Tick's traversal
	})
	first.Reset(5)

	m.Tick(5)
	if secondFired {
		t.Fatal("the rearmed timer must not fire inside the same Tick that armed it")
	}

	m.Tick(0)
	if !secondFired {
		t.Fatal("expected the rearmed timer to fire once its new deadline is reached")
	}
}

func TestQueueHandlerPushesOnExpiry(t *testing.T) {
	m := newTestManager()

	q := &fakeQueue{}
	tm := NewTimerWithQueue(q)
	tm.Reset(3)

	m.Tick(3)

	if len(q.pushed) != 1 || q.pushed[0] != tm.ID() {
		t.Fatalf("expected one push of %v, got %v", tm.ID(), q.pushed)
	}
}

func TestCloseReturnsSlotToFreePoolAndRemovesFromTicking(t *testing.T) {
	m := newTestManager()

	var count int
	tm := NewTimerWithCallback(func(ID) { count++ })
	tm.Reset(10)
	tm.Close()

	m.Tick(10)
	if count != 0 {
		t.Fatal("a closed timer must not fire")
	}

	reused := NewTimerWithCallback(func(ID) {})
	if reused.ID() != tm.ID() {
		t.Fatalf("expected the closed slot %v to be reused, got %v", tm.ID(), reused.ID())
	}
}

type fakeQueue struct{ pushed []ID }

func (q *fakeQueue) PushTimer(id ID) { q.pushed = append(q.pushed, id) }
