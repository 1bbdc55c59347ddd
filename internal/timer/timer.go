// Package timer implements the software timer wheel: a fixed 256-entry
// pool of timer slots, a free list, and a deadline-sorted "ticking" list
// walked once per architecture periodic-IRQ tick. Grounded on
// original_source/Kernel/timer.rs (TimerManager/TimerEntity/Timer/
// UnmanagedTimer).
package timer

const (
	// PoolSize is the fixed number of timer slots, matching the
	// original's `timer_pool: [TimerEntity; 256]`.
	PoolSize = 256
	noLink   = -1
)

// ID identifies one pool slot.
type ID uint16

// EventQueue is the subset of internal/event.Queue a timer needs: a
// handler kind that files a timer-expiry event rather than invoking a
// callback directly. Declared locally (accept-interfaces style, as
// internal/slab does for its PageMapper) so this package never imports
// internal/event.
type EventQueue interface {
	PushTimer(id ID)
}

type handlerKind int

const (
	handlerUnset handlerKind = iota
	handlerQueue
	handlerCallback
)

type entity struct {
	id       ID
	kind     handlerKind
	queue    EventQueue
	callback func(ID)
	tick     uint64
	ticking  bool
	prev     int32
	next     int32
}

// Manager owns the fixed timer pool, free list, and deadline-sorted
// ticking list. The zero value is not ready for use; call Init.
type Manager struct {
	pool        [PoolSize]entity
	freeHead    int32
	tickingHead int32
	counter     uint64
}

var global *Manager

// Init constructs the process-wide timer manager: every slot starts on
// the free list in id order, and the ticking list starts empty.
func Init() *Manager {
	m := &Manager{freeHead: 0, tickingHead: noLink}
	for i := range m.pool {
		m.pool[i] = entity{id: ID(i), prev: int32(i - 1), next: int32(i + 1)}
	}
	m.pool[0].prev = noLink
	m.pool[PoolSize-1].next = noLink
	global = m
	return m
}

// GetManager returns the process-wide timer manager. Panics if called
// before Init.
func GetManager() *Manager {
	if global == nil {
		panic("timer: GetManager called before Init")
	}
	return global
}

// Counter returns the current tick count.
func (m *Manager) Counter() uint64 { return m.counter }

func (m *Manager) popFree() (ID, bool) {
	if m.freeHead == noLink {
		return 0, false
	}
	id := ID(m.freeHead)
	e := &m.pool[id]
	m.freeHead = e.next
	if m.freeHead != noLink {
		m.pool[m.freeHead].prev = noLink
	}
	e.prev, e.next = noLink, noLink
	return id, true
}

func (m *Manager) pushFree(id ID) {
	e := &m.pool[id]
	e.kind = handlerUnset
	e.queue = nil
	e.callback = nil
	e.tick = 0
	e.ticking = false
	e.next = m.freeHead
	e.prev = noLink
	if m.freeHead != noLink {
		m.pool[m.freeHead].prev = int32(id)
	}
	m.freeHead = int32(id)
}

// insertTicking inserts id into the deadline-sorted ticking list,
// preserving ascending-deadline order with equal-deadline ties broken in
// insertion order (a later equal-deadline insert lands after an earlier
// one).
func (m *Manager) insertTicking(id ID) {
	e := &m.pool[id]
	e.ticking = true

	if m.tickingHead == noLink {
		m.tickingHead = int32(id)
		e.prev, e.next = noLink, noLink
		return
	}

	cur := m.tickingHead
	var prev int32 = noLink
	for cur != noLink && m.pool[cur].tick <= e.tick {
		prev = cur
		cur = m.pool[cur].next
	}

	e.prev = prev
	e.next = cur
	if cur != noLink {
		m.pool[cur].prev = int32(id)
	}
	if prev == noLink {
		m.tickingHead = int32(id)
	} else {
		m.pool[prev].next = int32(id)
	}
}

func (m *Manager) removeTicking(id ID) {
	e := &m.pool[id]
	if !e.ticking {
		return
	}
	if e.prev != noLink {
		m.pool[e.prev].next = e.next
	} else {
		m.tickingHead = e.next
	}
	if e.next != noLink {
		m.pool[e.next].prev = e.prev
	}
	e.ticking = false
	e.prev, e.next = noLink, noLink
}

func (m *Manager) withCallback(cb func(ID)) ID {
	id, ok := m.popFree()
	if !ok {
		panic("timer: pool exhausted")
	}
	m.pool[id].kind = handlerCallback
	m.pool[id].callback = cb
	return id
}

func (m *Manager) withQueue(q EventQueue) ID {
	id, ok := m.popFree()
	if !ok {
		panic("timer: pool exhausted")
	}
	m.pool[id].kind = handlerQueue
	m.pool[id].queue = q
	return id
}

// Reset (re)arms id for counter+delay, atomically relocating it within
// the sorted ticking list if it was already armed.
func (m *Manager) Reset(id ID, delay uint64) {
	e := &m.pool[id]
	if e.ticking {
		m.removeTicking(id)
	}
	e.tick = m.counter + delay
	m.insertTicking(id)
}

// Remove detaches id from the ticking list (if present) and returns the
// slot to the free list — the shared tail of Timer/UnmanagedTimer
// release.
func (m *Manager) Remove(id ID) {
	m.removeTicking(id)
	m.pushFree(id)
}

// Tick advances the counter by n and dispatches every timer whose
// deadline has passed. Queue handlers fire immediately (pushing is
// side-effect-free for iteration); callback handlers are collected into
// a local list and only invoked after the sorted-list traversal
// completes, so a callback that arms a new timer can never corrupt the
// walk it's itself a part of.
func (m *Manager) Tick(n uint64) {
	m.counter += n

	var callbacks []ID
	for {
		head := m.tickingHead
		if head == noLink || m.pool[head].tick > m.counter {
			break
		}
		id := ID(head)
		e := &m.pool[id]
		m.removeTicking(id)

		switch e.kind {
		case handlerQueue:
			e.queue.PushTimer(id)
		case handlerCallback:
			callbacks = append(callbacks, id)
		default:
			panic("timer: dispatched an unset handler")
		}
	}

	for _, id := range callbacks {
		m.pool[id].callback(id)
	}
}

// Timer is an RAII-style handle: callers are expected to call Close as
// soon as the timer's owner is torn down, mirroring the original's
// Drop-driven Timer. Go has no destructors, so the "RAII" half of the
// contract is a convention, not an enforced guarantee — see
// DESIGN.md's internal/timer entry.
type Timer struct{ id ID }

// NewTimerWithCallback reserves a pool slot that invokes cb on expiry.
func NewTimerWithCallback(cb func(ID)) Timer {
	return Timer{id: GetManager().withCallback(cb)}
}

// NewTimerWithQueue reserves a pool slot that posts to q on expiry.
func NewTimerWithQueue(q EventQueue) Timer {
	return Timer{id: GetManager().withQueue(q)}
}

// ID returns the underlying pool slot id.
func (t Timer) ID() ID { return t.id }

// Reset (re)arms the timer for delay ticks from now.
func (t Timer) Reset(delay uint64) { GetManager().Reset(t.id, delay) }

// Close releases the slot back to the free pool.
func (t Timer) Close() { GetManager().Remove(t.id) }

// UnmanagedTimer is the manual-release counterpart to Timer, used when
// the owner is a statically-constructed singleton that cannot hold an
// RAII-style handle through a normal scope (original_source's own use
// case: TaskManager's own preemption timer, which outlives every scope
// that could `defer` a release).
type UnmanagedTimer struct{ id ID }

// NewUnmanagedTimerWithCallback reserves a pool slot that invokes cb on
// expiry.
func NewUnmanagedTimerWithCallback(cb func(ID)) UnmanagedTimer {
	return UnmanagedTimer{id: GetManager().withCallback(cb)}
}

// NewUnmanagedTimerWithQueue reserves a pool slot that posts to q on
// expiry.
func NewUnmanagedTimerWithQueue(q EventQueue) UnmanagedTimer {
	return UnmanagedTimer{id: GetManager().withQueue(q)}
}

// ID returns the underlying pool slot id.
func (t UnmanagedTimer) ID() ID { return t.id }

// Reset (re)arms the timer for delay ticks from now.
func (t UnmanagedTimer) Reset(delay uint64) { GetManager().Reset(t.id, delay) }

// Close releases the slot back to the free pool. Must be called
// explicitly by the owner; nothing calls it automatically.
func (t UnmanagedTimer) Close() { GetManager().Remove(t.id) }
