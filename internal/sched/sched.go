// Package sched implements the priority-preemptive task scheduler: a
// fixed set of round-robin ready queues (one per priority), a suspended
// list, a free list of reusable TaskData nodes, and a single recurring
// preemption timer. Grounded on original_source/Kernel/task.rs
// (TaskManager/TaskData/Task) and
// original_source/Kernel/arch/x86_common/task.rs (TaskEntity/switch/
// leap), with internal/timer supplying both each task's own one-shot
// sleep timer and the manager's own unmanaged preemption timer.
package sched

import (
	"errors"
	"reflect"
	"unsafe"

	"waros/internal/archsup"
	"waros/internal/timer"
)

// Priority levels, ordered low to high so int comparison gives priority
// ordering directly (spec §4.5's "highest non-empty priority level
// wins strictly").
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityMiddle
	PriorityHigh
	PriorityCritical
	priorityCount
)

// DefaultPriority is the priority every task starts at, matching the
// original's Task::DEFAULT_PRIORITY.
const DefaultPriority = PriorityMiddle

// SwitchIntervalTicks is TASK_SWITCH_INTERVAL in internal/timer ticks.
const SwitchIntervalTicks = 20

// stackBytes is TASK_STACK_SIZE: a fresh 64 KiB stack per task.
const stackBytes = 64 * 1024

// State mirrors the Free/Runnable/Suspended state machine of spec §4.5.
type State int

const (
	StateFree State = iota
	StateRunnable
	StateSuspended
)

var (
	ErrInvalidTask  = errors.New("sched: invalid task")
	ErrInRunning    = errors.New("sched: task is currently running")
	ErrInvalidState = errors.New("sched: task is in the wrong state for this operation")
)

// entity is the architecture-neutral half of TaskEntity: a private
// stack plus a single saved stack-pointer word. The original's
// x86_common TaskEntity carries separate sp/ip fields because its
// task_switch/task_leap primitives take both; internal/archsup's
// Capabilities.Switch/Leap collapse that to one word per side, so
// setup folds the entry point into the initial stack image itself
// (the slot a first resume treats as its return address) rather than
// threading a second register through the switch call.
type entity struct {
	stack []uintptr
	sp    uintptr
}

func wordsPerStack() int { return stackBytes / int(unsafe.Sizeof(uintptr(0))) }

func newEntity() entity {
	return entity{stack: make([]uintptr, wordsPerStack())}
}

// setup arranges the stack so the first switch into this task resumes
// at entry(arg); if entry ever returns, the trampoline word resumes at
// returnTo instead, matching the original's sp[0]=return_to/sp[1]=arg
// image (extended by one word here since archsup folds the entry
// point into the stack rather than carrying it in a separate register).
func (e *entity) setup(entry, returnTo func(arg uintptr), arg uintptr) {
	n := len(e.stack)
	e.stack[n-3] = uintptr(reflect.ValueOf(entry).Pointer())
	e.stack[n-2] = arg
	e.stack[n-1] = uintptr(reflect.ValueOf(returnTo).Pointer())
	e.sp = uintptr(unsafe.Pointer(&e.stack[n-3]))
}

func (e *entity) setupPrimary() {} // current task already executing; nothing to install

func (e *entity) terminate() { e.sp = 0 }

// TaskData is one scheduler-owned control block: metadata only (no
// page-frame-backed memory), so — like internal/slab's bufctl chain —
// it lives in ordinary Go-heap memory with plain pointer links rather
// than the array-index links internal/buddy and internal/timer use for
// their fixed, raw-memory-backed pools.
type TaskData struct {
	id       uint64
	state    State
	priority Priority
	timer    timer.Timer
	entity   entity
	prev     *TaskData
	next     *TaskData
}

// Task is a handle to a TaskData slot. id guards against a handle
// outliving its slot's reuse: once freed and reassigned, the slot's id
// no longer matches and IsValid reports false.
type Task struct {
	id   uint64
	data *TaskData
}

// IsValid reports whether the handle still refers to a live task
// occupying the same slot it was issued for.
func (t Task) IsValid() bool { return t.data != nil && t.data.id == t.id && t.data.state != StateFree }

// ID returns the task's monotonic identifier.
func (t Task) ID() uint64 { return t.id }

func (t Task) requireValid() error {
	if !t.IsValid() {
		return ErrInvalidTask
	}
	return nil
}

// Priority returns the task's current priority.
func (t Task) Priority() (Priority, error) {
	if err := t.requireValid(); err != nil {
		return 0, err
	}
	return t.data.priority, nil
}

// IsRunning reports whether t is the task currently executing.
func (t Task) IsRunning() bool { return GetManager().running == t.data }

// IsPrimary reports whether t is the boot-time primary task.
func (t Task) IsPrimary() bool { return GetManager().primary == t.data }

// Terminate tears t down, freeing its slot for reuse.
func (t Task) Terminate() error { return GetManager().Terminate(t) }

// SetPriority moves t between ready queues, forcing an immediate
// switch if raising it above the running task's priority.
func (t Task) SetPriority(p Priority) error { return GetManager().SetPriority(t, p) }

// Suspend moves t out of its ready queue.
func (t Task) Suspend() error { return GetManager().Suspend(t) }

// Resume moves t back into its ready queue, switching immediately if
// it now outranks the running task.
func (t Task) Resume() error { return GetManager().Resume(t, true) }

// ResumeLater resumes t without forcing an immediate switch, used by
// resumeByTimer where forcing a switch from inside a timer callback
// would be unsafe.
func (t Task) ResumeLater() error { return GetManager().Resume(t, false) }

// list is an intrusive doubly-linked queue of *TaskData, tracking its
// own length so canSwitch's "exactly one runnable at this priority"
// check is O(1).
type list struct {
	head, tail *TaskData
	count      int
}

func (l *list) isEmpty() bool { return l.count == 0 }

func (l *list) pushBack(d *TaskData) {
	d.prev, d.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = d
	} else {
		l.head = d
	}
	l.tail = d
	l.count++
}

func (l *list) remove(d *TaskData) {
	if d.prev != nil {
		d.prev.next = d.next
	} else {
		l.head = d.next
	}
	if d.next != nil {
		d.next.prev = d.prev
	} else {
		l.tail = d.prev
	}
	d.prev, d.next = nil, nil
	l.count--
}

// Manager owns every ready queue, the suspended and free lists, and
// the single recurring preemption timer. The zero value is not ready
// for use; call Init.
type Manager struct {
	caps            archsup.Capabilities
	runnable        [priorityCount]list
	suspended       list
	free            list
	running         *TaskData
	currentPriority Priority
	primary         *TaskData
	preempt         timer.UnmanagedTimer
	counter         uint64
}

var global *Manager

// Init constructs the process-wide scheduler: the calling context
// becomes the primary task, and a dedicated Idle-priority task running
// an infinite wait-for-interrupt loop is added immediately after,
// matching spec §4.5's "added at kernel init and never terminated".
func Init(caps archsup.Capabilities) *Manager {
	primary := &TaskData{id: 0, state: StateRunnable, priority: DefaultPriority, entity: newEntity()}
	primary.entity.setupPrimary()
	primary.timer = timer.NewTimerWithCallback(resumeByTimer)

	m := &Manager{caps: caps, currentPriority: DefaultPriority, running: primary, primary: primary}
	m.runnable[DefaultPriority].pushBack(primary)
	global = m

	m.preempt = timer.NewUnmanagedTimerWithCallback(switchByTimer)

	idle := m.Add(idleEntry, 0)
	if err := idle.SetPriority(PriorityIdle); err != nil {
		panic("sched: failed to install idle task: " + err.Error())
	}

	m.resetTimer()
	return m
}

// GetManager returns the process-wide scheduler. Panics if called
// before Init.
func GetManager() *Manager {
	if global == nil {
		panic("sched: GetManager called before Init")
	}
	return global
}

func idleEntry(uintptr) {
	for {
		GetManager().caps.InterruptWait()
	}
}

func (m *Manager) taskIsValid(d *TaskData) bool { return d != nil && d.state != StateFree }

// highestPriority returns the highest priority with a non-empty ready
// queue. Init guarantees the Idle queue is always non-empty once the
// idle task is installed, so this never inspects an all-empty state
// after Init completes.
func (m *Manager) highestPriority() Priority {
	for p := priorityCount - 1; p >= 0; p-- {
		if !m.runnable[p].isEmpty() {
			return p
		}
	}
	return DefaultPriority
}

// highestPriorityWithout returns the highest priority with a ready
// task other than excl, per spec §4.5's round-robin successor rule.
func (m *Manager) highestPriorityWithout(excl *TaskData) Priority {
	for p := priorityCount - 1; p >= 0; p-- {
		q := &m.runnable[p]
		switch q.count {
		case 0:
			continue
		case 1:
			if q.head == excl {
				continue
			}
			return p
		default:
			return p
		}
	}
	return DefaultPriority
}

func (m *Manager) currentTasks() *list { return &m.runnable[m.currentPriority] }

func (m *Manager) pushTask(d *TaskData) { m.runnable[d.priority].pushBack(d) }

func (m *Manager) removeTask(d *TaskData) { m.runnable[d.priority].remove(d) }

func (m *Manager) popFree() *TaskData {
	if m.free.isEmpty() {
		d := &TaskData{state: StateFree, entity: newEntity()}
		return d
	}
	d := m.free.head
	m.free.remove(d)
	return d
}

// Add installs a new task running entry(arg) at Priority::Middle,
// reusing a free-pool slot if one is available.
func (m *Manager) Add(entry func(arg uintptr), arg uintptr) Task {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	d := m.popFree()
	m.counter++
	d.id = m.counter
	d.state = StateRunnable
	d.priority = DefaultPriority
	d.timer = timer.NewTimerWithCallback(resumeByTimer)
	d.entity.setup(entry, taskTerminated, arg)
	m.pushTask(d)

	return Task{id: d.id, data: d}
}

func (m *Manager) resetTimer() { m.preempt.Reset(SwitchIntervalTicks) }

func (m *Manager) isSwitchNeeded() bool { return m.highestPriority() > m.currentPriority }

// canSwitch reports whether a switch candidate exists: either the
// current priority's queue holds more than the running task, or a
// higher queue has become non-empty.
func (m *Manager) canSwitch() bool { return m.currentTasks().count != 1 || m.isSwitchNeeded() }

func switchByTimer(timer.ID) {
	m := GetManager()
	if m.canSwitch() {
		m.switchToNext()
	} else {
		m.resetTimer()
	}
}

// YieldNow switches to the next ready task if one exists; otherwise it
// enables interrupts and halts for exactly one interrupt, matching
// spec §4.5's yield_now().
func YieldNow() {
	m := GetManager()
	if m.canSwitch() {
		m.switchToNext()
		return
	}
	prior := m.caps.InterruptDisable()
	m.caps.InterruptEnable()
	m.caps.InterruptWait()
	m.caps.InterruptRestore(prior)
}

// switchIfNeeded switches only when a strictly higher priority has
// become runnable, reporting whether it did.
func (m *Manager) switchIfNeeded() bool {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	if m.isSwitchNeeded() {
		m.switchToNext()
		return true
	}
	return false
}

// forwardTask advances m.running to the round-robin successor within
// the highest non-empty priority (excluding the currently-running
// task from the "is this queue really non-empty" test), wrapping to
// the queue's head either when the priority changed or the running
// task was already last in its list.
func (m *Manager) forwardTask() *TaskData {
	highest := m.highestPriorityWithout(m.running)

	var next *TaskData
	if m.currentPriority != highest {
		m.currentPriority = highest
		next = m.runnable[highest].head
	} else if m.running.next != nil {
		next = m.running.next
	} else {
		next = m.currentTasks().head
	}

	m.running = next
	return next
}

func (m *Manager) switchToNext() {
	m.resetTimer()

	cur := m.running
	next := m.forwardTask()
	m.caps.Switch(&cur.entity.sp, &next.entity.sp)
}

func (m *Manager) terminateTask(d *TaskData) error {
	switch d.state {
	case StateRunnable:
		m.removeTask(d)
	case StateSuspended:
		m.suspended.remove(d)
	default:
		return ErrInvalidState
	}

	d.state = StateFree
	m.free.pushBack(d)
	d.entity.terminate()
	d.timer.Close()

	return nil
}

// Terminate frees t's slot. A running task cannot terminate itself
// directly (spec requires switching away first) and reports
// ErrInRunning.
func (m *Manager) Terminate(t Task) error {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	if !t.IsValid() {
		return ErrInvalidTask
	}
	if t.IsRunning() {
		return ErrInRunning
	}

	if err := m.terminateTask(t.data); err != nil {
		return err
	}
	m.switchIfNeeded()
	return nil
}

// terminated is the trampoline's only return path: discard the
// current context via Leap (no save) and resume the successor.
func (m *Manager) terminated() {
	m.caps.InterruptDisable()

	cur := m.running
	next := m.forwardTask()
	if err := m.terminateTask(cur); err != nil {
		panic("sched: terminated() on an already-free task: " + err.Error())
	}

	m.resetTimer()
	m.caps.Leap(next.entity.sp)
}

func taskTerminated(uintptr) { GetManager().terminated() }

// SetPriority moves t between ready queues. Lowering the running
// task's own priority never forces a switch; raising another task's
// priority above the running task's does.
func (m *Manager) SetPriority(t Task, p Priority) error {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	if !t.IsValid() {
		return ErrInvalidTask
	}

	d := t.data
	switch d.state {
	case StateRunnable:
		if d.priority != p {
			m.removeTask(d)
			d.priority = p
			m.pushTask(d)
			if t.IsRunning() {
				m.currentPriority = p
			} else if p > m.currentPriority {
				m.switchToNext()
			}
		}
	case StateSuspended:
		d.priority = p
	default:
		return ErrInvalidState
	}
	return nil
}

func resumeByTimer(id timer.ID) {
	m := GetManager()
	for d := m.suspended.head; d != nil; d = d.next {
		if d.timer.ID() == id {
			Task{id: d.id, data: d}.ResumeLater()
			return
		}
	}
}

// Suspend moves t out of its ready queue, switching away immediately
// if t was the running task.
func (m *Manager) Suspend(t Task) error {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	if !t.IsValid() {
		return ErrInvalidTask
	}

	d := t.data
	if d.state != StateRunnable {
		return ErrInvalidState
	}
	d.state = StateSuspended
	m.removeTask(d)
	m.suspended.pushBack(d)

	if t.IsRunning() {
		m.switchToNext()
	}
	return nil
}

// Resume moves t back into its ready queue. When now is true and t
// now outranks the running task, it switches immediately; resumeByTimer
// always passes now=false since forcing a switch from inside a timer
// callback would reenter the scheduler unsafely.
func (m *Manager) Resume(t Task, now bool) error {
	prior := m.caps.InterruptDisable()
	defer m.caps.InterruptRestore(prior)

	if !t.IsValid() {
		return ErrInvalidTask
	}

	d := t.data
	if d.state != StateSuspended {
		return ErrInvalidState
	}
	d.state = StateRunnable
	m.suspended.remove(d)
	m.pushTask(d)

	if now && d.priority > m.currentPriority {
		m.switchToNext()
	}
	return nil
}

// Sleep arms the running task's own one-shot timer for duration ticks
// and suspends it; duration == 0 is a guaranteed trip through the
// scheduler (a forced yield).
func Sleep(duration uint64) {
	t := This()
	t.data.timer.Reset(duration)
	if err := t.Suspend(); err != nil {
		panic("sched: sleep on an invalid or non-runnable task: " + err.Error())
	}
}

// CriticalSection runs fn with interrupts disabled, restoring the
// prior state afterward — the same interrupt-blocker bracket every
// public scheduler operation uses internally (spec §4.5's
// "Concurrency discipline"), exposed so internal/ksync's lock/unlock
// paths can bracket their own check-then-act sequences against
// preemption without reaching into archsup directly.
func CriticalSection(fn func()) { GetManager().caps.Critical(fn) }

// This returns a handle to the currently-running task.
func This() Task {
	m := GetManager()
	return Task{id: m.running.id, data: m.running}
}

// Add installs a new task at the process-wide scheduler.
func Add(entry func(arg uintptr), arg uintptr) Task { return GetManager().Add(entry, arg) }

// spawnState carries a heap-boxed closure from Spawn's caller into the
// trampoline that runs inside the new task; Go's GC keeps it alive for
// exactly as long as the trampoline holds a reference to it, which is
// the same lifetime spec §4.5 spells out explicitly for the original's
// manually-boxed closure.
type spawnState struct{ fn func() }

var spawnArgs = map[uintptr]*spawnState{}
var spawnCounter uintptr

func spawnTrampoline(token uintptr) {
	state := spawnArgs[token]
	delete(spawnArgs, token)

	if err := This().SetPriority(DefaultPriority); err != nil {
		panic("sched: spawn trampoline could not restore default priority: " + err.Error())
	}
	GetManager().switchIfNeeded() // release the execution right back to whoever is highest-priority now

	state.fn()
}

// Spawn heap-boxes fn behind a token the trampoline looks up once it
// starts running, raises the new task to Critical so it cannot be
// starved before it has dereferenced the closure, yields once to give
// it that guaranteed run, and returns once the new task (or a higher
// one) has had its turn.
func Spawn(fn func()) Task {
	m := GetManager()
	prior := m.caps.InterruptDisable()

	spawnCounter++
	token := spawnCounter
	spawnArgs[token] = &spawnState{fn: fn}

	task := m.Add(spawnTrampoline, token)
	m.removeTask(task.data)
	task.data.priority = PriorityCritical
	m.pushTask(task.data)

	m.caps.InterruptRestore(prior)
	if !m.switchIfNeeded() {
		Sleep(0)
	}

	return task
}
