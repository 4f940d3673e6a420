package kernel

import "sync"

// Discipline orders the waiters of a thread queue.
type Discipline uint8

const (
	DisciplineFIFO Discipline = iota
	DisciplinePriority
	// DisciplinePriorityInherit is DisciplinePriority where the owner of the
	// queue inherits the priority of the waiters.
	DisciplinePriorityInherit
)

func (d Discipline) String() string {
	switch d {
	case DisciplineFIFO:
		return "fifo"
	case DisciplinePriority:
		return "priority"
	case DisciplinePriorityInherit:
		return "priority-inherit"
	default:
		return "unknown"
	}
}

type tqDiscipline interface {
	enqueue(q *ThreadQueue, t *Thread, acts *prioActions)
	extract(q *ThreadQueue, t *Thread, acts *prioActions)
	first() *Thread
	// surrender removes the next owner and moves what the previous owner
	// inherited to it.
	surrender(q *ThreadQueue, previous *Thread, acts *prioActions) *Thread
	requeue(q *ThreadQueue, t *Thread, acts *prioActions)
	len() int
	each(fn func(t *Thread) bool)
}

// ThreadQueue is the blocking primitive of every synchronization object.
// Owner queues (mutexes, MrsP) take sys.pathMu before mu.
type ThreadQueue struct {
	sys        *System
	name       string
	discipline Discipline
	owned      bool

	mu    sync.Mutex
	disc  tqDiscipline
	owner *Thread
}

func newThreadQueue(sys *System, name string, d Discipline, owned bool) *ThreadQueue {
	q := &ThreadQueue{sys: sys, name: name, discipline: d, owned: owned}
	switch d {
	case DisciplineFIFO:
		q.disc = newFIFODisc()
	case DisciplinePriorityInherit:
		q.disc = newPriorityDisc(true)
	default:
		q.disc = newPriorityDisc(false)
	}
	return q
}

func (q *ThreadQueue) Name() string           { return q.name }
func (q *ThreadQueue) Discipline() Discipline { return q.discipline }

func (q *ThreadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disc.len()
}

// Owner returns the owner of an owner queue, or nil.
func (q *ThreadQueue) Owner() *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.owner
}

// Waiters returns the waiting threads in surrender order.
func (q *ThreadQueue) Waiters() []*Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Thread
	q.disc.each(func(t *Thread) bool {
		out = append(out, t)
		return true
	})
	return out
}

type enqueueParams struct {
	timeout uint64
	sticky  bool
	// deadlockStatus reports an ownership cycle as StatusDeadlock instead of
	// halting the system.
	deadlockStatus bool
	onTimeout      func(t *Thread, acts *prioActions)
}

// deadlocks reports whether t owns q through a chain of owner queues.
// Called with sys.pathMu held.
func (q *ThreadQueue) deadlocks(t *Thread) bool {
	owner := q.owner
	for steps := 0; owner != nil; steps++ {
		if owner == t {
			return true
		}
		if steps > int(q.sys.nextID.Load()) {
			return false
		}
		owner.waitMu.Lock()
		next := owner.wait.queue
		owner.waitMu.Unlock()
		if next == nil || !next.owned {
			return false
		}
		owner = next.owner
	}
	return false
}

// enqueueLocked claims the wait of t and inserts it. Called with q.mu held.
// The second result is false when the wait already completed.
func (q *ThreadQueue) enqueueLocked(t *Thread, p enqueueParams, acts *prioActions) (*Wait, bool) {
	sys := q.sys
	t.waitMu.Lock()
	busy := t.wait.queue != nil
	t.waitMu.Unlock()
	if p.sticky {
		if cpu := t.cpu.Load(); busy || cpu.dispatchDisable.Load() != 0 {
			sys.Halt(FatalThreadQueueEnqueueStickyFromBadState, t, q.name)
		}
	} else if busy {
		sys.Halt(FatalThreadQueueEnqueueFromBadState, t, q.name)
	}
	if q.owned && q.deadlocks(t) {
		if p.deadlockStatus {
			return completedWait(t, StatusDeadlock), false
		}
		sys.Halt(FatalThreadQueueDeadlock, t, q.name)
	}

	w := newWait(t)
	t.waitMu.Lock()
	t.wait = waitRecord{
		queue:     q,
		seq:       t.wait.seq + 1,
		handle:    w,
		sticky:    p.sticky,
		onTimeout: p.onTimeout,
	}
	seq := t.wait.seq
	t.waitMu.Unlock()

	q.disc.enqueue(q, t, acts)
	t.waitFlags.Store(waitIntendToBlock)
	if p.timeout > 0 {
		timer := t.cpu.Load().armWatchdog(p.timeout, func() { q.timeout(t, seq) })
		t.waitMu.Lock()
		t.wait.timer = timer
		t.waitMu.Unlock()
	}
	if p.sticky {
		home := t.homeNode()
		home.sched.mu.Lock()
		home.sticky++
		home.sched.mu.Unlock()
	}
	return w, true
}

// block finishes an enqueue after every queue lock is released. A sticky
// waiter keeps its processor and only becomes sticky.
func (q *ThreadQueue) block(t *Thread, sticky bool, acts *prioActions) {
	q.sys.updatePriorities(acts)
	if sticky {
		t.updatePriority(stickyMake)
		return
	}
	t.setState(StateWaitingForObject)
	if !t.waitFlags.CompareAndSwap(waitIntendToBlock, waitBlocked) {
		t.clearState(StateWaitingForObject)
		t.finishWait()
	}
}

// detach ends the wait of t, which the caller already removed from the
// discipline. It reports whether the caller must resume t once the queue
// lock is released.
func (q *ThreadQueue) detach(t *Thread, st Status) bool {
	t.waitMu.Lock()
	timer := t.wait.timer
	sticky := t.wait.sticky
	t.wait.queue = nil
	t.wait.timer = nil
	t.wait.status = st
	t.waitMu.Unlock()
	if timer != nil {
		timer.cancel()
	}
	if t.waitFlags.CompareAndSwap(waitIntendToBlock, waitReadyAgain) {
		return sticky
	}
	t.waitFlags.Store(waitReadyAgain)
	return true
}

func (q *ThreadQueue) extractLocked(t *Thread, st Status, acts *prioActions) bool {
	q.disc.extract(q, t, acts)
	return q.detach(t, st)
}

// dequeueLocked removes the first waiter of a queue without owner.
func (q *ThreadQueue) dequeueLocked(st Status, acts *prioActions) (t *Thread, resume bool) {
	t = q.disc.first()
	if t == nil {
		return nil, false
	}
	return t, q.extractLocked(t, st, acts)
}

// surrenderLocked hands an owner queue to its first waiter.
func (q *ThreadQueue) surrenderLocked(previous *Thread, acts *prioActions) (next *Thread, resume bool) {
	next = q.disc.surrender(q, previous, acts)
	q.owner = next
	if next == nil {
		return nil, false
	}
	return next, q.detach(next, StatusSuccessful)
}

// flushLocked ends the wait of up to limit waiters (all when limit <= 0).
func (q *ThreadQueue) flushLocked(st Status, limit int, acts *prioActions) (resume []*Thread, n int) {
	for limit <= 0 || n < limit {
		t := q.disc.first()
		if t == nil {
			break
		}
		n++
		if q.extractLocked(t, st, acts) {
			resume = append(resume, t)
		}
	}
	return resume, n
}

// timeout ends the wait identified by seq unless a surrender got there
// first.
func (q *ThreadQueue) timeout(t *Thread, seq uint64) {
	sys := q.sys
	if q.owned {
		sys.pathMu.Lock()
	}
	q.mu.Lock()
	t.waitMu.Lock()
	valid := t.wait.queue == q && t.wait.seq == seq
	cleanup := t.wait.onTimeout
	sticky := t.wait.sticky
	t.waitMu.Unlock()
	if !valid {
		q.mu.Unlock()
		if q.owned {
			sys.pathMu.Unlock()
		}
		return
	}
	var acts prioActions
	q.disc.extract(q, t, &acts)
	resume := q.detach(t, StatusTimeout)
	// t no longer waits on q, so the cleanup cannot reach back into it.
	if cleanup != nil {
		cleanup(t, &acts)
	}
	q.mu.Unlock()
	if q.owned {
		sys.pathMu.Unlock()
	}
	sys.updatePriorities(&acts)
	if sticky {
		t.updatePriority(stickyClean)
	}
	if resume {
		t.resumeFromWait()
	}
	sys.dispatchPending()
}
