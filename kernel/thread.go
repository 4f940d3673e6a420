package kernel

import (
	"sync"
	"sync/atomic"

	"smpcore/kernel/cpuset"
	"smpcore/kernel/prio"
)

// ThreadID identifies a thread within its System. Zero is never used.
type ThreadID uint32

// ThreadOptions configures CreateThread.
type ThreadOptions struct {
	Name string
	// Scheduler is the home scheduler; nil selects the first one.
	Scheduler *Scheduler
	Priority  Priority
	// Affinity defaults to every processor.
	Affinity  cpuset.Set
	TimeSlice bool
}

// Thread is a schedulable entity. Threads are created dormant.
type Thread struct {
	sys   *System
	id    ThreadID
	name  string
	idle  bool
	home  atomic.Pointer[Scheduler]
	nodes []*Node

	stateMu  sync.Mutex
	states   LifeState
	affinity cpuset.Set
	pinLevel int

	waitMu    sync.Mutex
	waitNodes []*Node
	real      prio.Node
	job       prio.Node
	mrspWait  prio.Node
	wait      waitRecord
	waitFlags atomic.Uint32

	schedMu    sync.Mutex
	schedState ThreadSchedState
	schedNodes []*Node
	helpCPU    *Processor

	cpu        atomic.Pointer[Processor]
	pinnedNode atomic.Pointer[Node]

	// Ceiling and MrsP resources in acquisition order. Guarded by
	// sys.pathMu.
	held          []any
	resourceCount atomic.Int32

	timeSlice bool
	budget    atomic.Int32
}

func newThread(sys *System, name string, home *Scheduler, p Priority, idle bool) *Thread {
	t := &Thread{
		sys:  sys,
		id:   ThreadID(sys.nextID.Add(1)),
		name: name,
		idle: idle,
	}
	t.home.Store(home)
	t.nodes = make([]*Node, len(sys.schedulers))
	for i, s := range sys.schedulers {
		t.nodes[i] = newNode(t, s)
	}
	n := t.nodes[home.index]
	n.contrib.InsertValue(&t.real, uint64(p))
	n.publish(true)
	n.priority, _ = n.insertPriority()
	n.waiting = true
	t.waitNodes = []*Node{n}
	t.schedNodes = []*Node{n}
	t.cpu.Store(sys.processors[0])
	return t
}

func (t *Thread) ID() ThreadID    { return t.id }
func (t *Thread) Name() string    { return t.name }
func (t *Thread) IsIdle() bool    { return t.idle }
func (t *Thread) System() *System { return t.sys }

// Home returns the home scheduler.
func (t *Thread) Home() *Scheduler { return t.home.Load() }

// CPU returns the processor the thread executes on or last executed on.
func (t *Thread) CPU() *Processor { return t.cpu.Load() }

// Node returns the scheduler node of t for s.
func (t *Thread) Node(s *Scheduler) *Node { return t.nodes[s.index] }

func (t *Thread) homeNode() *Node { return t.nodes[t.Home().index] }

// mainNode is the node the thread blocks and unblocks with.
func (t *Thread) mainNode() *Node {
	if n := t.pinnedNode.Load(); n != nil {
		return n
	}
	return t.homeNode()
}

func (t *Thread) SchedState() ThreadSchedState {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	return t.schedState
}

// Priority returns the current priority of t on its home scheduler.
func (t *Thread) Priority() Priority {
	return t.homeNode().Priority()
}

// RealPriority returns the priority set at creation or by SetPriority.
func (t *Thread) RealPriority() Priority {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	return t.Home().UnmapPriority(Priority(t.real.Priority))
}

// PriorityOn returns the priority of t on s. ok is false when t has no
// priority contribution on s.
func (t *Thread) PriorityOn(s *Scheduler) (p Priority, ok bool) {
	n := t.nodes[s.index]
	t.waitMu.Lock()
	ok = n.waiting
	t.waitMu.Unlock()
	if !ok {
		return 0, false
	}
	return n.Priority(), true
}

// Schedulers returns the schedulers t currently has a node on, home first.
func (t *Thread) Schedulers() []*Scheduler {
	t.schedMu.Lock()
	defer t.schedMu.Unlock()
	out := make([]*Scheduler, len(t.schedNodes))
	for i, n := range t.schedNodes {
		out[i] = n.sched
	}
	return out
}

// ResourceCount returns the number of resources t owns.
func (t *Thread) ResourceCount() int { return int(t.resourceCount.Load()) }

// Affinity returns the processor affinity of t.
func (t *Thread) Affinity() cpuset.Set {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.affinity
}

// PinLevel returns the pin nesting level.
func (t *Thread) PinLevel() int {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.pinLevel
}

// Executing reports whether t is the executing thread of some processor.
func (t *Thread) Executing() bool {
	cpu := t.cpu.Load()
	return cpu != nil && cpu.Executing() == t
}

// helpingNodes returns the number of non-home scheduler nodes. Called with
// t.schedMu held.
func (t *Thread) helpingNodes() int {
	return len(t.schedNodes) - 1
}

// CreateThread creates a dormant thread.
func (s *System) CreateThread(opts ThreadOptions) (*Thread, Status) {
	home := opts.Scheduler
	if home == nil {
		home = s.schedulers[0]
	}
	if !home.ValidPriority(opts.Priority) {
		return nil, StatusInvalidPriority
	}
	affinity := opts.Affinity
	if affinity.IsZero() {
		affinity = cpuset.All(len(s.processors))
	}
	home.mu.Lock()
	rqi, st := home.rqiFor(affinity)
	home.mu.Unlock()
	if st != StatusSuccessful {
		return nil, st
	}
	t := newThread(s, opts.Name, home, home.MapPriority(opts.Priority), false)
	t.states = StateDormant
	t.affinity = affinity
	t.timeSlice = opts.TimeSlice
	t.budget.Store(int32(s.cfg.TimeSliceTicks))
	n := t.nodes[home.index]
	n.rqi = rqi
	n.affinityRQI = rqi
	s.threadsMu.Lock()
	s.threads = append(s.threads, t)
	s.threadsMu.Unlock()
	return t, StatusSuccessful
}

// Start makes a dormant thread ready.
func (t *Thread) Start() Status {
	t.stateMu.Lock()
	dormant := t.states&StateDormant != 0
	t.stateMu.Unlock()
	if !dormant {
		return StatusIncorrectState
	}
	t.clearState(StateDormant)
	t.sys.dispatchPending()
	return StatusSuccessful
}

func (t *Thread) Suspend() Status {
	t.stateMu.Lock()
	suspended := t.states&StateSuspended != 0
	t.stateMu.Unlock()
	if suspended {
		return StatusAlreadySuspended
	}
	t.setState(StateSuspended)
	t.sys.dispatchPending()
	return StatusSuccessful
}

func (t *Thread) Resume() Status {
	t.stateMu.Lock()
	suspended := t.states&StateSuspended != 0
	t.stateMu.Unlock()
	if !suspended {
		return StatusIncorrectState
	}
	t.clearState(StateSuspended)
	t.sys.dispatchPending()
	return StatusSuccessful
}

// SetPriority changes the real priority. A zero priority only returns the
// current real priority.
func (t *Thread) SetPriority(p Priority) (old Priority, st Status) {
	sys := t.sys
	sys.pathMu.Lock()
	home := t.Home()
	old = t.RealPriority()
	if p == 0 {
		sys.pathMu.Unlock()
		return old, StatusSuccessful
	}
	if !home.ValidPriority(p) {
		sys.pathMu.Unlock()
		return old, StatusInvalidPriority
	}
	var acts prioActions
	t.changeContribution(t.nodes[home.index], &t.real, uint64(home.MapPriority(p)), true, &acts)
	sys.pathMu.Unlock()
	sys.updatePriorities(&acts)
	sys.dispatchPending()
	return old, StatusSuccessful
}

// Yield moves t behind every ready thread of equal priority.
func (t *Thread) Yield() {
	t.stateMu.Lock()
	n := t.mainNode()
	s := n.sched
	s.mu.Lock()
	s.yield(t, n)
	s.mu.Unlock()
	t.stateMu.Unlock()
	t.sys.dispatchPending()
}

// WakeAfter delays t for ticks of its processor. Zero yields.
func (t *Thread) WakeAfter(ticks uint64) {
	if ticks == 0 {
		t.Yield()
		return
	}
	cpu := t.cpu.Load()
	t.setState(StateDelaying)
	cpu.armWatchdog(ticks, func() { t.clearState(StateDelaying) })
	t.sys.dispatchPending()
}

// SetAffinity confines t to a set of processors. Only the set of every
// processor and sets with exactly one processor of the home scheduler are
// supported.
func (t *Thread) SetAffinity(set cpuset.Set) Status {
	t.stateMu.Lock()
	n := t.homeNode()
	s := n.sched
	s.mu.Lock()
	rqi, st := s.rqiFor(set)
	if st == StatusSuccessful {
		t.affinity = set
		s.setAffinity(t, n, rqi)
	}
	s.mu.Unlock()
	t.stateMu.Unlock()
	t.sys.dispatchPending()
	return st
}

// SetScheduler moves t to a new home scheduler with priority p.
func (t *Thread) SetScheduler(ns *Scheduler, p Priority) Status {
	sys := t.sys
	sys.pathMu.Lock()
	defer sys.dispatchPending()
	defer sys.pathMu.Unlock()

	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	t.waitMu.Lock()
	waiting := t.wait.queue != nil
	t.waitMu.Unlock()
	old := t.Home()
	if waiting || t.pinLevel != 0 {
		return StatusResourceInUse
	}
	if old != ns && t.resourceCount.Load() != 0 {
		return StatusResourceInUse
	}
	oldNode := t.nodes[old.index]
	t.waitMu.Lock()
	busy := len(t.waitNodes) != 1 || oldNode.contrib.Len() != 1 || t.job.Active()
	t.waitMu.Unlock()
	if busy {
		return StatusResourceInUse
	}
	ns.mu.Lock()
	empty := ns.processors.IsZero()
	rqi, st := ns.rqiFor(t.affinity)
	ns.mu.Unlock()
	if empty || st != StatusSuccessful {
		return StatusUnsatisfied
	}

	ready := t.states == StateReady
	if ready {
		t.blockLocked()
	}

	nn := t.nodes[ns.index]
	t.waitMu.Lock()
	oldNode.contrib.Extract(&t.real)
	oldNode.waiting = false
	nn.contrib.InsertValue(&t.real, uint64(ns.MapPriority(p)))
	nn.publish(true)
	nn.waiting = true
	t.waitNodes = []*Node{nn}
	t.waitMu.Unlock()

	ns.mu.Lock()
	nn.priority, _ = nn.insertPriority()
	nn.rqi = rqi
	nn.affinityRQI = rqi
	nn.sticky = oldNode.sticky
	nn.state = NodeBlocked
	ns.mu.Unlock()

	old.mu.Lock()
	oldNode.sticky = 0
	oldNode.state = NodeBlocked
	old.mu.Unlock()

	t.schedMu.Lock()
	t.schedNodes = []*Node{nn}
	t.schedMu.Unlock()
	t.home.Store(ns)

	if ready {
		t.unblockLocked()
	}
	return StatusSuccessful
}

// ReleaseJob releases a job with a deadline relative to the current clock.
// Only EDF schedulers order by deadline; other policies ignore the job.
func (t *Thread) ReleaseJob(deadline uint64) {
	sys := t.sys
	home := t.Home()
	home.event(EventReleaseJob, t, -1, Priority(deadline))
	if home.policy != PolicyEDF {
		return
	}
	sys.pathMu.Lock()
	var acts prioActions
	abs := sys.Now() + deadline
	n := t.nodes[home.index]
	t.waitMu.Lock()
	active := t.job.Active()
	t.waitMu.Unlock()
	if active {
		t.changeContribution(n, &t.job, abs, true, &acts)
	} else {
		t.job.Priority = abs
		t.addContribution(n, &t.job, &acts)
	}
	sys.pathMu.Unlock()
	sys.updatePriorities(&acts)
	sys.dispatchPending()
}

// CancelJob withdraws the job deadline and returns t to its background
// priority.
func (t *Thread) CancelJob() {
	sys := t.sys
	home := t.Home()
	home.event(EventCancelJob, t, -1, 0)
	sys.pathMu.Lock()
	var acts prioActions
	t.waitMu.Lock()
	active := t.job.Active()
	t.waitMu.Unlock()
	if active {
		t.removeContribution(t.nodes[home.index], &t.job, &acts)
	}
	sys.pathMu.Unlock()
	sys.updatePriorities(&acts)
	sys.dispatchPending()
}
