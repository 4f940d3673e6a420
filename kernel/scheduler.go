package kernel

import (
	"sync"

	"smpcore/kernel/cpuset"
)

// Priority is a thread priority. Lower values are more urgent.
type Priority uint64

// EDFBackground marks a mapped EDF priority that is not a job deadline.
// Every deadline is more urgent than every background priority.
const EDFBackground Priority = 1 << 62

// Policy selects the ready structure of a scheduler.
type Policy uint8

const (
	PolicyFixedPriority Policy = iota
	PolicyEDF
)

func (p Policy) String() string {
	switch p {
	case PolicyFixedPriority:
		return "fixed-priority"
	case PolicyEDF:
		return "edf"
	default:
		return "unknown"
	}
}

// SchedulerConfig describes one cluster.
type SchedulerConfig struct {
	Name        string
	Policy      Policy
	MaxPriority Priority
	// Processors configured to belong to the cluster at start.
	Processors cpuset.Set
}

type readyQueue interface {
	insert(n *Node, appendIt bool)
	extract(n *Node)
	first() *Node
	last() *Node
	empty() bool
}

// Scheduler is one cluster: a set of processors with its own ready
// structure.
type Scheduler struct {
	sys    *System
	index  int
	name   string
	policy Policy
	max    Priority
	// Processors available to the cluster by configuration.
	configured cpuset.Set

	mu         sync.Mutex
	processors cpuset.Set
	scheduled  []*Node
	// ready[0] holds nodes with affinity to every processor, ready[cpu+1]
	// holds nodes confined to cpu.
	ready           []readyQueue
	allocated       []*Node
	affineScheduled []*Node
	appendGen       int64
	prependGen      int64
}

func newScheduler(sys *System, index int, cfg SchedulerConfig, processors int) *Scheduler {
	s := &Scheduler{
		sys:             sys,
		index:           index,
		name:            cfg.Name,
		policy:          cfg.Policy,
		max:             cfg.MaxPriority,
		configured:      cfg.Processors,
		ready:           make([]readyQueue, processors+1),
		allocated:       make([]*Node, processors),
		affineScheduled: make([]*Node, processors+1),
	}
	for i := range s.ready {
		switch cfg.Policy {
		case PolicyEDF:
			s.ready[i] = newEDFReady()
		default:
			s.ready[i] = newFPReady(int(cfg.MaxPriority) + 2)
		}
	}
	return s
}

func (s *Scheduler) Index() int       { return s.index }
func (s *Scheduler) Name() string     { return s.name }
func (s *Scheduler) Policy() Policy   { return s.policy }
func (s *Scheduler) System() *System  { return s.sys }
func (s *Scheduler) MaximumPriority() Priority { return s.max }

// Processors returns the processors currently owned by the scheduler.
func (s *Scheduler) Processors() cpuset.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processors
}

// ConfiguredProcessors returns the processors configured for the scheduler.
func (s *Scheduler) ConfiguredProcessors() cpuset.Set { return s.configured }

// ValidPriority reports whether p is a valid task priority.
func (s *Scheduler) ValidPriority(p Priority) bool {
	return p >= 1 && p <= s.max
}

// MapPriority converts a task priority to the scheduler-internal value.
func (s *Scheduler) MapPriority(p Priority) Priority {
	if s.policy == PolicyEDF {
		return p | EDFBackground
	}
	return p
}

// UnmapPriority converts a scheduler-internal value back to a task priority.
// A job deadline is returned unchanged.
func (s *Scheduler) UnmapPriority(p Priority) Priority {
	return p &^ EDFBackground
}

func (s *Scheduler) idlePriority() Priority {
	return s.MapPriority(s.max + 1)
}

// Scheduled returns the users of the scheduled nodes, most urgent first.
func (s *Scheduler) Scheduled() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, len(s.scheduled))
	for i, n := range s.scheduled {
		out[i] = n.user
	}
	return out
}

func (s *Scheduler) event(op EventOp, t *Thread, cpu int, p Priority) {
	s.sys.record(Event{Op: op, Thread: t.ID(), Scheduler: s.index, CPU: cpu, Priority: p})
}

// rqiFor maps an affinity set to a ready queue index. Called with s.mu held.
func (s *Scheduler) rqiFor(affinity cpuset.Set) (int, Status) {
	if affinity.IsZero() {
		return 0, StatusInvalidNumber
	}
	if cpuset.All(s.sys.ProcessorCount()).IsSubsetOf(affinity) {
		return 0, StatusSuccessful
	}
	local := affinity.And(s.processors)
	if local.IsZero() || affinity.Count() != 1 {
		return 0, StatusInvalidNumber
	}
	return affinity.First() + 1, StatusSuccessful
}

func (s *Scheduler) stamp(n *Node, appendIt bool) {
	if appendIt {
		s.appendGen++
		n.gen = s.appendGen
	} else {
		s.prependGen--
		n.gen = s.prependGen
	}
}

func (s *Scheduler) insertReady(n *Node, appendIt bool) {
	s.ready[n.rqi].insert(n, appendIt)
}

func (s *Scheduler) extractFromReady(n *Node) {
	s.ready[n.rqi].extract(n)
}

func (s *Scheduler) insertScheduled(n *Node) {
	i := len(s.scheduled)
	for j, m := range s.scheduled {
		if nodeLess(n, m) {
			i = j
			break
		}
	}
	s.scheduled = append(s.scheduled, nil)
	copy(s.scheduled[i+1:], s.scheduled[i:])
	s.scheduled[i] = n
	if n.rqi != 0 {
		s.affineScheduled[n.rqi] = n
	}
}

func (s *Scheduler) extractFromScheduled(n *Node) {
	for i, m := range s.scheduled {
		if m == n {
			s.scheduled = append(s.scheduled[:i], s.scheduled[i+1:]...)
			break
		}
	}
	s.affineScheduled[n.rqi] = nil
}

func (s *Scheduler) moveFromScheduledToReady(n *Node) {
	s.extractFromScheduled(n)
	s.stamp(n, false)
	s.insertReady(n, false)
}

func (s *Scheduler) moveFromReadyToScheduled(n *Node) {
	s.extractFromReady(n)
	s.stamp(n, true)
	s.insertScheduled(n)
}

// highestReady returns the most urgent ready node the processor vacated by
// filter may run. The affine queue of a processor whose affine node is
// scheduled is inactive.
func (s *Scheduler) highestReady(filter *Node) *Node {
	best := s.ready[0].first()
	for rqi := 1; rqi < len(s.ready); rqi++ {
		if s.affineScheduled[rqi] != nil || s.ready[rqi].empty() {
			continue
		}
		if other := s.ready[rqi].first(); best == nil || nodeLess(other, best) {
			best = other
		}
	}
	return best
}

func (s *Scheduler) lowestScheduled(filter *Node) *Node {
	if filter.rqi != 0 {
		if n := s.affineScheduled[filter.rqi]; n != nil {
			return n
		}
	}
	if len(s.scheduled) == 0 {
		return nil
	}
	return s.scheduled[len(s.scheduled)-1]
}

// getIdle takes the least urgent node of the global queue, which is always
// the home node of an idle thread.
func (s *Scheduler) getIdle() *Thread {
	n := s.ready[0].last()
	if n == nil || !n.owner.idle {
		s.sys.Halt(FatalNoIdleNode, nil, s.name)
	}
	s.ready[0].extract(n)
	return n.owner
}

func (s *Scheduler) releaseIdle(idle *Thread) {
	n := idle.nodes[s.index]
	s.stamp(n, true)
	s.ready[0].insert(n, true)
}

func (s *Scheduler) useIdle(n *Node) *Thread {
	idle := s.getIdle()
	n.idle = idle
	n.user = idle
	return idle
}

func (s *Scheduler) releaseIdleThread(n *Node, idle *Thread) {
	n.idle = nil
	n.user = n.owner
	s.releaseIdle(idle)
}

func (s *Scheduler) releaseIdleIfNecessary(n *Node) *Thread {
	idle := n.idle
	if idle != nil {
		s.releaseIdleThread(n, idle)
	}
	return idle
}

func (s *Scheduler) discardIdle(t *Thread, n *Node) {
	idle := n.idle
	if idle == nil {
		return
	}
	s.releaseIdleThread(n, idle)
	cpu := idle.cpu.Load()
	t.cpu.Store(cpu)
	cpu.updateHeir(t)
}

func (s *Scheduler) allocateExact(n *Node, cpu *Processor) {
	user := n.user
	user.cpu.Store(cpu)
	s.allocated[cpu.index] = n
	cpu.updateHeir(user)
}

// allocate places n on cpu. A node confined to another processor takes
// that processor instead, and the node allocated there moves to cpu.
func (s *Scheduler) allocate(n *Node, cpu *Processor) {
	n.state = NodeScheduled
	if n.rqi != 0 {
		affine := s.sys.processors[n.rqi-1]
		if cpu != affine {
			if other := s.allocated[affine.index]; other != nil && other != n {
				s.allocateExact(other, cpu)
			}
			cpu = affine
		}
	}
	s.allocateExact(n, cpu)
}
