package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smpcore/kernel/cpuset"
)

// MaxProcessors is the size of the processor arena limit.
const MaxProcessors = 64

// Config describes the processor topology.
type Config struct {
	Processors int
	Schedulers []SchedulerConfig
	// Offline processors exist but do not start.
	Offline cpuset.Set
	// TimeSliceTicks is the budget of time-sliced threads. Zero disables
	// time slicing.
	TimeSliceTicks int
	Events         EventSink
	Switcher       ContextSwitcher
}

// System is the kernel state: the processor arena, the schedulers and the
// threads.
type System struct {
	cfg        Config
	processors []*Processor
	schedulers []*Scheduler

	// procMu serializes processor set changes. pathMu guards the ownership
	// graph of owner queues and every priority contribution change.
	procMu sync.Mutex
	pathMu sync.Mutex

	threadsMu sync.Mutex
	threads   []*Thread
	nextID    atomic.Uint32

	pending atomic.Uint64
	clock   atomic.Uint64
	lanes   atomic.Int32

	events   EventSink
	switcher ContextSwitcher
	halt     haltState
}

// NewSystem creates a kernel instance and starts the idle thread of every
// online configured processor.
func NewSystem(cfg Config) (*System, error) {
	if cfg.Processors < 1 || cfg.Processors > MaxProcessors {
		return nil, fmt.Errorf("kernel: processor count %d out of range 1..%d", cfg.Processors, MaxProcessors)
	}
	if len(cfg.Schedulers) == 0 {
		return nil, fmt.Errorf("kernel: no scheduler configured")
	}
	all := cpuset.All(cfg.Processors)
	var used cpuset.Set
	for i, sc := range cfg.Schedulers {
		if sc.MaxPriority < 1 {
			return nil, fmt.Errorf("kernel: scheduler %d (%s): maximum priority must be positive", i, sc.Name)
		}
		if sc.Policy == PolicyFixedPriority && int(sc.MaxPriority) > maxFPLevels-2 {
			return nil, fmt.Errorf("kernel: scheduler %d (%s): maximum priority %d exceeds %d", i, sc.Name, sc.MaxPriority, maxFPLevels-2)
		}
		if !sc.Processors.IsSubsetOf(all) {
			return nil, fmt.Errorf("kernel: scheduler %d (%s): processors %s outside %s", i, sc.Name, sc.Processors, all)
		}
		if !used.And(sc.Processors).IsZero() {
			return nil, fmt.Errorf("kernel: scheduler %d (%s): processors %s already assigned", i, sc.Name, used.And(sc.Processors))
		}
		used = used.Or(sc.Processors)
	}

	s := &System{cfg: cfg, events: cfg.Events, switcher: cfg.Switcher}
	s.processors = make([]*Processor, cfg.Processors)
	for i := range s.processors {
		s.processors[i] = newProcessor(s, i)
		s.processors[i].online.Store(!cfg.Offline.Has(i))
	}
	s.schedulers = make([]*Scheduler, len(cfg.Schedulers))
	for i, sc := range cfg.Schedulers {
		s.schedulers[i] = newScheduler(s, i, sc, cfg.Processors)
	}
	for _, sched := range s.schedulers {
		sched.configured.Each(func(cpu int) {
			p := s.processors[cpu]
			p.configured = sched
			idle := newThread(s, fmt.Sprintf("IDLE%d", cpu), sched, sched.idlePriority(), true)
			if !p.Online() {
				p.unusedIdle = idle
				return
			}
			sched.mu.Lock()
			sched.processors = sched.processors.Add(cpu)
			sched.startIdle(idle, p)
			sched.mu.Unlock()
			p.owner.Store(sched)
		})
	}
	return s, nil
}

func (s *System) record(ev Event) {
	if s.events != nil {
		s.events.Record(ev)
	}
}

// Now returns the system clock in ticks.
func (s *System) Now() uint64 { return s.clock.Load() }

func (s *System) ProcessorCount() int { return len(s.processors) }

// Processor returns the processor with index i, or nil.
func (s *System) Processor(i int) *Processor {
	if i < 0 || i >= len(s.processors) {
		return nil
	}
	return s.processors[i]
}

func (s *System) Processors() []*Processor { return s.processors }

// Scheduler returns the scheduler with index i, or nil.
func (s *System) Scheduler(i int) *Scheduler {
	if i < 0 || i >= len(s.schedulers) {
		return nil
	}
	return s.schedulers[i]
}

func (s *System) Schedulers() []*Scheduler { return s.schedulers }

// Threads returns every created thread except the idle threads.
func (s *System) Threads() []*Thread {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	return append([]*Thread(nil), s.threads...)
}

// SetOnline starts or stops processor cpu. An owned processor cannot
// change state.
func (s *System) SetOnline(cpu int, online bool) Status {
	p := s.Processor(cpu)
	if p == nil {
		return StatusInvalidNumber
	}
	s.procMu.Lock()
	defer s.procMu.Unlock()
	if p.Scheduler() != nil {
		return StatusResourceInUse
	}
	p.online.Store(online)
	return StatusSuccessful
}

// AddProcessor hands an online processor that no scheduler owns to sched.
func (s *System) AddProcessor(sched *Scheduler, cpu int) Status {
	p := s.Processor(cpu)
	if p == nil || p.configured == nil {
		return StatusNotConfigured
	}
	s.procMu.Lock()
	defer s.dispatchPending()
	defer s.procMu.Unlock()
	if !p.Online() {
		return StatusIncorrectState
	}
	if p.Scheduler() != nil {
		return StatusResourceInUse
	}
	idle := p.unusedIdle
	p.unusedIdle = nil
	s.rehomeIdle(idle, sched, cpu)
	sched.mu.Lock()
	sched.addProcessor(idle, p)
	sched.mu.Unlock()
	p.owner.Store(sched)
	return StatusSuccessful
}

// rehomeIdle gives idle a home node on sched at the idle priority.
func (s *System) rehomeIdle(idle *Thread, sched *Scheduler, cpu int) {
	p := sched.idlePriority()
	sched.event(EventMapPriority, idle, cpu, p)
	old := idle.homeNode()
	nn := idle.nodes[sched.index]
	idle.waitMu.Lock()
	old.contrib.Extract(&idle.real)
	old.waiting = false
	nn.contrib.InsertValue(&idle.real, uint64(p))
	nn.publish(true)
	nn.waiting = true
	idle.waitNodes = []*Node{nn}
	idle.waitMu.Unlock()
	sched.mu.Lock()
	nn.priority, _ = nn.insertPriority()
	nn.rqi = 0
	nn.affinityRQI = 0
	sched.mu.Unlock()
	idle.schedMu.Lock()
	idle.schedNodes = []*Node{nn}
	idle.schedMu.Unlock()
	idle.home.Store(sched)
}

// RemoveProcessor takes cpu away from sched. It fails without changes when
// a thread of sched would be left without a processor.
func (s *System) RemoveProcessor(sched *Scheduler, cpu int) Status {
	p := s.Processor(cpu)
	if p == nil || p.Scheduler() != sched {
		return StatusInvalidNumber
	}
	s.procMu.Lock()
	defer s.dispatchPending()
	defer s.procMu.Unlock()
	if p.Scheduler() != sched {
		return StatusInvalidNumber
	}
	remaining := sched.Processors().Remove(cpu)
	for _, t := range s.Threads() {
		if t.Home() == sched && t.Affinity().And(remaining).IsZero() {
			return StatusResourceInUse
		}
	}
	sched.mu.Lock()
	for _, t := range s.Threads() {
		if t.nodes[sched.index].rqi == cpu+1 {
			sched.mu.Unlock()
			return StatusResourceInUse
		}
	}
	idle := sched.removeProcessor(p)
	sched.mu.Unlock()
	p.owner.Store(nil)
	p.unusedIdle = idle
	return StatusSuccessful
}

// StartTick delivers TickAll every period until ctx ends.
func (s *System) StartTick(ctx context.Context, period time.Duration) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.TickAll()
			}
		}
	}()
}
