package kernel

import (
	"runtime"
	"sync"
)

const jobSlots = 16

type job struct {
	fn   func(p *Processor)
	done chan struct{}
}

// jobMailbox is a bounded multi-producer, single-consumer queue of work
// for one processor.
type jobMailbox struct {
	mu     sync.Mutex
	head   uint32
	tail   uint32
	slots  [jobSlots]job
	signal chan struct{}
}

func (mb *jobMailbox) init() {
	mb.signal = make(chan struct{}, 1)
}

// trySend enqueues j, returning false if the mailbox is full.
func (mb *jobMailbox) trySend(j job) bool {
	mb.mu.Lock()
	if mb.head-mb.tail >= jobSlots {
		mb.mu.Unlock()
		return false
	}
	mb.slots[mb.head%jobSlots] = j
	mb.head++
	mb.mu.Unlock()
	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

func (mb *jobMailbox) tryRecv() (job, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.tail == mb.head {
		return job{}, false
	}
	j := mb.slots[mb.tail%jobSlots]
	mb.slots[mb.tail%jobSlots] = job{}
	mb.tail++
	return j, true
}

func (mb *jobMailbox) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return int(mb.head - mb.tail)
}

// JobSignal is signalled when work is posted to p.
func (p *Processor) JobSignal() <-chan struct{} { return p.jobs.signal }

// DrainJobs runs every queued job of p and returns how many ran.
func (p *Processor) DrainJobs() int {
	n := 0
	for {
		j, ok := p.jobs.tryRecv()
		if !ok {
			return n
		}
		j.fn(p)
		close(j.done)
		n++
	}
}

// AttachLane registers a goroutine that serves job mailboxes. Without
// lanes, RunOn and Broadcast run the jobs on the calling goroutine. The
// returned function detaches the lane.
func (s *System) AttachLane() (detach func()) {
	s.lanes.Add(1)
	var once sync.Once
	return func() { once.Do(func() { s.lanes.Add(-1) }) }
}

func (s *System) post(p *Processor, fn func(p *Processor)) job {
	j := job{fn: fn, done: make(chan struct{})}
	for !p.jobs.trySend(j) {
		if s.lanes.Load() == 0 {
			p.DrainJobs()
			continue
		}
		runtime.Gosched()
	}
	return j
}

// RunOn runs fn in the context of processor cpu and waits for it to
// complete.
func (s *System) RunOn(cpu int, fn func(p *Processor)) {
	p := s.processors[cpu]
	j := s.post(p, fn)
	if s.lanes.Load() == 0 {
		p.DrainJobs()
	}
	<-j.done
}

// Broadcast runs fn on every online processor and waits for all of them.
func (s *System) Broadcast(fn func(p *Processor)) {
	var posted []job
	var cpus []*Processor
	for _, p := range s.processors {
		if !p.Online() {
			continue
		}
		posted = append(posted, s.post(p, fn))
		cpus = append(cpus, p)
	}
	if s.lanes.Load() == 0 {
		for _, p := range cpus {
			p.DrainJobs()
		}
	}
	for _, j := range posted {
		<-j.done
	}
}
