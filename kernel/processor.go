package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// Processor is one CPU lane. Processors live in a fixed arena owned by the
// System and are addressed by their index.
type Processor struct {
	sys   *System
	index int

	online     atomic.Bool
	configured *Scheduler
	owner      atomic.Pointer[Scheduler]

	// Serializes dispatch points on this processor.
	dispatchMu      sync.Mutex
	dispatchDisable atomic.Int32

	mu                sync.Mutex
	executing         *Thread
	heir              *Thread
	dispatchNecessary bool
	help              []*Thread
	watchdogs         *btree.BTreeG[*watchdog]
	watchdogSeq       uint64

	// Guarded by sys.procMu.
	unusedIdle *Thread

	ticks atomic.Uint64
	jobs  jobMailbox
}

func newProcessor(sys *System, index int) *Processor {
	p := &Processor{
		sys:       sys,
		index:     index,
		watchdogs: btree.NewG[*watchdog](8, watchdogLess),
	}
	p.jobs.init()
	return p
}

func (p *Processor) Index() int { return p.index }

func (p *Processor) Online() bool { return p.online.Load() }

// Scheduler returns the owning scheduler, or nil when detached.
func (p *Processor) Scheduler() *Scheduler { return p.owner.Load() }

// Configured returns the scheduler the processor is configured for, or nil
// when the processor is not usable by any scheduler.
func (p *Processor) Configured() *Scheduler { return p.configured }

func (p *Processor) Executing() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.executing
}

func (p *Processor) Heir() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heir
}

// Ticks returns the number of ticks this processor has processed.
func (p *Processor) Ticks() uint64 { return p.ticks.Load() }

// DisableDispatch defers dispatch points on this processor until the
// matching EnableDispatch.
func (p *Processor) DisableDispatch() {
	p.dispatchDisable.Add(1)
}

// EnableDispatch undoes one DisableDispatch and runs a pending dispatch.
func (p *Processor) EnableDispatch() {
	if p.dispatchDisable.Add(-1) == 0 {
		p.sys.poke(p)
		p.sys.dispatchPending()
	}
}

// DispatchDisableLevel reports the current nesting of DisableDispatch.
func (p *Processor) DispatchDisableLevel() int {
	return int(p.dispatchDisable.Load())
}

// updateHeir selects the thread this processor executes at its next
// dispatch point.
func (p *Processor) updateHeir(heir *Thread) {
	p.mu.Lock()
	p.heir = heir
	p.dispatchNecessary = true
	p.mu.Unlock()
	p.sys.poke(p)
}
