package kernel

import "smpcore/kernel/cpuset"

// ContextSwitcher performs the switch a dispatch point decided on. It is
// called outside all kernel locks and may block.
type ContextSwitcher interface {
	Switch(cpu int, from, to *Thread)
}

// ContextSwitcherFunc adapts a function to ContextSwitcher.
type ContextSwitcherFunc func(cpu int, from, to *Thread)

func (f ContextSwitcherFunc) Switch(cpu int, from, to *Thread) { f(cpu, from, to) }

// poke marks p as needing a dispatch point. It models the inter-processor
// interrupt.
func (s *System) poke(p *Processor) {
	bit := uint64(1) << uint(p.index)
	for {
		old := s.pending.Load()
		if old&bit != 0 || s.pending.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// dispatchPending runs the dispatch point of every poked processor. It
// must be called without kernel locks held.
func (s *System) dispatchPending() {
	for {
		set := cpuset.Set(s.pending.Swap(0))
		if set.IsZero() {
			return
		}
		set.Each(func(i int) {
			s.processors[i].dispatch()
		})
	}
}

// Dispatch runs a dispatch point on p now.
func (p *Processor) Dispatch() {
	p.dispatch()
	p.sys.dispatchPending()
}

func (p *Processor) dispatch() {
	if p.dispatchDisable.Load() != 0 {
		return
	}
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	for {
		p.processHelp()
		p.mu.Lock()
		if !p.dispatchNecessary {
			p.mu.Unlock()
			return
		}
		p.dispatchNecessary = false
		from, heir := p.executing, p.heir
		p.executing = heir
		p.mu.Unlock()
		if from == heir || heir == nil {
			continue
		}
		if sw := p.sys.switcher; sw != nil {
			sw.Switch(p.index, from, heir)
		}
		heir.reconsiderHelp()
	}
}
