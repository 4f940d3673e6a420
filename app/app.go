package app

import (
	"fmt"
	"strings"

	"smpcore/api"
	"smpcore/hal"
	"smpcore/kernel"
)

// Config selects what the simulator runs.
type Config struct {
	Scenario *Scenario
	// Events logs every scheduler event.
	Events bool
	// Switches logs every context switch.
	Switches bool
}

// App is a kernel instance running a scenario on the host.
type App struct {
	h      hal.HAL
	log    hal.Logger
	sys    *kernel.System
	mgr    *api.Manager
	runner *Runner
	ticks  <-chan uint64

	detach []func()
}

// New builds the kernel from the scenario topology and runs the scenario
// directives.
func New(h hal.HAL, cfg Config) (*App, error) {
	sc := cfg.Scenario
	if sc == nil {
		var err error
		if sc, err = ParseScenario(strings.NewReader("")); err != nil {
			return nil, err
		}
	}
	log := h.Logger()
	kcfg := sc.Topology
	if cfg.Events {
		kcfg.Events = eventLogger{log: log}
	}
	if cfg.Switches {
		kcfg.Switcher = switchLogger{log: log}
	}
	sys, err := kernel.NewSystem(kcfg)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	installFatalHandler(sys, log)

	a := &App{h: h, log: log, sys: sys, mgr: api.New(sys)}
	if t := h.Time(); t != nil {
		a.ticks = t.Ticks()
	}
	a.runner = NewRunner(a.mgr, log)
	if err := a.runner.Run(sc.Commands); err != nil {
		return nil, err
	}
	a.refresh()
	return a, nil
}

func (a *App) System() *kernel.System { return a.sys }
func (a *App) Manager() *api.Manager  { return a.mgr }

// Step delivers the host ticks that arrived since the last step.
func (a *App) Step() error {
	if a.sys.Halted() {
		return fmt.Errorf("kernel halted")
	}
	for {
		select {
		case <-a.ticks:
			a.sys.TickAll()
		default:
			a.refresh()
			return nil
		}
	}
}

// Lanes attaches one lane per processor. Once attached, jobs posted to a
// processor wait for its lane.
func (a *App) Lanes() []hal.Lane {
	procs := a.sys.Processors()
	lanes := make([]hal.Lane, len(procs))
	for i, p := range procs {
		lanes[i] = lane{p: p}
		a.detach = append(a.detach, a.sys.AttachLane())
	}
	return lanes
}

// Close detaches the lanes.
func (a *App) Close() {
	for _, d := range a.detach {
		d()
	}
	a.detach = nil
}

func (a *App) refresh() {
	if d := a.h.Display(); d != nil {
		d.SetLines(ProcessorTable(a.sys))
	}
}

// ProcessorTable renders one line per processor.
func ProcessorTable(sys *kernel.System) []string {
	lines := []string{fmt.Sprintf("tick %d", sys.Now())}
	for _, p := range sys.Processors() {
		owner := "-"
		if s := p.Scheduler(); s != nil {
			owner = s.Name()
		}
		exec := p.Executing()
		pin := 0
		prio := "-"
		if exec != nil && !exec.IsIdle() {
			pin = exec.PinLevel()
			prio = fmt.Sprint(exec.Priority())
		}
		lines = append(lines, fmt.Sprintf("cpu%-2d %-8s %-10s prio=%-4s pin=%d ticks=%d",
			p.Index(), owner, threadName(exec), prio, pin, p.Ticks()))
	}
	return lines
}

type lane struct {
	p *kernel.Processor
}

func (l lane) Index() int              { return l.p.Index() }
func (l lane) Signal() <-chan struct{} { return l.p.JobSignal() }
func (l lane) Serve() int              { return l.p.DrainJobs() }
