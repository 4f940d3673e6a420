package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"smpcore/api"
	"smpcore/hal"
	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

// ErrExpectation is returned when an expect or result line does not hold.
var ErrExpectation = errors.New("expectation failed")

// Runner executes scenario commands through the directive surface.
type Runner struct {
	mgr   *api.Manager
	log   hal.Logger
	tasks map[string]api.ID
	sems  map[string]api.ID
	waits map[string]*api.Wait
}

func NewRunner(mgr *api.Manager, log hal.Logger) *Runner {
	return &Runner{
		mgr:   mgr,
		log:   log,
		tasks: make(map[string]api.ID),
		sems:  make(map[string]api.ID),
		waits: make(map[string]*api.Wait),
	}
}

// Run executes cmds in order and stops at the first error.
func (r *Runner) Run(cmds []Command) error {
	for _, c := range cmds {
		if _, err := r.Exec(c); err != nil {
			return err
		}
	}
	return nil
}

// Exec executes one command. A directive that fails with a status is not
// an error; the status is logged and returned. A kernel halt is returned
// as a *kernel.FatalError.
func (r *Runner) Exec(c Command) (st api.Status, err error) {
	defer func() {
		if v := recover(); v != nil {
			fe, ok := v.(*kernel.FatalError)
			if !ok {
				panic(v)
			}
			err = fmt.Errorf("line %d: %s: %w", c.Line, c, fe)
		}
	}()
	st, err = r.exec(c)
	if err != nil {
		return st, fmt.Errorf("line %d: %s: %w", c.Line, c, err)
	}
	if r.log != nil {
		r.log.WithFields(hal.Fields{"line": c.Line, "status": st.String()}).WriteLineString(c.String())
	}
	return st, nil
}

func (r *Runner) exec(c Command) (api.Status, error) {
	m := r.mgr
	switch c.Name {
	case "task":
		if len(c.Args) < 3 {
			return 0, fmt.Errorf("usage: task NAME SCHEDULER PRIORITY [timeslice]")
		}
		sched, err := r.scheduler(c.Args[1])
		if err != nil {
			return 0, err
		}
		p, err := parsePriority(c.Args[2])
		if err != nil {
			return 0, err
		}
		opts := api.TaskOptions{Scheduler: sched}
		if len(c.Args) > 3 && c.Args[3] == "timeslice" {
			opts.TimeSlice = true
		}
		var id api.ID
		st := m.TaskCreate(c.Args[0], p, opts, &id)
		if st == api.Successful {
			r.tasks[c.Args[0]] = id
		}
		return st, nil
	case "start", "suspend", "resume", "yield", "canceljob":
		if len(c.Args) == 0 {
			return 0, fmt.Errorf("usage: %s TASK...", c.Name)
		}
		st := api.Successful
		for _, name := range c.Args {
			id, err := r.task(name)
			if err != nil {
				return 0, err
			}
			switch c.Name {
			case "start":
				st = m.TaskStart(id)
			case "suspend":
				st = m.TaskSuspend(id)
			case "resume":
				st = m.TaskResume(id)
			case "yield":
				st = m.TaskYield(id)
			case "canceljob":
				st = m.CancelJob(id)
			}
			if st != api.Successful {
				return st, nil
			}
		}
		return st, nil
	case "priority":
		id, n, err := r.taskAndNumber(c)
		if err != nil {
			return 0, err
		}
		var old api.Priority
		return m.TaskSetPriority(id, api.Priority(n), &old), nil
	case "sleep":
		id, n, err := r.taskAndNumber(c)
		if err != nil {
			return 0, err
		}
		return m.TaskWakeAfter(id, n), nil
	case "job":
		id, n, err := r.taskAndNumber(c)
		if err != nil {
			return 0, err
		}
		return m.ReleaseJob(id, n), nil
	case "affinity":
		if len(c.Args) < 2 {
			return 0, fmt.Errorf("usage: affinity TASK all|CPU...")
		}
		id, err := r.task(c.Args[0])
		if err != nil {
			return 0, err
		}
		buf := make([]byte, kernel.MaxProcessors/8)
		if c.Args[1] == "all" {
			buf, _ = cpuset.All(m.System().ProcessorCount()).Bytes(len(buf))
		} else {
			set, err := parseCPUs(c.Args[1:])
			if err != nil {
				return 0, err
			}
			buf, _ = set.Bytes(len(buf))
		}
		return m.TaskSetAffinity(id, len(buf), buf), nil
	case "move":
		if len(c.Args) != 3 {
			return 0, fmt.Errorf("usage: move TASK SCHEDULER PRIORITY")
		}
		id, err := r.task(c.Args[0])
		if err != nil {
			return 0, err
		}
		sched, err := r.scheduler(c.Args[1])
		if err != nil {
			return 0, err
		}
		p, err := parsePriority(c.Args[2])
		if err != nil {
			return 0, err
		}
		return m.SetTaskScheduler(id, sched, p), nil
	case "pin", "unpin":
		if len(c.Args) != 1 {
			return 0, fmt.Errorf("usage: %s TASK", c.Name)
		}
		id, err := r.task(c.Args[0])
		if err != nil {
			return 0, err
		}
		t := m.Task(id)
		var kst kernel.Status
		if c.Name == "pin" {
			kst = t.Pin()
		} else {
			kst = t.Unpin()
		}
		if kst != kernel.StatusSuccessful {
			return api.IncorrectState, nil
		}
		return api.Successful, nil
	case "add", "remove":
		if len(c.Args) != 2 {
			return 0, fmt.Errorf("usage: %s SCHEDULER CPU", c.Name)
		}
		sched, err := r.scheduler(c.Args[0])
		if err != nil {
			return 0, err
		}
		cpu, err := strconv.Atoi(c.Args[1])
		if err != nil {
			return 0, fmt.Errorf("processor: %w", err)
		}
		if c.Name == "add" {
			return m.AddProcessor(sched, cpu), nil
		}
		return m.RemoveProcessor(sched, cpu), nil
	case "sem":
		return r.createSemaphore(c)
	case "obtain":
		return r.obtain(c)
	case "release":
		if len(c.Args) != 2 {
			return 0, fmt.Errorf("usage: release TASK SEM")
		}
		id, err := r.task(c.Args[0])
		if err != nil {
			return 0, err
		}
		sem, err := r.sem(c.Args[1])
		if err != nil {
			return 0, err
		}
		return m.SemaphoreRelease(sem, id), nil
	case "flush", "delete":
		if len(c.Args) != 1 {
			return 0, fmt.Errorf("usage: %s SEM", c.Name)
		}
		sem, err := r.sem(c.Args[0])
		if err != nil {
			return 0, err
		}
		if c.Name == "flush" {
			return m.SemaphoreFlush(sem), nil
		}
		st := m.SemaphoreDelete(sem)
		if st == api.Successful {
			delete(r.sems, c.Args[0])
		}
		return st, nil
	case "ceiling":
		if len(c.Args) != 3 {
			return 0, fmt.Errorf("usage: ceiling SEM SCHEDULER PRIORITY")
		}
		sem, err := r.sem(c.Args[0])
		if err != nil {
			return 0, err
		}
		sched, err := r.scheduler(c.Args[1])
		if err != nil {
			return 0, err
		}
		p, err := parsePriority(c.Args[2])
		if err != nil {
			return 0, err
		}
		var old api.Priority
		return m.SetResourceCeilingPriority(sem, sched, p, &old), nil
	case "tick":
		n := uint64(1)
		if len(c.Args) == 1 {
			v, err := strconv.ParseUint(c.Args[0], 10, 32)
			if err != nil {
				return 0, fmt.Errorf("tick: %w", err)
			}
			n = v
		}
		for i := uint64(0); i < n; i++ {
			m.System().TickAll()
		}
		return api.Successful, nil
	case "expect":
		return api.Successful, r.expectExecuting(c)
	case "result":
		return api.Successful, r.expectResult(c)
	}
	return 0, fmt.Errorf("unknown command %q", c.Name)
}

func (r *Runner) createSemaphore(c Command) (api.Status, error) {
	if len(c.Args) < 3 {
		return 0, fmt.Errorf("usage: sem NAME COUNT ATTR[,ATTR...] [CEILING [SCHEDULER]]")
	}
	count, err := strconv.ParseUint(c.Args[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	attr, err := parseAttributes(c.Args[2])
	if err != nil {
		return 0, err
	}
	var ceiling api.Priority
	if len(c.Args) > 3 {
		if ceiling, err = parsePriority(c.Args[3]); err != nil {
			return 0, err
		}
	}
	var sched api.ID
	if len(c.Args) > 4 {
		if sched, err = r.scheduler(c.Args[4]); err != nil {
			return 0, err
		}
	}
	var id api.ID
	st := r.mgr.SemaphoreCreate(c.Args[0], uint32(count), attr, ceiling, sched, &id)
	if st == api.Successful {
		r.sems[c.Args[0]] = id
	}
	return st, nil
}

func (r *Runner) obtain(c Command) (api.Status, error) {
	if len(c.Args) < 2 {
		return 0, fmt.Errorf("usage: obtain TASK SEM [nowait] [timeout=TICKS]")
	}
	id, err := r.task(c.Args[0])
	if err != nil {
		return 0, err
	}
	sem, err := r.sem(c.Args[1])
	if err != nil {
		return 0, err
	}
	wait := true
	var timeout uint64
	for _, opt := range c.Args[2:] {
		switch {
		case opt == "nowait":
			wait = false
		case strings.HasPrefix(opt, "timeout="):
			if timeout, err = strconv.ParseUint(strings.TrimPrefix(opt, "timeout="), 10, 64); err != nil {
				return 0, fmt.Errorf("timeout: %w", err)
			}
		default:
			return 0, fmt.Errorf("unknown obtain option %q", opt)
		}
	}
	w, st := r.mgr.SemaphoreObtain(sem, id, wait, timeout)
	if st != api.Successful {
		return st, nil
	}
	r.waits[waitKey(c.Args[0], c.Args[1])] = w
	if got, done := w.Status(); done {
		return got, nil
	}
	return api.Successful, nil
}

// expectExecuting checks "expect CPU TASK|idle".
func (r *Runner) expectExecuting(c Command) error {
	if len(c.Args) != 2 {
		return fmt.Errorf("usage: expect CPU TASK|idle")
	}
	cpu, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	p := r.mgr.System().Processor(cpu)
	if p == nil {
		return fmt.Errorf("processor %d does not exist", cpu)
	}
	got := p.Executing()
	if c.Args[1] == "idle" {
		if got == nil || !got.IsIdle() {
			return fmt.Errorf("%w: processor %d executes %s, want idle", ErrExpectation, cpu, threadName(got))
		}
		return nil
	}
	id, err := r.task(c.Args[1])
	if err != nil {
		return err
	}
	if want := r.mgr.Task(id); got != want {
		return fmt.Errorf("%w: processor %d executes %s, want %s", ErrExpectation, cpu, threadName(got), c.Args[1])
	}
	return nil
}

// expectResult checks "result TASK SEM STATUS|pending".
func (r *Runner) expectResult(c Command) error {
	if len(c.Args) != 3 {
		return fmt.Errorf("usage: result TASK SEM STATUS|pending")
	}
	w := r.waits[waitKey(c.Args[0], c.Args[1])]
	if w == nil {
		return fmt.Errorf("no obtain of %s by %s", c.Args[1], c.Args[0])
	}
	got, done := w.Status()
	switch {
	case c.Args[2] == "pending" && !done:
		return nil
	case c.Args[2] == "pending":
		return fmt.Errorf("%w: wait completed with %s, want pending", ErrExpectation, got)
	case !done:
		return fmt.Errorf("%w: wait pending, want %s", ErrExpectation, c.Args[2])
	case got.String() != c.Args[2]:
		return fmt.Errorf("%w: wait completed with %s, want %s", ErrExpectation, got, c.Args[2])
	}
	return nil
}

func (r *Runner) task(name string) (api.ID, error) {
	id, ok := r.tasks[name]
	if !ok {
		return 0, fmt.Errorf("unknown task %q", name)
	}
	return id, nil
}

func (r *Runner) sem(name string) (api.ID, error) {
	id, ok := r.sems[name]
	if !ok {
		return 0, fmt.Errorf("unknown semaphore %q", name)
	}
	return id, nil
}

func (r *Runner) scheduler(name string) (api.ID, error) {
	var id api.ID
	if st := r.mgr.IdentifyScheduler(name, &id); st != api.Successful {
		return 0, fmt.Errorf("scheduler %q: %s", name, st)
	}
	return id, nil
}

func (r *Runner) taskAndNumber(c Command) (api.ID, uint64, error) {
	if len(c.Args) != 2 {
		return 0, 0, fmt.Errorf("usage: %s TASK NUMBER", c.Name)
	}
	id, err := r.task(c.Args[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.ParseUint(c.Args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", c.Name, err)
	}
	return id, n, nil
}

func parsePriority(s string) (api.Priority, error) {
	v, err := strconv.ParseUint(s, 10, 62)
	if err != nil {
		return 0, fmt.Errorf("priority %q: %w", s, err)
	}
	return api.Priority(v), nil
}

func parseAttributes(s string) (api.Attribute, error) {
	var attr api.Attribute
	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(name) {
		case "counting", "fifo":
		case "binary":
			attr |= api.Binary
		case "simple":
			attr |= api.SimpleBinary
		case "priority":
			attr |= api.PriorityOrder
		case "inherit":
			attr |= api.Inherit
		case "ceiling":
			attr |= api.Ceiling
		case "mrsp":
			attr |= api.MultiprocessorResourceSharing
		default:
			return 0, fmt.Errorf("unknown semaphore attribute %q", name)
		}
	}
	return attr, nil
}

func waitKey(task, sem string) string { return task + "/" + sem }

func threadName(t *kernel.Thread) string {
	if t == nil {
		return "<none>"
	}
	return t.Name()
}
