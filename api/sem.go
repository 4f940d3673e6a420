package api

import (
	"context"
	"math"

	"smpcore/kernel"
)

// Attribute selects the kind, discipline and protocol of a semaphore.
type Attribute uint32

const (
	// Binary semaphores are recursive mutexes with an owner.
	Binary Attribute = 1 << iota
	SimpleBinary
	// PriorityOrder orders waiters by priority instead of arrival.
	PriorityOrder
	Inherit
	Ceiling
	MultiprocessorResourceSharing
)

// Counting and FIFO are the defaults.
const (
	Counting Attribute = 0
	FIFO     Attribute = 0
)

type semaphore struct {
	name     string
	counting *kernel.Semaphore
	mutex    *kernel.Mutex
	mrsp     *kernel.MrsP
}

func (s *semaphore) queue() *kernel.ThreadQueue {
	switch {
	case s.counting != nil:
		return s.counting.Queue()
	case s.mutex != nil:
		return s.mutex.Queue()
	default:
		return s.mrsp.Queue()
	}
}

// Wait is the pending result of SemaphoreObtain.
type Wait struct {
	w *kernel.Wait
}

func (w *Wait) Done() <-chan struct{} { return w.w.Done() }

// Status returns the result once the wait completed.
func (w *Wait) Status() (Status, bool) {
	st, ok := w.w.Result()
	if !ok {
		return 0, false
	}
	return statusOf(st), true
}

// Wait blocks until the wait completes or ctx ends.
func (w *Wait) Wait(ctx context.Context) (Status, error) {
	st, err := w.w.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return statusOf(st), nil
}

// SemaphoreCreate creates a semaphore. The ceiling applies to ceiling and
// MrsP semaphores and belongs to schedID (zero selects the first
// scheduler).
func (m *Manager) SemaphoreCreate(name string, count uint32, attr Attribute, ceiling Priority, schedID ID, id *ID) Status {
	if name == "" {
		return InvalidName
	}
	if id == nil {
		return InvalidAddress
	}
	s := m.sys.Scheduler(0)
	if schedID != 0 {
		if s = m.scheduler(schedID); s == nil {
			return InvalidID
		}
	}
	kind := attr & (Binary | SimpleBinary)
	protocol := attr & (Inherit | Ceiling | MultiprocessorResourceSharing)
	if kind == Binary|SimpleBinary {
		return NotDefined
	}
	if protocol != 0 {
		if kind != Binary || attr&PriorityOrder == 0 {
			return NotDefined
		}
		if protocol != Inherit && protocol != Ceiling && protocol != MultiprocessorResourceSharing {
			return NotDefined
		}
	}
	if kind != Counting && count > 1 {
		return InvalidNumber
	}

	sem := &semaphore{name: name}
	switch {
	case protocol == MultiprocessorResourceSharing:
		r, st := m.sys.NewMrsP(name, s, ceiling)
		if st != kernel.StatusSuccessful {
			return statusOf(st)
		}
		sem.mrsp = r
	case kind == Binary:
		opts := kernel.MutexOptions{Name: name, Scheduler: s, Ceiling: ceiling, FIFO: attr&PriorityOrder == 0}
		switch protocol {
		case Inherit:
			opts.Protocol = kernel.ProtocolInherit
		case Ceiling:
			opts.Protocol = kernel.ProtocolCeiling
		}
		mu, st := m.sys.NewMutex(opts)
		if st != kernel.StatusSuccessful {
			return statusOf(st)
		}
		sem.mutex = mu
	default:
		max := uint32(math.MaxUint32)
		if kind == SimpleBinary {
			max = 1
		}
		c, st := m.sys.NewSemaphore(kernel.SemaphoreOptions{Name: name, Count: count, Max: max, FIFO: attr&PriorityOrder == 0})
		if st != kernel.StatusSuccessful {
			return statusOf(st)
		}
		sem.counting = c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sems) >= MaxObjects {
		return TooMany
	}
	sid := semaphoreIDBase + m.nextSem
	m.nextSem++
	m.sems[sid] = sem
	*id = sid
	return Successful
}

// SemaphoreObtain starts an obtain of a semaphore by a task. The returned
// status covers the arguments; the Wait holds the outcome.
func (m *Manager) SemaphoreObtain(semID, taskID ID, wait bool, timeout uint64) (*Wait, Status) {
	sem := m.sem(semID)
	if sem == nil {
		return nil, InvalidID
	}
	t := m.task(taskID)
	if t == nil {
		return nil, InvalidID
	}
	var w *kernel.Wait
	switch {
	case sem.counting != nil:
		w = sem.counting.Obtain(t, wait, timeout)
	case sem.mutex != nil:
		w = sem.mutex.Obtain(t, wait, timeout)
	default:
		w = sem.mrsp.Obtain(t, wait, timeout)
	}
	return &Wait{w: w}, Successful
}

// SemaphoreRelease releases a semaphore on behalf of a task. Counting
// semaphores ignore the task.
func (m *Manager) SemaphoreRelease(semID, taskID ID) Status {
	sem := m.sem(semID)
	if sem == nil {
		return InvalidID
	}
	if sem.counting != nil {
		return statusOf(sem.counting.Release())
	}
	t := m.task(taskID)
	if t == nil {
		return InvalidID
	}
	if sem.mutex != nil {
		return statusOf(sem.mutex.Release(t))
	}
	return statusOf(sem.mrsp.Release(t))
}

// SemaphoreFlush ends the wait of every waiter with Unsatisfied. MrsP
// semaphores cannot be flushed.
func (m *Manager) SemaphoreFlush(semID ID) Status {
	sem := m.sem(semID)
	if sem == nil {
		return InvalidID
	}
	switch {
	case sem.counting != nil:
		sem.counting.Flush(0)
	case sem.mutex != nil:
		sem.mutex.Flush(0)
	default:
		return NotDefined
	}
	return Successful
}

func (m *Manager) SemaphoreDelete(semID ID) Status {
	sem := m.sem(semID)
	if sem == nil {
		return InvalidID
	}
	var st kernel.Status
	switch {
	case sem.counting != nil:
		st = sem.counting.Delete()
	case sem.mutex != nil:
		st = sem.mutex.Delete()
	default:
		st = sem.mrsp.Delete()
	}
	if st != kernel.StatusSuccessful {
		return statusOf(st)
	}
	m.mu.Lock()
	delete(m.sems, semID)
	m.mu.Unlock()
	return Successful
}

// SemaphoreWaiters returns the tasks waiting on a semaphore in surrender
// order.
func (m *Manager) SemaphoreWaiters(semID ID) ([]ID, Status) {
	sem := m.sem(semID)
	if sem == nil {
		return nil, InvalidID
	}
	var out []ID
	for _, t := range sem.queue().Waiters() {
		out = append(out, m.TaskID(t))
	}
	return out, Successful
}
