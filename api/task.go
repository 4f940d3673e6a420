package api

import (
	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

// TaskOptions are the optional attributes of TaskCreate.
type TaskOptions struct {
	// Scheduler is the home scheduler; zero selects the first one.
	Scheduler ID
	TimeSlice bool
}

func (m *Manager) TaskCreate(name string, prio Priority, opts TaskOptions, id *ID) Status {
	if name == "" {
		return InvalidName
	}
	if id == nil {
		return InvalidAddress
	}
	s := m.sys.Scheduler(0)
	if opts.Scheduler != 0 {
		if s = m.scheduler(opts.Scheduler); s == nil {
			return InvalidID
		}
	}
	if !s.ValidPriority(prio) {
		return InvalidPriority
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) >= MaxObjects {
		return TooMany
	}
	t, st := m.sys.CreateThread(kernel.ThreadOptions{
		Name:      name,
		Scheduler: s,
		Priority:  prio,
		TimeSlice: opts.TimeSlice,
	})
	if st != kernel.StatusSuccessful {
		return statusOf(st)
	}
	tid := taskIDBase + m.nextTask
	m.nextTask++
	m.tasks[tid] = t
	*id = tid
	return Successful
}

func (m *Manager) TaskStart(id ID) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	return statusOf(t.Start())
}

func (m *Manager) TaskSuspend(id ID) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	return statusOf(t.Suspend())
}

func (m *Manager) TaskResume(id ID) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	return statusOf(t.Resume())
}

// TaskSetPriority changes the real priority and stores the previous one.
func (m *Manager) TaskSetPriority(id ID, prio Priority, old *Priority) Status {
	if old == nil {
		return InvalidAddress
	}
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	p, st := t.SetPriority(prio)
	if st != kernel.StatusSuccessful {
		return statusOf(st)
	}
	*old = p
	return Successful
}

// TaskGetPriority returns the current priority of a task on a scheduler.
func (m *Manager) TaskGetPriority(id, schedID ID, out *Priority) Status {
	if out == nil {
		return InvalidAddress
	}
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	p, ok := t.PriorityOn(s)
	if !ok {
		return NotDefined
	}
	*out = p
	return Successful
}

func (m *Manager) TaskGetScheduler(id ID, out *ID) Status {
	if out == nil {
		return InvalidAddress
	}
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	*out = SchedulerID(t.Home())
	return Successful
}

func (m *Manager) TaskSetAffinity(id ID, size int, set []byte) Status {
	if set == nil {
		return InvalidAddress
	}
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	want, overflow := cpuset.FromBytes(size, set, m.sys.ProcessorCount())
	if overflow {
		return InvalidNumber
	}
	return statusOf(t.SetAffinity(want))
}

func (m *Manager) TaskGetAffinity(id ID, size int, set []byte) Status {
	if set == nil {
		return InvalidAddress
	}
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	if size > len(set) {
		size = len(set)
	}
	buf, truncated := t.Affinity().Bytes(size)
	if truncated {
		return InvalidSize
	}
	copy(set, buf)
	return Successful
}

func (m *Manager) TaskYield(id ID) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	t.Yield()
	return Successful
}

func (m *Manager) TaskWakeAfter(id ID, ticks uint64) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	t.WakeAfter(ticks)
	return Successful
}

// ReleaseJob gives a task of an EDF scheduler a deadline relative to now.
func (m *Manager) ReleaseJob(id ID, deadline uint64) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	if deadline == 0 {
		return InvalidNumber
	}
	t.ReleaseJob(deadline)
	return Successful
}

func (m *Manager) CancelJob(id ID) Status {
	t := m.task(id)
	if t == nil {
		return InvalidID
	}
	t.CancelJob()
	return Successful
}
