package api

import (
	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

// cpusetWord is the granularity of processor set buffers.
const cpusetWord = 8

// IdentifyScheduler looks a scheduler up by name.
func (m *Manager) IdentifyScheduler(name string, id *ID) Status {
	if id == nil {
		return InvalidAddress
	}
	for _, s := range m.sys.Schedulers() {
		if s.Name() == name {
			*id = SchedulerID(s)
			return Successful
		}
	}
	return InvalidName
}

// IdentifyByProcessor returns the scheduler owning processor cpu.
func (m *Manager) IdentifyByProcessor(cpu int, id *ID) Status {
	if id == nil {
		return InvalidAddress
	}
	p := m.sys.Processor(cpu)
	if p == nil {
		return InvalidName
	}
	s := p.Scheduler()
	if s == nil {
		return IncorrectState
	}
	*id = SchedulerID(s)
	return Successful
}

// IdentifyByProcessorSet returns the scheduler owning the highest online
// processor of the set.
func (m *Manager) IdentifyByProcessorSet(size int, set []byte, id *ID) Status {
	if id == nil || set == nil {
		return InvalidAddress
	}
	// A zero size is an empty set, not a bad size.
	if size < 0 || size%cpusetWord != 0 {
		return InvalidSize
	}
	want, _ := cpuset.FromBytes(size, set, m.sys.ProcessorCount())
	var online cpuset.Set
	for _, p := range m.sys.Processors() {
		if p.Online() {
			online = online.Add(p.Index())
		}
	}
	want = want.And(online)
	if want.IsZero() {
		return InvalidName
	}
	s := m.sys.Processor(want.Last()).Scheduler()
	if s == nil {
		return IncorrectState
	}
	*id = SchedulerID(s)
	return Successful
}

func (m *Manager) GetMaximumPriority(schedID ID, out *Priority) Status {
	if out == nil {
		return InvalidAddress
	}
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	*out = s.MaximumPriority()
	return Successful
}

// GetProcessorSet stores the processors owned by a scheduler.
func (m *Manager) GetProcessorSet(schedID ID, size int, set []byte) Status {
	if set == nil {
		return InvalidAddress
	}
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	if size > len(set) {
		size = len(set)
	}
	buf, truncated := s.Processors().Bytes(size)
	if truncated {
		return InvalidSize
	}
	copy(set, buf)
	return Successful
}

func (m *Manager) AddProcessor(schedID ID, cpu int) Status {
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	return statusOf(m.sys.AddProcessor(s, cpu))
}

func (m *Manager) RemoveProcessor(schedID ID, cpu int) Status {
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	return statusOf(m.sys.RemoveProcessor(s, cpu))
}

// SetTaskScheduler moves a task to another home scheduler.
func (m *Manager) SetTaskScheduler(taskID, schedID ID, prio Priority) Status {
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	if !s.ValidPriority(prio) {
		return InvalidPriority
	}
	t := m.task(taskID)
	if t == nil {
		return InvalidID
	}
	return statusOf(t.SetScheduler(s, prio))
}

// SetResourceCeilingPriority replaces the ceiling of a semaphore for a
// scheduler. CurrentPriority only reports the ceiling.
func (m *Manager) SetResourceCeilingPriority(semID, schedID ID, prio Priority, old *Priority) Status {
	if old == nil {
		return InvalidAddress
	}
	s := m.scheduler(schedID)
	if s == nil {
		return InvalidID
	}
	sem := m.sem(semID)
	if sem == nil {
		return InvalidID
	}
	var p Priority
	var st Status
	switch {
	case sem.mrsp != nil:
		v, kst := sem.mrsp.SetCeiling(s, prio)
		p, st = v, statusOf(kst)
	case sem.mutex != nil && sem.mutex.Protocol() == kernel.ProtocolCeiling:
		v, kst := sem.mutex.SetCeiling(s, prio)
		p, st = v, statusOf(kst)
	default:
		return NotDefined
	}
	if st == Successful {
		*old = p
	}
	return st
}
