package kernel

// SemaphoreOptions configures NewSemaphore.
type SemaphoreOptions struct {
	Name  string
	Count uint32
	// Max bounds the count; zero leaves it unbounded.
	Max  uint32
	FIFO bool
}

// Semaphore is a counting semaphore without owner.
type Semaphore struct {
	sys *System
	q   *ThreadQueue

	// Guarded by q.mu.
	count   uint32
	max     uint32
	deleted bool
}

func (s *System) NewSemaphore(opts SemaphoreOptions) (*Semaphore, Status) {
	if opts.Max != 0 && opts.Count > opts.Max {
		return nil, StatusInvalidNumber
	}
	d := DisciplinePriority
	if opts.FIFO {
		d = DisciplineFIFO
	}
	return &Semaphore{
		sys:   s,
		q:     newThreadQueue(s, opts.Name, d, false),
		count: opts.Count,
		max:   opts.Max,
	}, StatusSuccessful
}

func (m *Semaphore) Name() string        { return m.q.name }
func (m *Semaphore) Queue() *ThreadQueue { return m.q }

func (m *Semaphore) Count() uint32 {
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	return m.count
}

// Obtain takes one unit of the count for t.
func (m *Semaphore) Obtain(t *Thread, wait bool, timeout uint64) *Wait {
	var acts prioActions
	w, blocked := m.obtainLocked(t, wait, timeout, &acts)
	if blocked {
		m.q.block(t, false, &acts)
	}
	m.sys.dispatchPending()
	return w
}

func (m *Semaphore) obtainLocked(t *Thread, wait bool, timeout uint64, acts *prioActions) (*Wait, bool) {
	m.q.mu.Lock()
	defer m.q.mu.Unlock()
	switch {
	case m.deleted:
		return completedWait(t, StatusObjectWasDeleted), false
	case m.count > 0:
		m.count--
		return completedWait(t, StatusSuccessful), false
	case !wait:
		return completedWait(t, StatusUnavailable), false
	}
	return m.q.enqueueLocked(t, enqueueParams{timeout: timeout}, acts)
}

// Release hands one unit to the first waiter or adds it to the count.
func (m *Semaphore) Release() Status {
	var acts prioActions
	m.q.mu.Lock()
	if m.deleted {
		m.q.mu.Unlock()
		return StatusObjectWasDeleted
	}
	t, resume := m.q.dequeueLocked(StatusSuccessful, &acts)
	if t == nil {
		if m.max != 0 && m.count == m.max {
			m.q.mu.Unlock()
			return StatusUnsatisfied
		}
		m.count++
	}
	m.q.mu.Unlock()
	if resume {
		t.resumeFromWait()
	}
	m.sys.dispatchPending()
	return StatusSuccessful
}

// Flush ends the wait of up to limit waiters with StatusUnsatisfied, all
// of them when limit <= 0. It returns the number of flushed waiters.
func (m *Semaphore) Flush(limit int) int {
	return m.flush(StatusUnsatisfied, limit, false)
}

// Delete flushes every waiter with StatusObjectWasDeleted.
func (m *Semaphore) Delete() Status {
	m.flush(StatusObjectWasDeleted, 0, true)
	return StatusSuccessful
}

func (m *Semaphore) flush(st Status, limit int, del bool) int {
	var acts prioActions
	m.q.mu.Lock()
	if del {
		m.deleted = true
	}
	resume, n := m.q.flushLocked(st, limit, &acts)
	m.q.mu.Unlock()
	for _, t := range resume {
		t.resumeFromWait()
	}
	m.sys.dispatchPending()
	return n
}
