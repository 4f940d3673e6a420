// Package api is the directive surface of the kernel: object identifiers,
// argument validation in a fixed order, and status codes.
package api

import (
	"sync"

	"smpcore/kernel"
)

// ID identifies a scheduler, task or semaphore.
type ID uint32

// Priority is a task priority; zero selects the current priority.
type Priority = kernel.Priority

// CurrentPriority makes priority directives report without changing.
const CurrentPriority Priority = 0

const (
	schedulerIDBase ID = 0x0F010001
	taskIDBase      ID = 0x0A010001
	semaphoreIDBase ID = 0x2A010001

	// MaxObjects bounds the tasks and the semaphores of a Manager.
	MaxObjects = 0xFFFF
)

// Manager holds the object tables of one kernel.
type Manager struct {
	sys *kernel.System

	mu       sync.Mutex
	tasks    map[ID]*kernel.Thread
	sems     map[ID]*semaphore
	nextTask ID
	nextSem  ID
}

func New(sys *kernel.System) *Manager {
	return &Manager{
		sys:   sys,
		tasks: make(map[ID]*kernel.Thread),
		sems:  make(map[ID]*semaphore),
	}
}

func (m *Manager) System() *kernel.System { return m.sys }

// SchedulerID returns the identifier of s.
func SchedulerID(s *kernel.Scheduler) ID {
	return schedulerIDBase + ID(s.Index())
}

func (m *Manager) scheduler(id ID) *kernel.Scheduler {
	if id < schedulerIDBase {
		return nil
	}
	return m.sys.Scheduler(int(id - schedulerIDBase))
}

func (m *Manager) task(id ID) *kernel.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

func (m *Manager) sem(id ID) *semaphore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sems[id]
}

// Task returns the thread behind a task identifier, or nil.
func (m *Manager) Task(id ID) *kernel.Thread { return m.task(id) }

// TaskID returns the identifier of t, or zero when t is not a task of m.
func (m *Manager) TaskID(t *kernel.Thread) ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, x := range m.tasks {
		if x == t {
			return id
		}
	}
	return 0
}
