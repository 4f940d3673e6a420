package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// FatalSource identifies the subsystem that requested a halt.
type FatalSource uint8

const (
	FatalSourceInternal FatalSource = iota + 1
	FatalSourceApplication
)

func (s FatalSource) String() string {
	switch s {
	case FatalSourceInternal:
		return "internal"
	case FatalSourceApplication:
		return "application"
	default:
		return "unknown"
	}
}

// FatalCode is a protocol violation that cannot be reported to a caller.
type FatalCode uint8

const (
	FatalThreadQueueDeadlock FatalCode = iota + 1
	FatalThreadQueueEnqueueStickyFromBadState
	FatalThreadQueueEnqueueFromBadState
	FatalNoIdleNode
)

func (c FatalCode) String() string {
	switch c {
	case FatalThreadQueueDeadlock:
		return "thread-queue-deadlock"
	case FatalThreadQueueEnqueueStickyFromBadState:
		return "thread-queue-enqueue-sticky-from-bad-state"
	case FatalThreadQueueEnqueueFromBadState:
		return "thread-queue-enqueue-from-bad-state"
	case FatalNoIdleNode:
		return "no-idle-node"
	default:
		return "unknown"
	}
}

// FatalError is the value a halted system panics with.
type FatalError struct {
	Source FatalSource
	Code   FatalCode
	Thread ThreadID
	Detail string
}

func (e *FatalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("kernel halt: %s/%s (thread %d)", e.Source, e.Code, e.Thread)
	}
	return fmt.Sprintf("kernel halt: %s/%s (thread %d): %s", e.Source, e.Code, e.Thread, e.Detail)
}

type haltState struct {
	active  atomic.Bool
	once    sync.Once
	handler atomic.Value // func(FatalError)
}

// Halted reports whether the system went through Halt.
func (s *System) Halted() bool {
	return s.halt.active.Load()
}

// SetFatalHandler installs the handler Halt invokes. The handler runs at
// most once and must not panic.
func (s *System) SetFatalHandler(fn func(FatalError)) {
	s.halt.handler.Store(fn)
}

// Halt stops the system. It is the only exit for protocol violations:
// the handler runs once, then Halt panics with a *FatalError.
func (s *System) Halt(code FatalCode, t *Thread, detail string) {
	err := &FatalError{Source: FatalSourceInternal, Code: code, Detail: detail}
	if t != nil {
		err.Thread = t.id
	}
	s.halt.once.Do(func() {
		s.halt.active.Store(true)
		if v := s.halt.handler.Load(); v != nil {
			if fn, ok := v.(func(FatalError)); ok && fn != nil {
				fn(*err)
			}
		}
	})
	panic(err)
}
