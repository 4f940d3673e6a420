package kernel

import "sync"

// EventOp names a scheduler operation.
type EventOp uint8

const (
	EventBlock EventOp = iota + 1
	EventUnblock
	EventUpdatePriority
	EventYield
	EventAskForHelp
	EventWithdraw
	EventMapPriority
	EventAddProcessor
	EventRemoveProcessor
	EventSetAffinity
	EventPin
	EventUnpin
	EventMakeSticky
	EventCleanSticky
	EventReleaseJob
	EventCancelJob
)

func (op EventOp) String() string {
	switch op {
	case EventBlock:
		return "block"
	case EventUnblock:
		return "unblock"
	case EventUpdatePriority:
		return "update-priority"
	case EventYield:
		return "yield"
	case EventAskForHelp:
		return "ask-for-help"
	case EventWithdraw:
		return "withdraw"
	case EventMapPriority:
		return "map-priority"
	case EventAddProcessor:
		return "add-processor"
	case EventRemoveProcessor:
		return "remove-processor"
	case EventSetAffinity:
		return "set-affinity"
	case EventPin:
		return "pin"
	case EventUnpin:
		return "unpin"
	case EventMakeSticky:
		return "make-sticky"
	case EventCleanSticky:
		return "clean-sticky"
	case EventReleaseJob:
		return "release-job"
	case EventCancelJob:
		return "cancel-job"
	default:
		return "unknown"
	}
}

// Event is one scheduler operation. CPU is -1 when no processor applies.
type Event struct {
	Op        EventOp
	Thread    ThreadID
	Scheduler int
	CPU       int
	Priority  Priority
}

// EventSink receives scheduler events. Record is called with scheduler
// locks held and must not call back into the kernel.
type EventSink interface {
	Record(ev Event)
}

// EventLog is a bounded in-memory EventSink.
type EventLog struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewEventLog returns a log that keeps the most recent max events
// (unbounded when max <= 0).
func NewEventLog(max int) *EventLog {
	return &EventLog{max: max}
}

func (l *EventLog) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && len(l.events) == l.max {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, ev)
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Ops returns the operations of events matching thread, or all when
// thread is zero.
func (l *EventLog) Ops(thread ThreadID) []EventOp {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventOp
	for _, ev := range l.events {
		if thread == 0 || ev.Thread == thread {
			out = append(out, ev.Op)
		}
	}
	return out
}

func (l *EventLog) Reset() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

type multiSink []EventSink

func (m multiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// Tee fans events out to several sinks.
func Tee(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
