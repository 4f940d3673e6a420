package kernel

// Status is the outcome of a kernel operation.
type Status uint8

const (
	StatusSuccessful Status = iota
	StatusUnavailable
	StatusTimeout
	StatusObjectWasDeleted
	StatusUnsatisfied
	StatusResourceInUse
	StatusIncorrectState
	StatusNotOwner
	StatusInvalidPriority
	StatusInvalidNumber
	StatusNotDefined
	StatusDeadlock
	StatusNotConfigured
	StatusAlreadySuspended
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusUnavailable:
		return "unavailable"
	case StatusTimeout:
		return "timeout"
	case StatusObjectWasDeleted:
		return "object-was-deleted"
	case StatusUnsatisfied:
		return "unsatisfied"
	case StatusResourceInUse:
		return "resource-in-use"
	case StatusIncorrectState:
		return "incorrect-state"
	case StatusNotOwner:
		return "not-owner"
	case StatusInvalidPriority:
		return "invalid-priority"
	case StatusInvalidNumber:
		return "invalid-number"
	case StatusNotDefined:
		return "not-defined"
	case StatusDeadlock:
		return "deadlock"
	case StatusNotConfigured:
		return "not-configured"
	case StatusAlreadySuspended:
		return "already-suspended"
	default:
		return "unknown"
	}
}
