package api

import "smpcore/kernel"

// Status is the result of a directive.
type Status uint8

const (
	Successful Status = iota
	InvalidName
	InvalidID
	InvalidAddress
	InvalidNumber
	InvalidSize
	InvalidPriority
	NotDefined
	ResourceInUse
	IncorrectState
	Unsatisfied
	NotConfigured
	Timeout
	ObjectWasDeleted
	NotOwnerOfResource
	TooMany
	AlreadySuspended
)

func (s Status) String() string {
	switch s {
	case Successful:
		return "successful"
	case InvalidName:
		return "invalid-name"
	case InvalidID:
		return "invalid-id"
	case InvalidAddress:
		return "invalid-address"
	case InvalidNumber:
		return "invalid-number"
	case InvalidSize:
		return "invalid-size"
	case InvalidPriority:
		return "invalid-priority"
	case NotDefined:
		return "not-defined"
	case ResourceInUse:
		return "resource-in-use"
	case IncorrectState:
		return "incorrect-state"
	case Unsatisfied:
		return "unsatisfied"
	case NotConfigured:
		return "not-configured"
	case Timeout:
		return "timeout"
	case ObjectWasDeleted:
		return "object-was-deleted"
	case NotOwnerOfResource:
		return "not-owner-of-resource"
	case TooMany:
		return "too-many"
	case AlreadySuspended:
		return "already-suspended"
	default:
		return "unknown"
	}
}

// statusOf maps a kernel status to the directive status.
func statusOf(st kernel.Status) Status {
	switch st {
	case kernel.StatusSuccessful:
		return Successful
	case kernel.StatusUnavailable, kernel.StatusUnsatisfied:
		return Unsatisfied
	case kernel.StatusTimeout:
		return Timeout
	case kernel.StatusObjectWasDeleted:
		return ObjectWasDeleted
	case kernel.StatusResourceInUse:
		return ResourceInUse
	case kernel.StatusIncorrectState, kernel.StatusDeadlock:
		return IncorrectState
	case kernel.StatusNotOwner:
		return NotOwnerOfResource
	case kernel.StatusInvalidPriority:
		return InvalidPriority
	case kernel.StatusInvalidNumber:
		return InvalidNumber
	case kernel.StatusNotDefined:
		return NotDefined
	case kernel.StatusNotConfigured:
		return NotConfigured
	case kernel.StatusAlreadySuspended:
		return AlreadySuspended
	default:
		return IncorrectState
	}
}
