package model

// Status is the lifecycle state of a history record.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusDelivered  Status = "DELIVERED"
	StatusRead       Status = "READ"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSent, StatusDelivered,
		StatusRead, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition out of s is legal, apart
// from the FAILED→QUEUED edge owned by the retry scheduler.
func (s Status) Terminal() bool {
	switch s {
	case StatusRead, StatusCancelled:
		return true
	}
	return false
}

// legalTransitions enumerates the edges of the status state machine:
//
//	QUEUED → PROCESSING → {SENT → DELIVERED → READ | FAILED}
//	QUEUED → CANCELLED
//	FAILED → QUEUED (retry scheduler only, guarded by CanRetry)
var legalTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusDelivered, StatusFailed},
	StatusSent:       {StatusDelivered, StatusFailed},
	StatusDelivered:  {StatusRead},
	StatusFailed:     {StatusQueued},
}

// CanTransition reports whether from → to is a legal edge. A transition to
// the current status is allowed so status updates stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
