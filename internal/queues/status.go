package queues

// Status represents the lifecycle state of a queue item.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// legalTransitions is the single source of truth for item lifecycle moves.
// Adding a state or a transition is a one-place change here.
var legalTransitions = map[Status][]Status{
	StatusWaiting:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// IsValid checks if the status is a known state literal
func (s Status) IsValid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are legal from this state
func (s Status) IsTerminal() bool {
	return len(legalTransitions[s]) == 0 && s.IsValid()
}

// CanTransitionTo reports whether moving from s to target is in the legal table
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range legalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsActive reports whether the item still occupies a live position in its queue
func (s Status) IsActive() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// Priority is a stored triage tier. It is surfaced in reads and stats but
// never reorders auto-advance, which stays strictly first-in-first-out.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (p Priority) String() string {
	return string(p)
}
