package scan

// Status is the lifecycle state of a scan.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

func (s Status) String() string {
	return string(s)
}

// transitions lists the allowed moves out of each non-terminal state.
var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCanceled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCanceled},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Trigger records what started a scan.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerAPI       Trigger = "api"
)

// IsValid checks if the trigger is a known value.
func (t Trigger) IsValid() bool {
	return t == TriggerManual || t == TriggerScheduled || t == TriggerAPI
}

func (t Trigger) String() string {
	return string(t)
}
