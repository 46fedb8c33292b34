package models

type UnitStatus string

const (
	UnitStatusDraft      UnitStatus = "draft"
	UnitStatusScheduled  UnitStatus = "scheduled"
	UnitStatusPublishing UnitStatus = "publishing"
	UnitStatusPublished  UnitStatus = "published"
	UnitStatusFailed     UnitStatus = "failed"
)

// transitions is the delivery unit state machine. published has no outgoing edge.
var transitions = map[UnitStatus][]UnitStatus{
	UnitStatusDraft:      {UnitStatusScheduled},
	UnitStatusScheduled:  {UnitStatusPublishing, UnitStatusDraft, UnitStatusScheduled},
	UnitStatusPublishing: {UnitStatusPublished, UnitStatusFailed},
	UnitStatusFailed:     {UnitStatusScheduled},
}

func (s UnitStatus) CanTransition(next UnitStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s UnitStatus) Terminal() bool {
	return s == UnitStatusPublished
}

// Cancellable reports whether cancelling a unit in this status has any effect.
func (s UnitStatus) Cancellable() bool {
	return s == UnitStatusDraft || s == UnitStatusScheduled
}

// FailureKind classifies why a publish attempt failed.
type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureCredential FailureKind = "credential"
	FailureTransient  FailureKind = "transient"
	FailurePermanent  FailureKind = "permanent"
)

// Retryable reports whether the retry coordinator may re-arm a unit that failed with this kind.
func (k FailureKind) Retryable() bool {
	return k == FailureTransient
}
