package workflow

import "time"

// WorkflowStatus is the stored, transition-driven workflow state.
type WorkflowStatus string

const (
	WorkflowDraft      WorkflowStatus = "draft"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowExpired    WorkflowStatus = "expired"
	WorkflowCancelled  WorkflowStatus = "cancelled"
)

// EnvelopeStatus tracks dispatch/completion of a recipient batch.
type EnvelopeStatus string

const (
	EnvelopeDraft      EnvelopeStatus = "draft"
	EnvelopeInProgress EnvelopeStatus = "in_progress"
	EnvelopeCompleted  EnvelopeStatus = "completed"
	EnvelopeFailed     EnvelopeStatus = "failed"
	EnvelopeExpired    EnvelopeStatus = "expired"
)

// Terminal reports whether the stored workflow status admits no further
// transitions.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowExpired, WorkflowCancelled:
		return true
	}
	return false
}

// EffectiveStatus derives the displayed workflow status at read time. The
// stored status is never overwritten by this derivation: a workflow past
// its deadline (or with an expired envelope) reads as expired, unless it
// already reached Completed or Cancelled, which dominate the expiry check.
func EffectiveStatus(w Workflow, anyEnvelopeExpired bool, now time.Time) WorkflowStatus {
	if w.Status == WorkflowCompleted || w.Status == WorkflowCancelled {
		return w.Status
	}
	if now.After(w.ValidUntil) || anyEnvelopeExpired {
		return WorkflowExpired
	}
	return w.Status
}

// EffectiveStatusOf applies the derivation to a snapshot.
func EffectiveStatusOf(s Snapshot, now time.Time) WorkflowStatus {
	return EffectiveStatus(s.Workflow, s.Envelope.Status == EnvelopeExpired, now)
}
