// Package domain defines the core interfaces and types for creditcore.
package domain

import "time"

// Event is a timestamped, typed record of a user or system action that may
// affect score or credit. Events are immutable once created.
type Event struct {
	ID      string         `json:"id,omitempty"`
	ActorID string         `json:"actorId,omitempty"`
	Key     string         `json:"key"`
	TS      int64          `json:"ts"` // unix milliseconds
	Meta    map[string]any `json:"meta,omitempty"`

	// TaskID identifies the cap-tracking bucket. Defaults to Key.
	TaskID string `json:"taskId,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TS)
}

// Normalize fills derived defaults. TaskID falls back to Key so that caps
// have a stable identity even when producers omit it.
func (e Event) Normalize() Event {
	if e.TaskID == "" {
		e.TaskID = e.Key
	}
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	return e
}

// Known event keys. The set is versioned: producers emitting keys outside it
// are dropped upstream, not failed.
const (
	KeyAttendanceLogged    = "edu.attendance.logged"
	KeyGradePosted         = "edu.grade.posted"
	KeyMicrocertEarned     = "edu.microcert.earned"
	KeyAssignmentSubmitted = "eng.assignment.submitted"
	KeySocialAction        = "social.action"
	KeyPaymentPosted       = "credit.payment.posted"
	KeyDisputeResolved     = "credit.dispute.resolved"
	KeyDerogAdded          = "credit.derog.added"
)
