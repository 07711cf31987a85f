// Package schema validates raw events against the versioned set of known
// event kinds. Unknown kinds are rejected so producers can ship new events
// ahead of the rule set without breaking scoring.
package schema

import "github.com/shfed/creditcore/internal/domain"

// Version identifies the event key set. Bump when keys are added or retired.
const Version = "v1"

var knownKeys = map[string]struct{}{
	domain.KeyAttendanceLogged:    {},
	domain.KeyGradePosted:         {},
	domain.KeyMicrocertEarned:     {},
	domain.KeyAssignmentSubmitted: {},
	domain.KeySocialAction:        {},
	domain.KeyPaymentPosted:       {},
	domain.KeyDisputeResolved:     {},
	domain.KeyDerogAdded:          {},
}

// IsEventKey reports whether key is a member of the known event kind set.
func IsEventKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// IsValid reports whether the event passes schema validation: a known key
// and a usable shape. It has no side effects.
func IsValid(ev domain.Event) bool {
	if !IsEventKey(ev.Key) {
		return false
	}
	return ev.TS >= 0
}

// Keys returns the known event kinds, for diagnostics and the rules API.
func Keys() []string {
	out := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		out = append(out, k)
	}
	return out
}
