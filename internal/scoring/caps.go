package scoring

import (
	"time"

	"github.com/shfed/creditcore/internal/domain"
)

// Cap window granularities.
const (
	WindowWeek    = 7 * 24 * time.Hour
	WindowMonth   = 30 * 24 * time.Hour
	WindowQuarter = 90 * 24 * time.Hour
)

// withinCap counts trace entries sharing the task identity inside the
// trailing window and reports whether another contribution is allowed.
// Only entries already folded into the trace at this point are considered:
// caps are monotonic in processing order, and callers must feed the complete
// relevant history each call for them to have bounded meaning.
func withinCap(trace []domain.LogEntry, taskID string, window time.Duration, limit int, now time.Time) bool {
	cutoff := now.Add(-window).UnixMilli()
	count := 0
	for _, le := range trace {
		if le.TaskID == taskID && le.TS >= cutoff {
			count++
		}
	}
	return count < limit
}

// capReason returns the first exceeded cap window for the event, or "" when
// the event is still within all declared limits. Windows are checked in
// ascending size, matching the trace reason priority.
func capReason(trace []domain.LogEntry, cap *domain.Cap, taskID string, now time.Time) string {
	if cap == nil {
		return ""
	}
	if cap.PerWeek > 0 && !withinCap(trace, taskID, WindowWeek, cap.PerWeek, now) {
		return domain.ReasonCapWeek
	}
	if cap.PerMonth > 0 && !withinCap(trace, taskID, WindowMonth, cap.PerMonth, now) {
		return domain.ReasonCapMonth
	}
	if cap.PerQuarter > 0 && !withinCap(trace, taskID, WindowQuarter, cap.PerQuarter, now) {
		return domain.ReasonCapQuarter
	}
	return ""
}
