package scoring

import (
	"testing"
	"time"

	"github.com/shfed/creditcore/internal/domain"
)

func traceOf(taskID string, times ...time.Time) []domain.LogEntry {
	out := make([]domain.LogEntry, 0, len(times))
	for _, ts := range times {
		out = append(out, domain.LogEntry{
			Event:  domain.Event{Key: domain.KeyAttendanceLogged, TS: ts.UnixMilli(), TaskID: taskID},
			Reason: domain.ReasonOK,
		})
	}
	return out
}

func TestWithinCap(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("UnderLimit", func(t *testing.T) {
		trace := traceOf("att", now.Add(-time.Hour), now.Add(-2*time.Hour))
		if !withinCap(trace, "att", WindowWeek, 3, now) {
			t.Error("expected within cap at 2 of 3")
		}
	})

	t.Run("AtLimit", func(t *testing.T) {
		trace := traceOf("att", now.Add(-time.Hour), now.Add(-2*time.Hour), now.Add(-3*time.Hour))
		if withinCap(trace, "att", WindowWeek, 3, now) {
			t.Error("expected cap hit at 3 of 3")
		}
	})

	t.Run("OtherTaskIgnored", func(t *testing.T) {
		trace := traceOf("other", now.Add(-time.Hour), now.Add(-2*time.Hour), now.Add(-3*time.Hour))
		if !withinCap(trace, "att", WindowWeek, 1, now) {
			t.Error("entries of other tasks must not count")
		}
	})

	t.Run("OutsideWindowIgnored", func(t *testing.T) {
		trace := traceOf("att", now.Add(-8*24*time.Hour), now.Add(-time.Hour))
		if !withinCap(trace, "att", WindowWeek, 2, now) {
			t.Error("entry older than the window must not count")
		}
	})

	t.Run("CutoffInclusive", func(t *testing.T) {
		trace := traceOf("att", now.Add(-WindowWeek))
		if withinCap(trace, "att", WindowWeek, 1, now) {
			t.Error("entry exactly at cutoff counts (ts >= cutoff)")
		}
	})
}

func TestCapReasonPriority(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Three entries in the last day exceed every window's limit of 3; the
	// week reason wins because windows are checked smallest first.
	trace := traceOf("att", now.Add(-time.Hour), now.Add(-2*time.Hour), now.Add(-3*time.Hour))
	cap := &domain.Cap{PerWeek: 3, PerMonth: 3, PerQuarter: 3}

	if got := capReason(trace, cap, "att", now); got != domain.ReasonCapWeek {
		t.Errorf("expected %q, got %q", domain.ReasonCapWeek, got)
	}

	// Only the month window declared.
	cap = &domain.Cap{PerMonth: 3}
	if got := capReason(trace, cap, "att", now); got != domain.ReasonCapMonth {
		t.Errorf("expected %q, got %q", domain.ReasonCapMonth, got)
	}

	// Quarter only.
	cap = &domain.Cap{PerQuarter: 3}
	if got := capReason(trace, cap, "att", now); got != domain.ReasonCapQuarter {
		t.Errorf("expected %q, got %q", domain.ReasonCapQuarter, got)
	}
}

func TestCapReasonNilCap(t *testing.T) {
	now := time.Now()
	trace := traceOf("att", now)
	if got := capReason(trace, nil, "att", now); got != "" {
		t.Errorf("expected no reason for nil cap, got %q", got)
	}
}
