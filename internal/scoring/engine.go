// Package scoring folds validated, time-ordered events through the rule
// catalog and cap windows into a bounded, auditable score.
package scoring

import (
	"sort"
	"time"

	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/schema"
)

// Engine computes scores. It is stateless between calls: ComputeScore is a
// pure fold over its input, safe to call from any goroutine.
type Engine struct {
	catalog *catalog.Catalog
	cfg     domain.ScoringConfig
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the reference clock used for cap-window cutoffs. Tests
// pin it for bit-identical results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a scoring engine over the given catalog and curve
// configuration.
func NewEngine(cat *catalog.Catalog, cfg domain.ScoringConfig, opts ...Option) *Engine {
	e := &Engine{
		catalog: cat,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeScore evaluates the event list into points, a normalized score, a
// tier, and the full trace. Invalid events are dropped, not fatal; events
// with no matching rule are skipped with zero effect. The function performs
// no I/O and never retries.
func (e *Engine) ComputeScore(events []domain.Event) domain.ScoreResult {
	now := e.now()
	bounds := e.bounds()

	// Filter to admissible events and normalize defaults. The static key
	// set is extended by the active rules document: a declared rule admits
	// its key even before the schema catches up. Zero timestamps are
	// filled from the engine clock so they sort and cap like fresh events.
	list := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.TS == 0 {
			ev.TS = now.UnixMilli()
		}
		if ev.TS < 0 {
			continue
		}
		if !schema.IsEventKey(ev.Key) && e.catalog.Lookup(ev.Key) == nil {
			continue
		}
		list = append(list, ev.Normalize())
	}

	// Stable sort keeps input order for equal timestamps.
	sort.SliceStable(list, func(i, j int) bool { return list[i].TS < list[j].TS })

	trace := make([]domain.LogEntry, 0, len(list))
	points := 0.0

	for _, ev := range list {
		cr := e.catalog.Lookup(ev.Key)
		if cr == nil {
			continue
		}
		rule := cr.Rule

		delta := e.delta(cr, ev)

		// Caps are evaluated against the trace built so far in this call,
		// capped entries included.
		if reason := capReason(trace, rule.Cap, ev.TaskID, now); reason != "" {
			trace = append(trace, domain.LogEntry{Event: ev, Delta: 0, Reason: reason})
			continue
		}

		points += delta
		trace = append(trace, domain.LogEntry{Event: ev, Delta: delta, Reason: domain.ReasonOK})
	}

	points = clamp(points, bounds.MinPoints, bounds.MaxPoints)
	score := pointsToScore(points, e.cfg)

	return domain.ScoreResult{
		Points: points,
		Score:  score,
		Tier:   tierForScore(score, e.cfg.Tiers),
		Log:    trace,
	}
}

// delta computes the point delta for one event. A declared CEL expression
// overrides the builtin strategy for its key; without one, dispatch goes
// through the strategy table, then the default weight. Expression failures
// degrade to a zero delta rather than failing the fold.
func (e *Engine) delta(cr *catalog.CompiledRule, ev domain.Event) float64 {
	if cr.Program != nil {
		d, err := cr.EvalExpression(ev.Meta)
		if err != nil {
			return 0
		}
		return d
	}
	if fn, ok := deltaFuncs[ev.Key]; ok {
		return fn(ev.Meta, cr.Rule)
	}
	return cr.Rule.Weights["default"]
}

// bounds prefers the catalog document's bounds, falling back to the engine
// configuration when the document leaves them zero.
func (e *Engine) bounds() domain.PointBounds {
	b := e.catalog.Bounds()
	if b.MinPoints == 0 && b.MaxPoints == 0 {
		b = e.cfg.Bounds
	}
	if b.MinPoints == 0 && b.MaxPoints == 0 {
		b = domain.PointBounds{MinPoints: -1000, MaxPoints: 3000}
	}
	return b
}
