package domain

// Rule maps an event kind to point weights, thresholds, and anti-gaming caps.
// Rules are configuration: loaded once, read-only during a scoring call.
type Rule struct {
	Key        string             `json:"key"`
	Weights    map[string]float64 `json:"weights"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	Cap        *Cap               `json:"cap,omitempty"`

	// Expression is an optional CEL expression computing the delta from the
	// event meta. When set it overrides the built-in strategy for the kind,
	// and it admits kinds the static schema does not know. Evaluated with
	// the variables "meta" (map) and "weights" (map). Must return a number.
	Expression string `json:"expression,omitempty"`
}

// Cap limits how many times a task contributes within a trailing window.
// Zero means no limit for that window.
type Cap struct {
	PerWeek    int `json:"perWeek,omitempty"`
	PerMonth   int `json:"perMonth,omitempty"`
	PerQuarter int `json:"perQuarter,omitempty"`
}

// RulesDoc is the versioned rule catalog document. It is data, not code, and
// is hot-swappable without recompiling the engine.
type RulesDoc struct {
	Version string      `json:"version"`
	Bounds  PointBounds `json:"bounds"`
	Rules   []Rule      `json:"rules"`
}

// PointBounds clamp the accumulated points before curve mapping.
type PointBounds struct {
	MinPoints float64 `json:"minPoints"`
	MaxPoints float64 `json:"maxPoints"`
}
