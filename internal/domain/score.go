package domain

// Trace reasons recorded per log entry.
const (
	ReasonOK         = "ok"
	ReasonCapWeek    = "cap.perWeek"
	ReasonCapMonth   = "cap.perMonth"
	ReasonCapQuarter = "cap.perQuarter"
)

// LogEntry is one line of the scoring trace: the event plus the delta it
// contributed and why. Produced in processing order, never mutated.
type LogEntry struct {
	Event
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

// Tier is a named band derived from the normalized score.
type Tier struct {
	Name string `json:"name"`
	Band string `json:"band"`
}

// TierBreak is one row of the ordered tier breakpoint table: scores at or
// above MinScore fall into Tier (first match wins, table sorted descending).
type TierBreak struct {
	MinScore int    `json:"minScore"`
	Name     string `json:"name"`
	Band     string `json:"band"`
}

// ScoreResult is the derived output of a scoring call. It is recomputed
// fresh on every call; the event history is the source of truth.
type ScoreResult struct {
	Points float64    `json:"points"`
	Score  int        `json:"score"`
	Tier   Tier       `json:"tier"`
	Log    []LogEntry `json:"log"`
}

// ScoringConfig holds the tunables of the point-to-score curve.
type ScoringConfig struct {
	Bounds PointBounds `json:"bounds"`

	// Logistic curve parameters: score = round(300 + 550*sigmoid(K*(p-Center))).
	CurveK      float64 `json:"curveK"`
	CurveCenter float64 `json:"curveCenter"`

	// Tiers is the ordered breakpoint table, highest MinScore first.
	Tiers []TierBreak `json:"tiers"`
}

// DefaultScoringConfig returns the stock curve and tier table.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Bounds:      PointBounds{MinPoints: -1000, MaxPoints: 3000},
		CurveK:      0.0045,
		CurveCenter: 400,
		Tiers: []TierBreak{
			{MinScore: 780, Name: "Platinum", Band: "A+"},
			{MinScore: 740, Name: "Gold", Band: "A"},
			{MinScore: 700, Name: "Silver", Band: "B"},
			{MinScore: 660, Name: "Bronze", Band: "C"},
			{MinScore: 0, Name: "Foundation", Band: "D"},
		},
	}
}
