package scoring

import (
	"math"

	"github.com/shfed/creditcore/internal/domain"
)

// Score range of the normalized output.
const (
	MinScore = 300
	MaxScore = 850
)

// pointsToScore maps clamped points onto [300, 850] through a logistic
// curve. The S-curve gives diminishing returns at the extremes and keeps the
// score bounded without a second clamp.
func pointsToScore(points float64, cfg domain.ScoringConfig) int {
	k := cfg.CurveK
	if k == 0 {
		k = 0.0045
	}
	center := cfg.CurveCenter
	if center == 0 {
		center = 400
	}

	s := 1 / (1 + math.Exp(-k*(points-center)))
	return int(math.Round(MinScore + (MaxScore-MinScore)*s))
}

// tierForScore walks the ordered breakpoint table, highest MinScore first.
// The table is configuration; the fallback covers an empty table.
func tierForScore(score int, breaks []domain.TierBreak) domain.Tier {
	for _, b := range breaks {
		if score >= b.MinScore {
			return domain.Tier{Name: b.Name, Band: b.Band}
		}
	}
	return domain.Tier{Name: "Foundation", Band: "D"}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
