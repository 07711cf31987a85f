package catalog

import "github.com/shfed/creditcore/internal/domain"

// DefaultDoc returns the stock rules document. Deployments normally override
// it via the rules API; this is the baseline the platform ships with.
func DefaultDoc() *domain.RulesDoc {
	return &domain.RulesDoc{
		Version: "2026-01",
		Bounds:  domain.PointBounds{MinPoints: -1000, MaxPoints: 3000},
		Rules: []domain.Rule{
			{
				Key:     domain.KeyAttendanceLogged,
				Weights: map[string]float64{"present": 5, "absent": -2},
				Cap:     &domain.Cap{PerWeek: 5},
			},
			{
				Key:        domain.KeyGradePosted,
				Weights:    map[string]float64{"good": 25, "poor": -10},
				Thresholds: map[string]float64{"minPct": 70},
			},
			{
				Key:     domain.KeyMicrocertEarned,
				Weights: map[string]float64{"earned": 40},
				Cap:     &domain.Cap{PerQuarter: 6},
			},
			{
				Key:     domain.KeyAssignmentSubmitted,
				Weights: map[string]float64{"onTime": 10, "late": 2},
				Cap:     &domain.Cap{PerWeek: 10},
			},
			{
				Key:     domain.KeySocialAction,
				Weights: map[string]float64{"mentor": 15, "endorse": 5, "flagged": -20},
				Cap:     &domain.Cap{PerWeek: 3, PerMonth: 10},
			},
			{
				Key:     domain.KeyPaymentPosted,
				Weights: map[string]float64{"onTime": 30, "late": -15},
			},
			{
				Key:     domain.KeyDisputeResolved,
				Weights: map[string]float64{"upheld": 20, "denied": -5, "withdrawn": 0},
			},
			{
				Key:     domain.KeyDerogAdded,
				Weights: map[string]float64{"collection": -60, "chargeoff": -90, "generic": -30},
			},
		},
	}
}
