package scoring

import "github.com/shfed/creditcore/internal/domain"

// deltaFunc computes the point delta for one event kind from its meta and
// the matching rule. All funcs are pure.
type deltaFunc func(meta map[string]any, r domain.Rule) float64

// deltaFuncs is the strategy table dispatching delta computation by event
// kind. Kinds outside the table fall back to weights["default"].
var deltaFuncs = map[string]deltaFunc{
	domain.KeyAttendanceLogged: func(meta map[string]any, r domain.Rule) float64 {
		if metaBool(meta, "present") {
			return r.Weights["present"]
		}
		return r.Weights["absent"]
	},
	domain.KeyGradePosted: func(meta map[string]any, r domain.Rule) float64 {
		minPct := 70.0
		if v, ok := r.Thresholds["minPct"]; ok {
			minPct = v
		}
		if metaFloat(meta, "pct") >= minPct {
			return r.Weights["good"]
		}
		return r.Weights["poor"]
	},
	domain.KeyMicrocertEarned: func(_ map[string]any, r domain.Rule) float64 {
		return r.Weights["earned"]
	},
	domain.KeyAssignmentSubmitted: func(meta map[string]any, r domain.Rule) float64 {
		if metaBool(meta, "onTime") {
			return r.Weights["onTime"]
		}
		return r.Weights["late"]
	},
	domain.KeySocialAction: func(meta map[string]any, r domain.Rule) float64 {
		return r.Weights[metaString(meta, "action")]
	},
	domain.KeyPaymentPosted: func(meta map[string]any, r domain.Rule) float64 {
		if metaBool(meta, "onTime") {
			return r.Weights["onTime"]
		}
		return r.Weights["late"]
	},
	domain.KeyDisputeResolved: func(meta map[string]any, r domain.Rule) float64 {
		return r.Weights[metaString(meta, "outcome")]
	},
	domain.KeyDerogAdded: func(meta map[string]any, r domain.Rule) float64 {
		if w, ok := r.Weights[metaString(meta, "type")]; ok {
			return w
		}
		if w, ok := r.Weights["generic"]; ok {
			return w
		}
		return -30
	},
}

// meta accessors tolerate the loose typing of producer payloads: JSON
// numbers arrive as float64, but ints and bools show up too.

func metaBool(meta map[string]any, key string) bool {
	v, ok := meta[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func metaFloat(meta map[string]any, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
