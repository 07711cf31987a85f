package scoring

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
)

var testBase = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, doc *domain.RulesDoc, now time.Time) *Engine {
	t.Helper()
	if doc == nil {
		doc = catalog.DefaultDoc()
	}
	cat, err := catalog.New(doc)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	return NewEngine(cat, domain.DefaultScoringConfig(), WithClock(func() time.Time { return now }))
}

func TestComputeScoreEmptyInput(t *testing.T) {
	e := testEngine(t, nil, testBase)

	res := e.ComputeScore(nil)
	if res.Points != 0 {
		t.Errorf("expected 0 points, got %v", res.Points)
	}
	if len(res.Log) != 0 {
		t.Errorf("expected empty log, got %d entries", len(res.Log))
	}
	if res.Score < MinScore || res.Score > MaxScore {
		t.Errorf("score %d out of bounds", res.Score)
	}
}

func TestComputeScoreDropsInvalidEvents(t *testing.T) {
	e := testEngine(t, nil, testBase)

	events := []domain.Event{
		{Key: "totally.unknown", TS: testBase.UnixMilli(), Meta: map[string]any{"present": true}},
		{Key: domain.KeyAttendanceLogged, TS: testBase.UnixMilli(), Meta: map[string]any{"present": true}},
	}
	res := e.ComputeScore(events)

	if len(res.Log) != 1 {
		t.Fatalf("expected 1 trace entry, got %d", len(res.Log))
	}
	if res.Points != 5 {
		t.Errorf("expected 5 points, got %v", res.Points)
	}
}

func TestComputeScoreDeterminism(t *testing.T) {
	e := testEngine(t, nil, testBase)

	events := make([]domain.Event, 0, 50)
	for i := 0; i < 50; i++ {
		events = append(events, domain.Event{
			Key:    domain.KeyAssignmentSubmitted,
			TS:     testBase.Add(-time.Duration(i) * time.Hour).UnixMilli(),
			Meta:   map[string]any{"onTime": i%2 == 0},
			TaskID: "hw",
		})
	}

	a := e.ComputeScore(events)
	b := e.ComputeScore(events)

	if a.Points != b.Points || a.Score != b.Score || a.Tier != b.Tier {
		t.Errorf("non-deterministic result: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(a.Log, b.Log) {
		t.Error("trace differs between identical calls")
	}
}

func TestComputeScoreResortsShuffledInput(t *testing.T) {
	e := testEngine(t, nil, testBase)

	events := make([]domain.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, domain.Event{
			Key:    domain.KeyPaymentPosted,
			TS:     testBase.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Meta:   map[string]any{"onTime": true},
			TaskID: "pay",
		})
	}
	want := e.ComputeScore(events)

	shuffled := make([]domain.Event, len(events))
	copy(shuffled, events)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	got := e.ComputeScore(shuffled)

	if got.Points != want.Points || got.Score != want.Score {
		t.Errorf("shuffled input changed outcome: %v vs %v", got.Points, want.Points)
	}
	if !reflect.DeepEqual(got.Log, want.Log) {
		t.Error("shuffled input changed trace order after re-sort")
	}
}

func TestComputeScoreBoundsUnderExtremeInput(t *testing.T) {
	e := testEngine(t, nil, testBase)

	events := make([]domain.Event, 0, 10000)
	for i := 0; i < 10000; i++ {
		events = append(events, domain.Event{
			Key:  domain.KeyPaymentPosted,
			TS:   testBase.Add(time.Duration(i) * time.Second).UnixMilli(),
			Meta: map[string]any{"onTime": true},
		})
	}
	res := e.ComputeScore(events)

	if res.Points != 3000 {
		t.Errorf("expected points clamped to 3000, got %v", res.Points)
	}
	if res.Score < MinScore || res.Score > MaxScore {
		t.Errorf("score %d out of [300,850]", res.Score)
	}

	// All negative.
	for i := range events {
		events[i].Meta = map[string]any{"onTime": false}
	}
	res = e.ComputeScore(events)
	if res.Points != -1000 {
		t.Errorf("expected points clamped to -1000, got %v", res.Points)
	}
	if res.Score < MinScore || res.Score > MaxScore {
		t.Errorf("score %d out of [300,850]", res.Score)
	}
}

func TestCapEnforcementPerWeek(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Bounds:  domain.PointBounds{MinPoints: -1000, MaxPoints: 3000},
		Rules: []domain.Rule{
			{
				Key:     domain.KeyAttendanceLogged,
				Weights: map[string]float64{"present": 5, "absent": -2},
				Cap:     &domain.Cap{PerWeek: 5},
			},
		},
	}
	start := testBase
	e := testEngine(t, doc, start.Add(time.Hour))

	events := make([]domain.Event, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, domain.Event{
			Key:    domain.KeyAttendanceLogged,
			TS:     start.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Meta:   map[string]any{"present": true},
			TaskID: "att",
		})
	}
	res := e.ComputeScore(events)

	if res.Points != 25 {
		t.Errorf("expected 25 points (5 counted, 5 capped), got %v", res.Points)
	}
	if len(res.Log) != 10 {
		t.Fatalf("expected 10 trace entries, got %d", len(res.Log))
	}

	ok, capped := 0, 0
	for _, le := range res.Log {
		switch le.Reason {
		case domain.ReasonOK:
			ok++
		case domain.ReasonCapWeek:
			capped++
			if le.Delta != 0 {
				t.Errorf("capped entry carries delta %v", le.Delta)
			}
		default:
			t.Errorf("unexpected reason %q", le.Reason)
		}
	}
	if ok != 5 || capped != 5 {
		t.Errorf("expected 5 ok / 5 capped, got %d / %d", ok, capped)
	}
	if res.Score != 386 {
		t.Errorf("expected score 386 for 25 points, got %d", res.Score)
	}
}

func TestCapDoesNotBindAcrossTasks(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{
				Key:     domain.KeyAttendanceLogged,
				Weights: map[string]float64{"present": 5, "absent": -2},
				Cap:     &domain.Cap{PerWeek: 1},
			},
		},
	}
	e := testEngine(t, doc, testBase.Add(time.Hour))

	events := []domain.Event{
		{Key: domain.KeyAttendanceLogged, TS: testBase.UnixMilli(), Meta: map[string]any{"present": true}, TaskID: "math"},
		{Key: domain.KeyAttendanceLogged, TS: testBase.Add(time.Minute).UnixMilli(), Meta: map[string]any{"present": true}, TaskID: "science"},
	}
	res := e.ComputeScore(events)

	if res.Points != 10 {
		t.Errorf("distinct tasks must not share a cap bucket: got %v points", res.Points)
	}
}

func TestEventsOutsideWindowDoNotCount(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{
				Key:     domain.KeyAttendanceLogged,
				Weights: map[string]float64{"present": 5, "absent": -2},
				Cap:     &domain.Cap{PerWeek: 1},
			},
		},
	}
	now := testBase
	e := testEngine(t, doc, now)

	events := []domain.Event{
		// Ten days ago: outside the trailing week, so it never occupies the cap.
		{Key: domain.KeyAttendanceLogged, TS: now.Add(-10 * 24 * time.Hour).UnixMilli(), Meta: map[string]any{"present": true}, TaskID: "att"},
		{Key: domain.KeyAttendanceLogged, TS: now.Add(-time.Hour).UnixMilli(), Meta: map[string]any{"present": true}, TaskID: "att"},
	}
	res := e.ComputeScore(events)

	if res.Points != 10 {
		t.Errorf("expected both events to count, got %v points", res.Points)
	}
	for _, le := range res.Log {
		if le.Reason != domain.ReasonOK {
			t.Errorf("unexpected reason %q", le.Reason)
		}
	}
}

func TestNoRuleEventIsSkipped(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{Key: domain.KeyPaymentPosted, Weights: map[string]float64{"onTime": 30, "late": -15}},
		},
	}
	e := testEngine(t, doc, testBase)

	events := []domain.Event{
		// Schema-valid but no rule in this document.
		{Key: domain.KeyGradePosted, TS: testBase.UnixMilli(), Meta: map[string]any{"pct": 95.0}},
		{Key: domain.KeyPaymentPosted, TS: testBase.UnixMilli(), Meta: map[string]any{"onTime": true}},
	}
	res := e.ComputeScore(events)

	if len(res.Log) != 1 {
		t.Errorf("expected rule-less event skipped from trace, got %d entries", len(res.Log))
	}
	if res.Points != 30 {
		t.Errorf("expected 30 points, got %v", res.Points)
	}
}

func TestExpressionRules(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{
				// A kind outside the static schema, admitted by its rule.
				Key:        "guild.quest.completed",
				Weights:    map[string]float64{"base": 100},
				Expression: `weights["base"] * 2.0`,
			},
			{
				// Expression overrides the built-in social.action strategy.
				Key:        domain.KeySocialAction,
				Weights:    map[string]float64{"base": 8, "mentor": 15},
				Expression: `weights["base"] + 1.0`,
			},
			{
				// Document kind without an expression falls to the default weight.
				Key:     "guild.dues.paid",
				Weights: map[string]float64{"default": 7},
			},
			{
				Key:        "guild.raid.joined",
				Weights:    map[string]float64{},
				Expression: `int(meta["n"])`,
			},
		},
	}
	e := testEngine(t, doc, testBase)
	ts := testBase.UnixMilli()

	t.Run("ExpressionOnDocumentKey", func(t *testing.T) {
		res := e.ComputeScore([]domain.Event{{Key: "guild.quest.completed", TS: ts}})
		if len(res.Log) != 1 {
			t.Fatalf("expected the document-declared kind to be scored, got %d trace entries", len(res.Log))
		}
		if res.Points != 200 {
			t.Errorf("expected 200 points from the expression, got %v", res.Points)
		}
	})

	t.Run("ExpressionOverridesBuiltin", func(t *testing.T) {
		res := e.ComputeScore([]domain.Event{{Key: domain.KeySocialAction, TS: ts, Meta: map[string]any{"action": "mentor"}}})
		if res.Points != 9 {
			t.Errorf("expected the expression to override the action weight, got %v points", res.Points)
		}
	})

	t.Run("DefaultWeightOnDocumentKey", func(t *testing.T) {
		res := e.ComputeScore([]domain.Event{{Key: "guild.dues.paid", TS: ts}})
		if res.Points != 7 {
			t.Errorf("expected the default weight, got %v points", res.Points)
		}
	})

	t.Run("EvalErrorDegradesToZero", func(t *testing.T) {
		// meta["n"] is absent, so evaluation errors at runtime.
		res := e.ComputeScore([]domain.Event{{Key: "guild.raid.joined", TS: ts}})
		if len(res.Log) != 1 {
			t.Fatalf("expected the event traced, got %d entries", len(res.Log))
		}
		if res.Points != 0 {
			t.Errorf("expected zero delta on eval error, got %v points", res.Points)
		}
	})

	t.Run("UndeclaredKindStillDropped", func(t *testing.T) {
		res := e.ComputeScore([]domain.Event{{Key: "guild.unknown", TS: ts}})
		if len(res.Log) != 0 {
			t.Errorf("expected kinds without schema or rule dropped, got %d entries", len(res.Log))
		}
	})
}

func TestZeroTimestampFilledFromClock(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{
				Key:     domain.KeyAttendanceLogged,
				Weights: map[string]float64{"present": 5, "absent": -2},
				Cap:     &domain.Cap{PerWeek: 5},
			},
		},
	}
	e := testEngine(t, doc, testBase)

	// Zero timestamps take the engine clock, so they land inside the cap
	// window instead of sorting to the epoch and escaping it.
	events := make([]domain.Event, 6)
	for i := range events {
		events[i] = domain.Event{
			Key:    domain.KeyAttendanceLogged,
			Meta:   map[string]any{"present": true},
			TaskID: "att",
		}
	}
	res := e.ComputeScore(events)

	if res.Points != 25 {
		t.Errorf("expected 25 points (5 counted, 1 capped), got %v", res.Points)
	}
	if len(res.Log) != 6 {
		t.Fatalf("expected 6 trace entries, got %d", len(res.Log))
	}
	if res.Log[5].Reason != domain.ReasonCapWeek {
		t.Errorf("expected the sixth event capped, got reason %q", res.Log[5].Reason)
	}
	for _, le := range res.Log {
		if le.TS != testBase.UnixMilli() {
			t.Errorf("expected timestamp filled from the clock, got %d", le.TS)
		}
	}
}

func TestDeltaStrategies(t *testing.T) {
	e := testEngine(t, nil, testBase)
	ts := testBase.UnixMilli()

	cases := []struct {
		name   string
		event  domain.Event
		points float64
	}{
		{"attendance present", domain.Event{Key: domain.KeyAttendanceLogged, TS: ts, Meta: map[string]any{"present": true}}, 5},
		{"attendance absent", domain.Event{Key: domain.KeyAttendanceLogged, TS: ts, Meta: map[string]any{"present": false}}, -2},
		{"grade good", domain.Event{Key: domain.KeyGradePosted, TS: ts, Meta: map[string]any{"pct": 85.0}}, 25},
		{"grade poor", domain.Event{Key: domain.KeyGradePosted, TS: ts, Meta: map[string]any{"pct": 40.0}}, -10},
		{"grade at threshold", domain.Event{Key: domain.KeyGradePosted, TS: ts, Meta: map[string]any{"pct": 70.0}}, 25},
		{"microcert", domain.Event{Key: domain.KeyMicrocertEarned, TS: ts}, 40},
		{"assignment on time", domain.Event{Key: domain.KeyAssignmentSubmitted, TS: ts, Meta: map[string]any{"onTime": true}}, 10},
		{"assignment late", domain.Event{Key: domain.KeyAssignmentSubmitted, TS: ts, Meta: map[string]any{"onTime": false}}, 2},
		{"social mentor", domain.Event{Key: domain.KeySocialAction, TS: ts, Meta: map[string]any{"action": "mentor"}}, 15},
		{"social unknown action", domain.Event{Key: domain.KeySocialAction, TS: ts, Meta: map[string]any{"action": "wave"}}, 0},
		{"payment on time", domain.Event{Key: domain.KeyPaymentPosted, TS: ts, Meta: map[string]any{"onTime": true}}, 30},
		{"payment late", domain.Event{Key: domain.KeyPaymentPosted, TS: ts, Meta: map[string]any{"onTime": false}}, -15},
		{"dispute upheld", domain.Event{Key: domain.KeyDisputeResolved, TS: ts, Meta: map[string]any{"outcome": "upheld"}}, 20},
		{"derog chargeoff", domain.Event{Key: domain.KeyDerogAdded, TS: ts, Meta: map[string]any{"type": "chargeoff"}}, -90},
		{"derog unknown type", domain.Event{Key: domain.KeyDerogAdded, TS: ts, Meta: map[string]any{"type": "mystery"}}, -30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.ComputeScore([]domain.Event{tc.event})
			if res.Points != tc.points {
				t.Errorf("expected %v points, got %v", tc.points, res.Points)
			}
		})
	}
}
