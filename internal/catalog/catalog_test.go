package catalog

import (
	"testing"

	"github.com/shfed/creditcore/internal/domain"
)

func TestNewWithDefaults(t *testing.T) {
	c, err := New(DefaultDoc())
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}

	if c.Count() != 8 {
		t.Errorf("expected 8 rules, got %d", c.Count())
	}
	if c.Version() != "2026-01" {
		t.Errorf("unexpected version %q", c.Version())
	}
	if c.Bounds().MaxPoints != 3000 {
		t.Errorf("unexpected bounds %+v", c.Bounds())
	}
}

func TestLookup(t *testing.T) {
	c, _ := New(DefaultDoc())

	r := c.Lookup(domain.KeyAttendanceLogged)
	if r == nil {
		t.Fatal("expected attendance rule")
	}
	if r.Rule.Weights["present"] != 5 {
		t.Errorf("expected present weight 5, got %v", r.Rule.Weights["present"])
	}
	if r.Rule.Cap == nil || r.Rule.Cap.PerWeek != 5 {
		t.Errorf("expected perWeek cap 5, got %+v", r.Rule.Cap)
	}

	if c.Lookup("no.such.key") != nil {
		t.Error("expected nil for unknown key")
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	c, _ := New(DefaultDoc())

	doc := &domain.RulesDoc{
		Version: "2026-02",
		Bounds:  domain.PointBounds{MinPoints: -500, MaxPoints: 1500},
		Rules: []domain.Rule{
			{Key: domain.KeyGradePosted, Weights: map[string]float64{"good": 50, "poor": 0}},
		},
	}
	if err := c.Reload(doc); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if c.Count() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", c.Count())
	}
	if c.Lookup(domain.KeyAttendanceLogged) != nil {
		t.Error("old rule survived reload")
	}
	if c.Bounds().MaxPoints != 1500 {
		t.Errorf("bounds not swapped: %+v", c.Bounds())
	}
}

func TestReloadKeepsOldSetOnError(t *testing.T) {
	c, _ := New(DefaultDoc())

	bad := &domain.RulesDoc{
		Version: "broken",
		Rules: []domain.Rule{
			{Key: "custom.kind", Expression: "not valid cel !!!"},
		},
	}
	if err := c.Reload(bad); err == nil {
		t.Fatal("expected compile error")
	}

	if c.Count() != 8 {
		t.Errorf("previous rule set lost on failed reload, count=%d", c.Count())
	}
	if c.Version() != "2026-01" {
		t.Errorf("version changed on failed reload: %q", c.Version())
	}
}

func TestExpressionRules(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{
				Key:        "custom.kind",
				Weights:    map[string]float64{"base": 7},
				Expression: `double(meta.count) * weights["base"]`,
			},
		},
	}
	c, err := New(doc)
	if err != nil {
		t.Fatalf("failed to load expression rule: %v", err)
	}

	cr := c.Lookup("custom.kind")
	if cr == nil || cr.Program == nil {
		t.Fatal("expected compiled expression rule")
	}

	delta, err := cr.EvalExpression(map[string]any{"count": 3})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if delta != 21 {
		t.Errorf("expected delta 21, got %v", delta)
	}
}

func TestExpressionMustBeNumeric(t *testing.T) {
	doc := &domain.RulesDoc{
		Version: "test",
		Rules: []domain.Rule{
			{Key: "custom.kind", Expression: `"strings are not deltas"`},
		},
	}
	if _, err := New(doc); err == nil {
		t.Fatal("expected error for non-numeric expression")
	}
}
