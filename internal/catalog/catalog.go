// Package catalog provides the declarative rule catalog: one rule per event
// key, loaded from a versioned document and hot-reloadable without touching
// the scoring engine.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/shfed/creditcore/internal/domain"
)

// Catalog holds the active rule set. Lookup is read-only during a scoring
// call; Reload swaps the whole set atomically.
type Catalog struct {
	mu      sync.RWMutex
	version string
	bounds  domain.PointBounds
	rules   map[string]*CompiledRule
	env     *cel.Env
}

// CompiledRule pairs a rule with its pre-compiled CEL program, when the rule
// declares an expression.
type CompiledRule struct {
	Rule    domain.Rule
	Program cel.Program // nil unless Rule.Expression is set
}

// New creates a catalog loaded with the given document.
func New(doc *domain.RulesDoc) (*Catalog, error) {
	env, err := cel.NewEnv(
		cel.Variable("meta", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("weights", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &Catalog{env: env}
	if err := c.Reload(doc); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload compiles and swaps in a new rules document. On error the previous
// set stays active.
func (c *Catalog) Reload(doc *domain.RulesDoc) error {
	if doc == nil {
		return fmt.Errorf("rules document is required")
	}

	next := make(map[string]*CompiledRule, len(doc.Rules))
	for _, r := range doc.Rules {
		if r.Key == "" {
			return fmt.Errorf("rule with empty key in document version %s", doc.Version)
		}
		if _, dup := next[r.Key]; dup {
			return fmt.Errorf("duplicate rule for key %s", r.Key)
		}

		compiled := &CompiledRule{Rule: r}
		if r.Expression != "" {
			prog, err := c.compile(r)
			if err != nil {
				return err
			}
			compiled.Program = prog
		}
		next[r.Key] = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = doc.Version
	c.bounds = doc.Bounds
	c.rules = next
	return nil
}

func (c *Catalog) compile(r domain.Rule) (cel.Program, error) {
	ast, issues := c.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.Key, issues.Err())
	}

	out := ast.OutputType()
	if out != cel.DoubleType && out != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return int or double, got %s", r.Key, out)
	}

	prog, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.Key, err)
	}
	return prog, nil
}

// Lookup returns the compiled rule for an event key, or nil if no rule
// matches. A nil result is a zero-effect event, not an error.
func (c *Catalog) Lookup(key string) *CompiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules[key]
}

// Bounds returns the point clamp bounds declared by the active document.
func (c *Catalog) Bounds() domain.PointBounds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bounds
}

// Version returns the active document version.
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Rules returns the active rules, for the rules API.
func (c *Catalog) Rules() []domain.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Rule, 0, len(c.rules))
	for _, cr := range c.rules {
		out = append(out, cr.Rule)
	}
	return out
}

// Count returns the number of loaded rules.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// EvalExpression runs a rule's CEL program against the event meta and the
// rule weights, returning the numeric delta.
func (cr *CompiledRule) EvalExpression(meta map[string]any) (float64, error) {
	if cr.Program == nil {
		return 0, fmt.Errorf("rule %s has no expression", cr.Rule.Key)
	}

	activation := map[string]any{
		"meta":    meta,
		"weights": cr.Rule.Weights,
	}
	out, _, err := cr.Program.Eval(activation)
	if err != nil {
		return 0, fmt.Errorf("rule %s: %w", cr.Rule.Key, err)
	}
	return toFloat(out), nil
}

func toFloat(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}
