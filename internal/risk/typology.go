package risk

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Tagger evaluates typology tag rules against classified accounts.
// Rules are CEL expressions over the account's feature variables; they are
// compiled once at load time and evaluated for every account in a run.
type Tagger struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledTagRule
}

type compiledTagRule struct {
	rule    domain.TagRule
	program cel.Program
}

// NewTagger creates a tagger with an empty rule set.
func NewTagger() (*Tagger, error) {
	env, err := cel.NewEnv(
		cel.Variable("total_volume", cel.DoubleType),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("structuring_count", cel.IntType),
		cel.Variable("mule_score", cel.IntType),
		cel.Variable("round_trip_count", cel.IntType),
		cel.Variable("risk_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Tagger{env: env}, nil
}

// LoadRules compiles and installs the given rules, replacing any previously
// loaded set. Disabled rules are skipped. Rule order is preserved so tags
// come out in a stable order.
func (t *Tagger) LoadRules(rules []domain.TagRule) error {
	compiled := make([]*compiledTagRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := t.compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	t.mu.Lock()
	t.compiled = compiled
	t.mu.Unlock()

	return nil
}

// RuleCount returns the number of loaded rules.
func (t *Tagger) RuleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.compiled)
}

// Rules returns the currently loaded rules in evaluation order.
func (t *Tagger) Rules() []domain.TagRule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rules := make([]domain.TagRule, 0, len(t.compiled))
	for _, c := range t.compiled {
		rules = append(rules, c.rule)
	}
	return rules
}

// ValidateRule compiles the rule without installing it.
func (t *Tagger) ValidateRule(r domain.TagRule) error {
	_, err := t.compile(r)
	return err
}

// Tag evaluates every loaded rule for each classification and fills its
// Typologies slice in place. Non-fallback rules are evaluated first;
// fallback rules fire only for accounts with no non-fallback match.
// An expression that errors at runtime is treated as not matched.
func (t *Tagger) Tag(vectors []domain.FeatureVector, classifications []domain.Classification) {
	if len(vectors) != len(classifications) {
		return
	}

	t.mu.RLock()
	rules := t.compiled
	t.mu.RUnlock()

	for i := range classifications {
		c := &classifications[i]
		activation := map[string]any{
			"total_volume":      vectors[i].TotalVolume,
			"transaction_count": int64(vectors[i].TransactionCount),
			"structuring_count": int64(vectors[i].StructuringCount),
			"mule_score":        int64(vectors[i].MuleScore),
			"round_trip_count":  int64(vectors[i].RoundTripCount),
			"risk_score":        int64(c.RiskScore),
		}

		tags := make([]string, 0, 2)
		for _, r := range rules {
			if r.rule.Fallback {
				continue
			}
			if matches(r.program, activation) {
				tags = append(tags, r.rule.Tag)
			}
		}
		if len(tags) == 0 {
			for _, r := range rules {
				if !r.rule.Fallback {
					continue
				}
				if matches(r.program, activation) {
					tags = append(tags, r.rule.Tag)
				}
			}
		}

		c.Typologies = tags
	}
}

func matches(program cel.Program, activation map[string]any) bool {
	out, _, err := program.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func (t *Tagger) compile(r domain.TagRule) (*compiledTagRule, error) {
	ast, issues := t.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile tag rule %s: %w", r.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("tag rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
	}

	program, err := t.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for tag rule %s: %w", r.ID, err)
	}

	return &compiledTagRule{rule: r, program: program}, nil
}

// DefaultTagRules returns the built-in typology rule set. High-volume,
// structuring, mule and round-trip tags come straight from the extracted
// features; the anomalous-behavior tag is a fallback for accounts the model
// flags without a named pattern.
func DefaultTagRules() []domain.TagRule {
	return []domain.TagRule{
		{
			ID:          "high-volume",
			Name:        "High Volume",
			Description: "Aggregate transaction volume above 1M",
			Tag:         domain.TagHighVolume,
			Expression:  "total_volume > 1000000.0",
			Enabled:     true,
		},
		{
			ID:          "structuring",
			Name:        "Structuring",
			Description: "Repeated deposits just under the 50k reporting threshold",
			Tag:         domain.TagStructuring,
			Expression:  "structuring_count >= 2",
			Enabled:     true,
		},
		{
			ID:          "money-mule",
			Name:        "Money Mule",
			Description: "Rapid deposit-withdrawal pass-through pairs",
			Tag:         domain.TagMoneyMule,
			Expression:  "mule_score > 0",
			Enabled:     true,
		},
		{
			ID:          "round-trip",
			Name:        "Round Trip",
			Description: "Repeated flows to the same counterparty",
			Tag:         domain.TagRoundTrip,
			Expression:  "round_trip_count > 0",
			Enabled:     true,
		},
		{
			ID:          "anomalous-behavior",
			Name:        "Anomalous Behavior",
			Description: "High model risk with no named typology",
			Tag:         domain.TagAnomalous,
			Expression:  "risk_score > 75",
			Fallback:    true,
			Enabled:     true,
		},
	}
}
