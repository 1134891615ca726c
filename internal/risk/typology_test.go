package risk

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestTagger(t *testing.T) *Tagger {
	t.Helper()
	tagger, err := NewTagger()
	if err != nil {
		t.Fatalf("failed to create tagger: %v", err)
	}
	if err := tagger.LoadRules(DefaultTagRules()); err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	return tagger
}

func TestTagDefaultRules(t *testing.T) {
	tests := []struct {
		name   string
		vector domain.FeatureVector
		risk   int
		want   []string
	}{
		{
			name:   "high volume",
			vector: domain.FeatureVector{AccountID: "A", TotalVolume: 1500000},
			risk:   60,
			want:   []string{domain.TagHighVolume},
		},
		{
			name:   "volume at threshold does not tag",
			vector: domain.FeatureVector{AccountID: "A", TotalVolume: 1000000},
			risk:   60,
			want:   []string{},
		},
		{
			name:   "structuring needs two hits",
			vector: domain.FeatureVector{AccountID: "A", StructuringCount: 1},
			risk:   40,
			want:   []string{},
		},
		{
			name:   "structuring",
			vector: domain.FeatureVector{AccountID: "A", StructuringCount: 2},
			risk:   40,
			want:   []string{domain.TagStructuring},
		},
		{
			name:   "money mule",
			vector: domain.FeatureVector{AccountID: "A", MuleScore: 1},
			risk:   40,
			want:   []string{domain.TagMoneyMule},
		},
		{
			name:   "round trip",
			vector: domain.FeatureVector{AccountID: "A", RoundTripCount: 3},
			risk:   40,
			want:   []string{domain.TagRoundTrip},
		},
		{
			name: "multiple tags in rule order",
			vector: domain.FeatureVector{
				AccountID:        "A",
				TotalVolume:      2000000,
				StructuringCount: 4,
				MuleScore:        2,
				RoundTripCount:   1,
			},
			risk: 95,
			want: []string{
				domain.TagHighVolume,
				domain.TagStructuring,
				domain.TagMoneyMule,
				domain.TagRoundTrip,
			},
		},
		{
			name:   "anomalous fallback fires when nothing else matched",
			vector: domain.FeatureVector{AccountID: "A", TotalVolume: 500},
			risk:   80,
			want:   []string{domain.TagAnomalous},
		},
		{
			name:   "fallback suppressed by a named tag",
			vector: domain.FeatureVector{AccountID: "A", TotalVolume: 2000000},
			risk:   80,
			want:   []string{domain.TagHighVolume},
		},
		{
			name:   "fallback needs risk above 75",
			vector: domain.FeatureVector{AccountID: "A", TotalVolume: 500},
			risk:   75,
			want:   []string{},
		},
	}

	tagger := newTestTagger(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifications := []domain.Classification{
				{AccountID: tt.vector.AccountID, RiskScore: tt.risk},
			}
			tagger.Tag([]domain.FeatureVector{tt.vector}, classifications)
			if !reflect.DeepEqual(classifications[0].Typologies, tt.want) {
				t.Errorf("expected tags %v, got %v", tt.want, classifications[0].Typologies)
			}
		})
	}
}

func TestLoadRulesRejectsBadExpression(t *testing.T) {
	tagger, err := NewTagger()
	if err != nil {
		t.Fatalf("failed to create tagger: %v", err)
	}

	err = tagger.LoadRules([]domain.TagRule{
		{ID: "bad", Tag: "Bad", Expression: "total_volume >", Enabled: true},
	})
	if err == nil {
		t.Error("expected compile error for malformed expression")
	}

	err = tagger.LoadRules([]domain.TagRule{
		{ID: "not-bool", Tag: "Bad", Expression: "total_volume + 1.0", Enabled: true},
	})
	if err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestLoadRulesSkipsDisabled(t *testing.T) {
	tagger, err := NewTagger()
	if err != nil {
		t.Fatalf("failed to create tagger: %v", err)
	}

	err = tagger.LoadRules([]domain.TagRule{
		{ID: "on", Tag: "On", Expression: "true", Enabled: true},
		{ID: "off", Tag: "Off", Expression: "true", Enabled: false},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := tagger.RuleCount(); got != 1 {
		t.Errorf("expected 1 loaded rule, got %d", got)
	}
}

func TestTagRuntimeErrorTreatedAsNoMatch(t *testing.T) {
	tagger, err := NewTagger()
	if err != nil {
		t.Fatalf("failed to create tagger: %v", err)
	}
	// Division by a zero feature errors at runtime; the rule must simply
	// not match rather than poison the whole batch.
	err = tagger.LoadRules([]domain.TagRule{
		{ID: "div", Tag: "Div", Expression: "100 / mule_score > 1", Enabled: true},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	classifications := []domain.Classification{{AccountID: "A"}}
	tagger.Tag([]domain.FeatureVector{{AccountID: "A", MuleScore: 0}}, classifications)
	if len(classifications[0].Typologies) != 0 {
		t.Errorf("expected no tags, got %v", classifications[0].Typologies)
	}
}
