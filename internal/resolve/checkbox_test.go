package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

func doorRules(prefer *bool) rules.CheckboxRules {
	return rules.CheckboxRules{
		Rules: []rules.CheckboxRule{
			{Field: "4DR", MatchAny: []string{"4-Door", "4 Dr"}},
			{Field: "2DR", MatchAny: []string{"2-Door"}},
		},
		Prefer4DrOver2Dr: prefer,
	}
}

func TestResolveCheckboxes_DoorTieBreak(t *testing.T) {
	text := "Body: 4-Door Sedan (also listed as 2-Door)"

	tests := []struct {
		name   string
		prefer *bool
		want   CheckboxSet
	}{
		{name: "prefer four door", prefer: rules.BoolPtr(true), want: CheckboxSet{"4DR"}},
		{name: "unset keeps both", prefer: nil, want: CheckboxSet{"2DR", "4DR"}},
		{name: "tie-break disabled", prefer: rules.BoolPtr(false), want: CheckboxSet{"2DR", "4DR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := compile(t, &rules.RuleSet{CheckboxRules: doorRules(tt.prefer)})
			assert.Equal(t, tt.want, e.ResolveCheckboxes(text))
		})
	}
}

func TestResolveCheckboxes_Independent(t *testing.T) {
	rs := &rules.RuleSet{CheckboxRules: rules.CheckboxRules{
		Rules: []rules.CheckboxRule{
			{Field: "Sedan", MatchAny: []string{`\bsedan\b`}},
			{Field: "AWD", MatchAny: []string{`\bAWD\b`, `all wheel drive`}},
			{Field: "Convertible", MatchAny: []string{`convertible`}},
			{Field: "2DR", MatchAny: []string{"2-Door"}},
		},
	}}
	e := compile(t, rs)

	got := e.ResolveCheckboxes("SEDAN\nAll Wheel Drive\n2-Door")
	assert.Equal(t, CheckboxSet{"2DR", "AWD", "Sedan"}, got)
	assert.True(t, got.Contains("AWD"))
	assert.False(t, got.Contains("Convertible"))
}

func TestResolveCheckboxes_Deterministic(t *testing.T) {
	e := compile(t, &rules.RuleSet{CheckboxRules: doorRules(nil)})
	first := e.ResolveCheckboxes("4 Dr hatch")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, e.ResolveCheckboxes("4 Dr hatch"))
	}
	assert.Equal(t, CheckboxSet{"4DR"}, first)
}

func TestResolveCheckboxes_NoneOn(t *testing.T) {
	e := compile(t, &rules.RuleSet{CheckboxRules: doorRules(nil)})
	assert.Empty(t, e.ResolveCheckboxes("no body style listed"))
}
