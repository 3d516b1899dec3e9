package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	compose := func() *ComposeRule {
		return &ComposeRule{CylFrom: []string{`(\d)cyl`}, DispFrom: []string{`(\d\.\d)`}}
	}

	tests := []struct {
		name    string
		rs      RuleSet
		wantErr string
	}{
		{
			name: "valid pattern and compose rules",
			rs: RuleSet{TextFields: NewFieldRules(
				NamedFieldRule{Name: "A", Rule: FieldRule{Patterns: []string{`a(\d)`}, Transform: TransformDigitsOnly}},
				NamedFieldRule{Name: "B", Rule: FieldRule{Compose: compose()}},
			)},
		},
		{
			name:    "both patterns and compose",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Patterns: []string{"x"}, Compose: compose()}})},
			wantErr: "both patterns and compose",
		},
		{
			name:    "neither",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A"})},
			wantErr: "needs patterns or compose",
		},
		{
			name:    "transform on compose",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Compose: compose(), Transform: TransformFirstGroup}})},
			wantErr: "transform is only valid on pattern rules",
		},
		{
			name:    "empty field name",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: " ", Rule: FieldRule{Patterns: []string{"x"}}})},
			wantErr: "empty field name",
		},
		{
			name: "compose pattern without group",
			rs: RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Compose: &ComposeRule{
				CylFrom: []string{`\dcyl`}, DispFrom: []string{`(\d\.\d)`},
			}}})},
			wantErr: "needs a capture group",
		},
		{
			name: "compose missing disp_from",
			rs: RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Compose: &ComposeRule{
				CylFrom: []string{`(\d)cyl`},
			}}})},
			wantErr: "DispFrom",
		},
		{
			name: "bad compose format",
			rs: RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Compose: &ComposeRule{
				CylFrom: []string{`(\d)cyl`}, DispFrom: []string{`(\d\.\d)`}, Format: "{cyl}-{size}",
			}}})},
			wantErr: "unknown placeholder",
		},
		{
			name:    "checkbox without option name",
			rs:      RuleSet{CheckboxRules: CheckboxRules{Rules: []CheckboxRule{{MatchAny: []string{"x"}}}}},
			wantErr: "checkbox_rules",
		},
		{
			name:    "checkbox without patterns",
			rs:      RuleSet{CheckboxRules: CheckboxRules{Rules: []CheckboxRule{{Field: "4DR"}}}},
			wantErr: "MatchAny",
		},
		{
			name:    "checkbox bad regex",
			rs:      RuleSet{CheckboxRules: CheckboxRules{Rules: []CheckboxRule{{Field: "4DR", MatchAny: []string{"[4"}}}}},
			wantErr: "bad pattern",
		},
		{
			name:    "lookahead is rejected at load",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Patterns: []string{`Claim(?=\s*#)\s*#\s*(\d+)`}}})},
			wantErr: "bad pattern",
		},
		{
			name:    "backreference is rejected at load",
			rs:      RuleSet{TextFields: NewFieldRules(NamedFieldRule{Name: "A", Rule: FieldRule{Patterns: []string{`(\w)\1`}}})},
			wantErr: "bad pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rs.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	rs := RuleSet{TextFields: NewFieldRules(
		NamedFieldRule{Name: "A", Rule: FieldRule{Patterns: []string{"("}}},
		NamedFieldRule{Name: "B"},
	)}
	err := rs.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `text_fields["A"]`)
		assert.Contains(t, err.Error(), `text_fields["B"]`)
	}
}

func TestCompilePattern_Flags(t *testing.T) {
	re, err := CompilePattern(`^make:\s*(\w+)$`)
	if assert.NoError(t, err) {
		assert.Equal(t, []string{"MAKE: CHEV", "CHEV"}, re.FindStringSubmatch("VIN: X\nMAKE: CHEV\nModel: Y"))
	}

	re, err = CompileComposePattern(`^(\d)\s*CYL`)
	if assert.NoError(t, err) {
		assert.True(t, re.MatchString("6 cyl"))
		assert.False(t, re.MatchString("engine\n6 cyl"))
	}
}

func TestCompilePattern_ClassesAreASCII(t *testing.T) {
	re, err := CompilePattern(`Owner:\s*(\w+)`)
	if assert.NoError(t, err) {
		assert.Equal(t, "N", re.FindStringSubmatch("Owner: Núñez")[1])
	}

	re, err = CompilePattern(`Owner:\s*([\p{L}\p{M}]+)`)
	if assert.NoError(t, err) {
		assert.Equal(t, "Núñez", re.FindStringSubmatch("Owner: Núñez")[1])
	}
}
