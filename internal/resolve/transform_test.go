package resolve

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

func mustMatch(t *testing.T, pattern, text string) Match {
	t.Helper()
	m, ok := MatchFirst(text, []*regexp.Regexp{regexp.MustCompile(pattern)})
	if !ok {
		t.Fatalf("pattern %q did not match %q", pattern, text)
	}
	return m
}

func TestMatchFirst_Candidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		want    string
		groups  int
	}{
		{name: "no groups uses whole match", pattern: `\d{3}-\d{4}`, text: "call 555-0199 now", want: "555-0199", groups: 0},
		{name: "first group wins", pattern: `Year:\s*(\d{4})\s*(\w+)`, text: "Year: 2019 CHEV", want: "2019", groups: 2},
		{name: "unmatched optional group", pattern: `Unit(?:\s+(\d+))?`, text: "Unit", want: "", groups: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMatch(t, tt.pattern, tt.text)
			assert.Equal(t, tt.want, m.Candidate())
			assert.Equal(t, tt.groups, m.NumGroups())
		})
	}
}

func TestMatchFirst_NoMatch(t *testing.T) {
	_, ok := MatchFirst("abc", []*regexp.Regexp{regexp.MustCompile(`\d`), regexp.MustCompile(`x`)})
	assert.False(t, ok)

	_, ok = MatchFirst("abc", nil)
	assert.False(t, ok)
}

func TestApplyTransform(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		text      string
		transform rules.ValueTransform
		want      string
	}{
		{name: "identity trims", pattern: `Name:(.*)`, text: "Name:  Jane Doe  ", transform: rules.TransformNone, want: "Jane Doe"},
		{name: "first group", pattern: `(\w+)\s+(\w+)`, text: "2019 CHEV", transform: rules.TransformFirstGroup, want: "2019"},
		{name: "second group", pattern: `(\w+)\s+(\w+)`, text: "2019 CHEV", transform: rules.TransformSecondGroup, want: "CHEV"},
		{name: "second group missing falls back to candidate", pattern: `Make:\s*(\w+)`, text: "Make: FORD", transform: rules.TransformSecondGroup, want: "FORD"},
		{name: "first group title", pattern: `Owner:\s*(.+)`, text: "Owner: mARY o'NEIL", transform: rules.TransformFirstGroupTitle, want: "Mary O'neil"},
		{name: "second group title", pattern: `(\d{4})\s+(.+)`, text: "2019 CHEV MALIBU", transform: rules.TransformSecondGroupTitle, want: "Chev Malibu"},
		{name: "second group title missing uses candidate", pattern: `Color:\s*(\w+)`, text: "Color: BLUE", transform: rules.TransformSecondGroupTitle, want: "Blue"},
		{name: "digits only", pattern: `Phone:\s*(.+)`, text: "Phone: (425) 555-0199", transform: rules.TransformDigitsOnly, want: "4255550199"},
		{name: "digits only without groups", pattern: `\(\d{3}\)\s*\d{3}-\d{4}`, text: "x (425) 555-0199", transform: rules.TransformDigitsOnly, want: "4255550199"},
		{name: "digits only may empty value", pattern: `Phone:\s*(.+)`, text: "Phone: none", transform: rules.TransformDigitsOnly, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMatch(t, tt.pattern, tt.text)
			assert.Equal(t, tt.want, ApplyTransform(m, tt.transform))
		})
	}
}

func TestTitlecase(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"JOHN Q PUBLIC":        "John Q Public",
		"  spaced   out  ":     "Spaced Out",
		"élan vital":           "Élan Vital",
		"mcdonald-smith jr.":   "Mcdonald-smith Jr.",
		"already Title Case":   "Already Title Case",
		"tab\tseparated\nline": "Tab Separated Line",
		"\xffBAD byte":         "\xffbad Byte",
	}
	for in, want := range tests {
		assert.Equal(t, want, Titlecase(in), "Titlecase(%q)", in)
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "980521234", DigitsOnly("98052-1234"))
	assert.Equal(t, "", DigitsOnly("n/a"))
}
