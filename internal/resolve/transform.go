package resolve

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

// ApplyTransform shapes the winning match according to t and trims the
// result. Group-selecting transforms fall back to the candidate when the
// pattern has fewer groups than requested.
func ApplyTransform(m Match, t rules.ValueTransform) string {
	val := m.Candidate()

	switch t {
	case rules.TransformFirstGroup:
		val = groupOr(m, 1, val)
	case rules.TransformSecondGroup:
		val = groupOr(m, 2, val)
	case rules.TransformFirstGroupTitle:
		val = Titlecase(groupOr(m, 1, val))
	case rules.TransformSecondGroupTitle:
		val = Titlecase(groupOr(m, 2, val))
	case rules.TransformDigitsOnly:
		val = DigitsOnly(val)
	}

	return strings.TrimSpace(val)
}

func groupOr(m Match, i int, fallback string) string {
	if g, ok := m.Group(i); ok {
		return g
	}
	return fallback
}

// Titlecase upper-cases the first letter of every whitespace-delimited word
// and lower-cases the rest. Words are re-joined with single spaces.
func Titlecase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		first := w[:size]
		if r != utf8.RuneError || size != 1 {
			first = string(unicode.ToUpper(r))
		}
		words[i] = first + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// DigitsOnly drops every character that is not an ASCII digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
