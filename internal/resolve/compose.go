package resolve

import (
	"regexp"
	"strings"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

// DisplacementSuffix is appended to displacement figures that lack a unit.
const DisplacementSuffix = "L"

type compiledCompose struct {
	cylFrom   []*regexp.Regexp
	dispFrom  []*regexp.Regexp
	normalize map[string]string
	assume    string
	format    rules.ComposeFormat
}

func compileCompose(c *rules.ComposeRule) (*compiledCompose, error) {
	out := &compiledCompose{
		normalize: c.Normalize,
		assume:    c.DefaultCylinders(),
	}
	for _, p := range c.CylFrom {
		re, err := rules.CompileComposePattern(p)
		if err != nil {
			return nil, err
		}
		out.cylFrom = append(out.cylFrom, re)
	}
	for _, p := range c.DispFrom {
		re, err := rules.CompileComposePattern(p)
		if err != nil {
			return nil, err
		}
		out.dispFrom = append(out.dispFrom, re)
	}
	format, err := rules.ParseFormat(c.FormatOrDefault())
	if err != nil {
		return nil, err
	}
	out.format = format
	return out, nil
}

// compose builds the derived value, or reports false when either fragment
// is missing. A partial composite is never produced.
func (c *compiledCompose) compose(text string) (string, bool) {
	var cyl, disp string

	if m, ok := MatchFirst(text, c.cylFrom); ok {
		cyl, _ = m.Group(1)
		if n, ok := c.normalize[cyl]; ok {
			cyl = n
		}
	}

	if m, ok := MatchFirst(text, c.dispFrom); ok {
		disp, _ = m.Group(1)
		if disp != "" && !strings.HasSuffix(strings.ToLower(disp), strings.ToLower(DisplacementSuffix)) {
			disp += DisplacementSuffix
		}
	}

	if disp != "" && cyl == "" && c.assume != "" {
		cyl = c.assume
	}

	if cyl == "" || disp == "" {
		return "", false
	}
	return c.format.Render(cyl, disp), true
}

// Compose evaluates a compose rule against text.
func Compose(text string, rule *rules.ComposeRule) (string, bool, error) {
	c, err := compileCompose(rule)
	if err != nil {
		return "", false, err
	}
	v, ok := c.compose(text)
	return v, ok, nil
}
