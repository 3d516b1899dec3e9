package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
)

var validate = validator.New()

// Pattern flags. Field and checkbox patterns match case-insensitively with
// ^/$ anchoring at line boundaries; compose patterns are case-insensitive only.
const (
	flagsMultiline = "(?im)"
	flagsCompose   = "(?i)"
)

// CompilePattern compiles a field or checkbox pattern.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(flagsMultiline + pattern)
}

// CompileComposePattern compiles a compose cyl_from/disp_from pattern.
func CompileComposePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(flagsCompose + pattern)
}

// Validate checks the schema (struct tags), the tagged-union invariant of
// every text field rule, and that every pattern and format compiles. All
// problems are reported together as one configuration error.
func (rs *RuleSet) Validate() error {
	var problems []error

	if err := validate.Struct(rs.CheckboxRules); err != nil {
		problems = append(problems, fmt.Errorf("checkbox_rules: %w", err))
	}
	if err := validate.Struct(rs.PostProcessing); err != nil {
		problems = append(problems, fmt.Errorf("post_processing: %w", err))
	}

	for _, e := range rs.TextFields.All() {
		if err := validateFieldRule(e.Name, e.Rule); err != nil {
			problems = append(problems, err)
		}
	}

	for i, r := range rs.CheckboxRules.Rules {
		for _, p := range r.MatchAny {
			if _, err := CompilePattern(p); err != nil {
				problems = append(problems, fmt.Errorf("checkbox_rules.rules[%d] (%s): bad pattern %q: %w", i, r.Field, p, err))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return pdferrors.Configuration("invalid rule set", errors.Join(problems...))
}

func validateFieldRule(name string, rule FieldRule) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("text_fields: empty field name")
	}
	if err := validate.Struct(rule); err != nil {
		return fmt.Errorf("text_fields[%q]: %w", name, err)
	}

	hasPatterns := len(rule.Patterns) > 0
	switch {
	case rule.Compose != nil && hasPatterns:
		return fmt.Errorf("text_fields[%q]: rule has both patterns and compose", name)
	case rule.Compose != nil && rule.Transform != TransformNone:
		return fmt.Errorf("text_fields[%q]: transform is only valid on pattern rules", name)
	case rule.Compose == nil && !hasPatterns:
		return fmt.Errorf("text_fields[%q]: rule needs patterns or compose", name)
	}

	if rule.Compose == nil {
		for _, p := range rule.Patterns {
			if _, err := CompilePattern(p); err != nil {
				return fmt.Errorf("text_fields[%q]: bad pattern %q: %w", name, p, err)
			}
		}
		return nil
	}

	c := rule.Compose
	for _, group := range [][]string{c.CylFrom, c.DispFrom} {
		for _, p := range group {
			re, err := CompileComposePattern(p)
			if err != nil {
				return fmt.Errorf("text_fields[%q].compose: bad pattern %q: %w", name, p, err)
			}
			if re.NumSubexp() < 1 {
				return fmt.Errorf("text_fields[%q].compose: pattern %q needs a capture group", name, p)
			}
		}
	}
	if _, err := ParseFormat(c.FormatOrDefault()); err != nil {
		return fmt.Errorf("text_fields[%q].compose: %w", name, err)
	}
	return nil
}
