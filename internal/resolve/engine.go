// Package resolve turns estimate text into form values: text fields through
// ordered pattern rules and compose rules, post-processing normalization,
// and checkbox options through independent match rules.
package resolve

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/phuslu/log"

	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
	"github.com/a3tai/claim-form-filler/internal/rules"
)

// FieldMap maps form text-field names to resolved values.
type FieldMap map[string]string

// Keys returns the field names sorted lexicographically.
func (f FieldMap) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (f FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// CheckboxSet is the sorted list of checkbox options that are on.
type CheckboxSet []string

// Contains reports whether option is on.
func (c CheckboxSet) Contains(option string) bool {
	i := sort.SearchStrings(c, option)
	return i < len(c) && c[i] == option
}

// Resolution is everything resolved from one document's text.
type Resolution struct {
	Fields     FieldMap    `json:"resolved_text_fields"`
	Checkboxes CheckboxSet `json:"resolved_checkboxes_on"`
}

type compiledField struct {
	name      string
	patterns  []*regexp.Regexp
	transform rules.ValueTransform
	compose   *compiledCompose
}

type compiledCheckbox struct {
	option   string
	patterns []*regexp.Regexp
}

// Engine holds a compiled rule set. It is read-only after Compile and may be
// shared by concurrent document runs.
type Engine struct {
	fields      []compiledField
	checkboxes  []compiledCheckbox
	prefer4Door bool
	post        rules.PostProcessing
	logger      *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Compile prepares rs for repeated evaluation. rs is expected to have passed
// Validate; a pattern that still fails to compile is a configuration error.
func Compile(rs *rules.RuleSet, opts ...Option) (*Engine, error) {
	if rs == nil {
		return nil, pdferrors.Configuration("rule set is nil", nil)
	}

	e := &Engine{
		prefer4Door: rs.CheckboxRules.PreferFourDoor(),
		post:        rs.PostProcessing,
		logger:      &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, nr := range rs.TextFields.All() {
		cf := compiledField{name: nr.Name, transform: nr.Rule.Transform}
		if nr.Rule.Kind() == rules.RuleKindCompose {
			c, err := compileCompose(nr.Rule.Compose)
			if err != nil {
				return nil, pdferrors.Configuration("cannot compile compose rule", err).WithField(nr.Name)
			}
			cf.compose = c
		} else {
			for _, p := range nr.Rule.Patterns {
				re, err := rules.CompilePattern(p)
				if err != nil {
					return nil, pdferrors.Configuration(fmt.Sprintf("cannot compile pattern %q", p), err).WithField(nr.Name)
				}
				cf.patterns = append(cf.patterns, re)
			}
		}
		e.fields = append(e.fields, cf)
	}

	for _, r := range rs.CheckboxRules.Rules {
		cb := compiledCheckbox{option: r.Field}
		for _, p := range r.MatchAny {
			re, err := rules.CompilePattern(p)
			if err != nil {
				return nil, pdferrors.Configuration(fmt.Sprintf("cannot compile pattern %q", p), err).WithField(r.Field)
			}
			cb.patterns = append(cb.patterns, re)
		}
		e.checkboxes = append(e.checkboxes, cb)
	}

	return e, nil
}

// ExtractFields evaluates every text field rule in rule-set order. A field
// is present in the result only when its rule produced a non-empty value;
// no rule sees another rule's output.
func (e *Engine) ExtractFields(text string) FieldMap {
	out := make(FieldMap, len(e.fields))
	for _, f := range e.fields {
		var val string
		if f.compose != nil {
			v, ok := f.compose.compose(text)
			if !ok {
				continue
			}
			val = strings.TrimSpace(v)
		} else {
			m, ok := MatchFirst(text, f.patterns)
			if !ok {
				continue
			}
			val = ApplyTransform(m, f.transform)
		}
		if val == "" {
			continue
		}
		out[f.name] = val
	}
	return out
}

// ResolveCheckboxes returns the options whose rules match text, after the
// 4DR-over-2DR tie-break, sorted lexicographically.
func (e *Engine) ResolveCheckboxes(text string) CheckboxSet {
	on := make(map[string]bool)
	for _, cb := range e.checkboxes {
		if cb.option == "" {
			continue
		}
		if anyMatch(text, cb.patterns) {
			on[cb.option] = true
		}
	}
	return finishCheckboxes(on, e.prefer4Door)
}

// Resolve runs extraction, post-processing and checkbox resolution.
func (e *Engine) Resolve(text string) *Resolution {
	fields := PostProcess(e.ExtractFields(text), e.post)
	boxes := e.ResolveCheckboxes(text)

	e.logger.Debug().
		Int("rules", len(e.fields)).
		Int("fields_resolved", len(fields)).
		Strs("checkboxes_on", boxes).
		Msg("resolved estimate text")

	return &Resolution{Fields: fields, Checkboxes: boxes}
}

// FieldNames returns the text field names in rule-set order.
func (e *Engine) FieldNames() []string {
	names := make([]string, len(e.fields))
	for i, f := range e.fields {
		names[i] = f.name
	}
	return names
}
