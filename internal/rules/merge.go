package rules

import (
	"time"
)

// Merge combines a base rule set with a patch into a new rule set. Neither
// input is modified. List unions keep base order followed by entries new in
// the patch and drop duplicates, so merging the same patch twice leaves every
// pattern list unchanged; only Meta.MergedAt moves.
func Merge(base, patch *RuleSet, now time.Time) *RuleSet {
	if base == nil {
		base = &RuleSet{}
	}
	if patch == nil {
		patch = &RuleSet{}
	}

	return &RuleSet{
		Meta:           mergeMeta(base.Meta, patch.Meta, now),
		TextFields:     mergeTextFields(base.TextFields, patch.TextFields),
		CheckboxRules:  mergeCheckboxRules(base.CheckboxRules, patch.CheckboxRules),
		PostProcessing: mergePostProcessing(base.PostProcessing, patch.PostProcessing),
	}
}

// union concatenates lists and removes repeats, keeping first occurrence.
// It returns nil for an empty result so omitempty fields stay absent.
func union(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, s := range l {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeMeta(base, patch Meta, now time.Time) Meta {
	out := Meta{
		Name:        base.Name,
		Description: base.Description,
		PDFTemplate: base.PDFTemplate,
		Notes:       union(base.Notes, patch.Notes),
		MergedAt:    now.Format(MergedAtLayout),
	}
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if out.Name == "" {
		out.Name = DefaultMergeName
	}
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.PDFTemplate != "" {
		out.PDFTemplate = patch.PDFTemplate
	}
	return out
}

func mergeTextFields(base, patch FieldRules) FieldRules {
	var out FieldRules
	for _, e := range base.entries {
		out.set(e.Name, cloneFieldRule(e.Rule))
	}
	for _, e := range patch.entries {
		existing, ok := out.Get(e.Name)
		if !ok {
			out.set(e.Name, cloneFieldRule(e.Rule))
			continue
		}
		out.set(e.Name, mergeFieldRule(existing, e.Rule))
	}
	return out
}

// mergeFieldRule unions patterns and lets the patch override compose and
// transform. A result carrying a compose rule is a compose rule: compose
// always took precedence at extraction time, so its patterns would be inert.
func mergeFieldRule(base, patch FieldRule) FieldRule {
	merged := FieldRule{
		Patterns:  union(base.Patterns, patch.Patterns),
		Transform: base.Transform,
		Compose:   cloneCompose(base.Compose),
	}
	if patch.Compose != nil {
		merged.Compose = cloneCompose(patch.Compose)
	}
	if patch.Transform != TransformNone {
		merged.Transform = patch.Transform
	}
	if merged.Compose != nil {
		merged.Patterns = nil
		merged.Transform = TransformNone
	}
	return merged
}

func cloneFieldRule(r FieldRule) FieldRule {
	return FieldRule{
		Patterns:  union(r.Patterns),
		Transform: r.Transform,
		Compose:   cloneCompose(r.Compose),
	}
}

func cloneCompose(c *ComposeRule) *ComposeRule {
	if c == nil {
		return nil
	}
	return &ComposeRule{
		CylFrom:         union(c.CylFrom),
		DispFrom:        union(c.DispFrom),
		Normalize:       cloneStringMap(c.Normalize),
		AssumeCylinders: c.AssumeCylinders,
		Format:          c.Format,
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeCheckboxRules keys rules by option name. Base order is kept and
// options only the patch knows are appended in patch order.
func mergeCheckboxRules(base, patch CheckboxRules) CheckboxRules {
	var out CheckboxRules
	index := make(map[string]int)

	add := func(r CheckboxRule) {
		if i, ok := index[r.Field]; ok {
			out.Rules[i].MatchAny = union(out.Rules[i].MatchAny, r.MatchAny)
			if r.Description != "" {
				out.Rules[i].Description = r.Description
			}
			return
		}
		index[r.Field] = len(out.Rules)
		out.Rules = append(out.Rules, CheckboxRule{
			Field:       r.Field,
			MatchAny:    union(r.MatchAny),
			Description: r.Description,
		})
	}
	for _, r := range base.Rules {
		add(r)
	}
	for _, r := range patch.Rules {
		add(r)
	}

	switch {
	case patch.Prefer4DrOver2Dr != nil:
		out.Prefer4DrOver2Dr = BoolPtr(*patch.Prefer4DrOver2Dr)
	case base.Prefer4DrOver2Dr != nil:
		out.Prefer4DrOver2Dr = BoolPtr(*base.Prefer4DrOver2Dr)
	}
	return out
}

func mergePostProcessing(base, patch PostProcessing) PostProcessing {
	out := PostProcessing{
		TitlecaseFields: union(base.TitlecaseFields, patch.TitlecaseFields),
		ZipSelection:    override(base.ZipSelection, patch.ZipSelection),
		ZipField:        override(base.ZipField, patch.ZipField),
		MakeField:       override(base.MakeField, patch.MakeField),
		CylinderFormat:  override(base.CylinderFormat, patch.CylinderFormat),
		DoorsPriority:   override(base.DoorsPriority, patch.DoorsPriority),
	}
	if len(base.MakeMapping) > 0 || len(patch.MakeMapping) > 0 {
		out.MakeMapping = cloneStringMap(base.MakeMapping)
		if out.MakeMapping == nil {
			out.MakeMapping = make(map[string]string, len(patch.MakeMapping))
		}
		for k, v := range patch.MakeMapping {
			out.MakeMapping[k] = v
		}
	}
	return out
}

func override(base, patch string) string {
	if patch != "" {
		return patch
	}
	return base
}
