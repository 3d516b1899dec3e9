package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// NamedFieldRule pairs an output field name with its rule.
type NamedFieldRule struct {
	Name string
	Rule FieldRule
}

// FieldRules is the text_fields section. It keeps the key order of the
// source document so extraction and re-serialised merge output are stable.
type FieldRules struct {
	entries []NamedFieldRule
	index   map[string]int
}

// NewFieldRules builds a FieldRules from entries; a repeated name replaces
// the earlier rule in place.
func NewFieldRules(entries ...NamedFieldRule) FieldRules {
	var f FieldRules
	for _, e := range entries {
		f.set(e.Name, e.Rule)
	}
	return f
}

func (f *FieldRules) set(name string, rule FieldRule) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if i, ok := f.index[name]; ok {
		f.entries[i].Rule = rule
		return
	}
	f.index[name] = len(f.entries)
	f.entries = append(f.entries, NamedFieldRule{Name: name, Rule: rule})
}

// Len returns the number of field rules.
func (f FieldRules) Len() int {
	return len(f.entries)
}

// Get returns the rule for name.
func (f FieldRules) Get(name string) (FieldRule, bool) {
	i, ok := f.index[name]
	if !ok {
		return FieldRule{}, false
	}
	return f.entries[i].Rule, true
}

// Names returns field names in document order.
func (f FieldRules) Names() []string {
	names := make([]string, len(f.entries))
	for i, e := range f.entries {
		names[i] = e.Name
	}
	return names
}

// All returns a copy of the entries in document order.
func (f FieldRules) All() []NamedFieldRule {
	out := make([]NamedFieldRule, len(f.entries))
	copy(out, f.entries)
	return out
}

// allowedRuleKeys lists the keys a text_fields entry may carry; anything else
// is almost always a typo that would silently drop a rule.
var allowedRuleKeys = map[string]bool{
	"patterns":  true,
	"transform": true,
	"compose":   true,
}

func checkRuleKeys(name string, keys []string) error {
	var unknown []string
	for _, k := range keys {
		if !allowedRuleKeys[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("text_fields[%q]: unknown keys %v", name, unknown)
	}
	return nil
}

// MarshalJSON writes the rules as an object in document order.
func (f FieldRules) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range f.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Rule)
		if err != nil {
			return nil, fmt.Errorf("text_fields[%q]: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object while preserving key order.
func (f *FieldRules) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = FieldRules{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("text_fields: expected object, got %v", tok)
	}

	var out FieldRules
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("text_fields: expected field name, got %v", tok)
		}

		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("text_fields[%q]: %w", name, err)
		}
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		if err := checkRuleKeys(name, keys); err != nil {
			return err
		}

		var rule FieldRule
		if p, ok := raw["patterns"]; ok {
			if err := json.Unmarshal(p, &rule.Patterns); err != nil {
				return fmt.Errorf("text_fields[%q].patterns: %w", name, err)
			}
		}
		if t, ok := raw["transform"]; ok {
			if err := json.Unmarshal(t, &rule.Transform); err != nil {
				return fmt.Errorf("text_fields[%q].transform: %w", name, err)
			}
		}
		if c, ok := raw["compose"]; ok && !bytes.Equal(bytes.TrimSpace(c), []byte("null")) {
			rule.Compose = &ComposeRule{}
			if err := json.Unmarshal(c, rule.Compose); err != nil {
				return fmt.Errorf("text_fields[%q].compose: %w", name, err)
			}
		}
		out.set(name, rule)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// MarshalYAML emits a mapping node in document order.
func (f FieldRules) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range f.entries {
		var val yaml.Node
		if err := val.Encode(e.Rule); err != nil {
			return nil, fmt.Errorf("text_fields[%q]: %w", e.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			&val,
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping node while preserving key order.
func (f *FieldRules) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*f = FieldRules{}
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("text_fields: expected mapping at line %d", value.Line)
	}

	var out FieldRules
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		body := value.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return fmt.Errorf("text_fields[%q]: expected mapping at line %d", name, body.Line)
		}
		keys := make([]string, 0, len(body.Content)/2)
		for j := 0; j+1 < len(body.Content); j += 2 {
			keys = append(keys, body.Content[j].Value)
		}
		if err := checkRuleKeys(name, keys); err != nil {
			return err
		}
		var rule FieldRule
		if err := body.Decode(&rule); err != nil {
			return fmt.Errorf("text_fields[%q]: %w", name, err)
		}
		out.set(name, rule)
	}
	*f = out
	return nil
}
