// Package rules defines the declarative mapping rule set that drives field
// extraction and checkbox resolution, together with loading, validation and
// the deterministic base+patch merge.
package rules

// ValueTransform controls how a matched value is shaped before storage.
type ValueTransform string

const (
	TransformNone             ValueTransform = ""
	TransformFirstGroup       ValueTransform = "first_group"
	TransformSecondGroup      ValueTransform = "second_group"
	TransformFirstGroupTitle  ValueTransform = "first_group_title"
	TransformSecondGroupTitle ValueTransform = "second_group_title"
	TransformDigitsOnly       ValueTransform = "digits_only"
)

// Valid reports whether t is one of the known transform tags.
func (t ValueTransform) Valid() bool {
	switch t {
	case TransformNone, TransformFirstGroup, TransformSecondGroup,
		TransformFirstGroupTitle, TransformSecondGroupTitle, TransformDigitsOnly:
		return true
	}
	return false
}

// RuleKind distinguishes the two shapes a FieldRule may take.
type RuleKind int

const (
	RuleKindPattern RuleKind = iota
	RuleKindCompose
)

func (k RuleKind) String() string {
	if k == RuleKindCompose {
		return "compose"
	}
	return "pattern"
}

// Post-processing constants.
const (
	ZipSelectionFirstFiveDigits = "first_five_digits"

	DefaultZipField  = "Loss ZIP Code"
	DefaultMakeField = "Make"
	DefaultMergeName = "bcif_merged"

	// MergedAtLayout is the timestamp layout stamped into Meta.MergedAt.
	MergedAtLayout = "2006-01-02 15:04:05"

	// assumeKeyInNormalize is the legacy location of the default cylinder
	// value, nested inside the normalize table.
	assumeKeyInNormalize = "if_only_displacement_found_assume"
)

// RuleSet is the top-level mapping configuration. A loaded RuleSet is
// treated as read-only; Merge always returns a new value.
type RuleSet struct {
	Meta           Meta           `json:"meta" yaml:"meta"`
	TextFields     FieldRules     `json:"text_fields" yaml:"text_fields"`
	CheckboxRules  CheckboxRules  `json:"checkbox_rules" yaml:"checkbox_rules"`
	PostProcessing PostProcessing `json:"post_processing" yaml:"post_processing"`
}

// Meta carries descriptive information about a rule set.
type Meta struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	PDFTemplate string   `json:"pdf_template,omitempty" yaml:"pdf_template,omitempty"`
	Notes       []string `json:"notes,omitempty" yaml:"notes,omitempty"`
	MergedAt    string   `json:"merged_at,omitempty" yaml:"merged_at,omitempty"`
}

// FieldRule is either a pattern rule (Patterns plus optional Transform) or a
// compose rule (Compose). Validate rejects rules that are both or neither.
type FieldRule struct {
	Patterns  []string       `json:"patterns,omitempty" yaml:"patterns,omitempty" validate:"omitempty,dive,required"`
	Transform ValueTransform `json:"transform,omitempty" yaml:"transform,omitempty" validate:"omitempty,oneof=first_group second_group first_group_title second_group_title digits_only"`
	Compose   *ComposeRule   `json:"compose,omitempty" yaml:"compose,omitempty"`
}

// Kind reports which variant of the tagged union r is.
func (r FieldRule) Kind() RuleKind {
	if r.Compose != nil {
		return RuleKindCompose
	}
	return RuleKindPattern
}

// ComposeRule builds one value from a cylinder fragment and a displacement
// fragment, e.g. "V6" and "3.5L" into "V6-3.5L".
type ComposeRule struct {
	CylFrom         []string          `json:"cyl_from" yaml:"cyl_from" validate:"required,min=1,dive,required"`
	DispFrom        []string          `json:"disp_from" yaml:"disp_from" validate:"required,min=1,dive,required"`
	Normalize       map[string]string `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	AssumeCylinders string            `json:"if_only_displacement_found_assume,omitempty" yaml:"if_only_displacement_found_assume,omitempty"`
	Format          string            `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultCylinders returns the cylinder value to assume when only a
// displacement was found. Older mapping files nest it inside normalize.
func (c *ComposeRule) DefaultCylinders() string {
	if c.AssumeCylinders != "" {
		return c.AssumeCylinders
	}
	return c.Normalize[assumeKeyInNormalize]
}

// DefaultComposeFormat is used when a compose rule omits format.
const DefaultComposeFormat = "{cyl}-{disp}"

// FormatOrDefault returns the configured output template.
func (c *ComposeRule) FormatOrDefault() string {
	if c.Format == "" {
		return DefaultComposeFormat
	}
	return c.Format
}

// CheckboxRule turns Field on when any MatchAny pattern matches the text.
type CheckboxRule struct {
	Field       string   `json:"field" yaml:"field" validate:"required"`
	MatchAny    []string `json:"match_any" yaml:"match_any" validate:"required,min=1,dive,required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// CheckboxRules is the checkbox section of a rule set.
type CheckboxRules struct {
	Rules            []CheckboxRule `json:"rules" yaml:"rules" validate:"dive"`
	Prefer4DrOver2Dr *bool          `json:"prefer_4dr_over_2dr,omitempty" yaml:"prefer_4dr_over_2dr,omitempty"`
}

// PreferFourDoor reports whether the 4DR-over-2DR tie-break is enabled.
func (c CheckboxRules) PreferFourDoor() bool {
	return c.Prefer4DrOver2Dr != nil && *c.Prefer4DrOver2Dr
}

// PostProcessing holds the normalization directives applied after extraction.
type PostProcessing struct {
	TitlecaseFields []string          `json:"titlecase_fields,omitempty" yaml:"titlecase_fields,omitempty" validate:"omitempty,dive,required"`
	ZipSelection    string            `json:"zip_selection,omitempty" yaml:"zip_selection,omitempty" validate:"omitempty,oneof=first_five_digits"`
	ZipField        string            `json:"zip_field,omitempty" yaml:"zip_field,omitempty"`
	MakeMapping     map[string]string `json:"make_mapping,omitempty" yaml:"make_mapping,omitempty"`
	MakeField       string            `json:"make_field,omitempty" yaml:"make_field,omitempty"`
	CylinderFormat  string            `json:"cylinder_format,omitempty" yaml:"cylinder_format,omitempty"`
	DoorsPriority   string            `json:"doors_priority,omitempty" yaml:"doors_priority,omitempty"`
}

// ZipFieldOrDefault returns the field that zip_selection applies to.
func (p PostProcessing) ZipFieldOrDefault() string {
	if p.ZipField == "" {
		return DefaultZipField
	}
	return p.ZipField
}

// MakeFieldOrDefault returns the field that make_mapping applies to.
func (p PostProcessing) MakeFieldOrDefault() string {
	if p.MakeField == "" {
		return DefaultMakeField
	}
	return p.MakeField
}

// BoolPtr is a small helper for building CheckboxRules literals.
func BoolPtr(b bool) *bool {
	return &b
}
