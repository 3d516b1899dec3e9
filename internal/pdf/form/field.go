package form

import (
	"encoding/hex"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Kind classifies a template field by how it is filled.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindToggle
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToggle:
		return "toggle"
	default:
		return "other"
	}
}

// flagPushbutton is field flag bit 17 (PDF 32000-1, table 226).
const flagPushbutton = 1 << 16

// offMarker identifies the "off" appearance state of a toggle.
const offMarker = "Off"

// Field is one terminal form field of a template together with its widget
// annotations. A field without Kids is its own widget.
type Field struct {
	ctx  *model.Context
	name string
	// partial is the field's own /T, the last component of name.
	partial string
	kind    Kind
	dict    types.Dict
	widgets []types.Dict
}

// Name returns the fully qualified field name.
func (f *Field) Name() string {
	return f.name
}

// PartialName returns the terminal component of the field name.
func (f *Field) PartialName() string {
	return f.partial
}

// matchName returns the key under which has addresses f: the fully
// qualified name, or failing that the terminal partial name.
func (f *Field) matchName(has func(string) bool) (string, bool) {
	if has(f.name) {
		return f.name, true
	}
	if f.partial != "" && f.partial != f.name && has(f.partial) {
		return f.partial, true
	}
	return "", false
}

// Kind returns the field kind.
func (f *Field) Kind() Kind {
	return f.kind
}

// AppearanceStates returns the sorted union of the normal appearance state
// names across all widgets. Text fields normally have none.
func (f *Field) AppearanceStates() []string {
	seen := make(map[string]bool)
	for _, w := range f.widgets {
		for _, s := range f.widgetStates(w) {
			seen[s] = true
		}
	}
	var states []string
	for s := range seen {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// State returns the current /AS of the first widget that has one.
func (f *Field) State() string {
	for _, w := range f.widgets {
		obj, found := w.Find("AS")
		if !found {
			continue
		}
		if name, err := f.ctx.DereferenceName(obj, model.V10, nil); err == nil {
			return string(name)
		}
	}
	return ""
}

// Text returns the current /V of a text field.
func (f *Field) Text() string {
	obj, found := f.dict.Find("V")
	if !found {
		return ""
	}
	s, err := f.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func (f *Field) widgetStates(w types.Dict) []string {
	apObj, found := w.Find("AP")
	if !found {
		return nil
	}
	ap, err := f.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil
	}
	n, err := f.ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return nil
	}
	states := make([]string, 0, len(n))
	for k := range n {
		states = append(states, k)
	}
	sort.Strings(states)
	return states
}

// pickState chooses the widget state for on or off: the lexicographically
// first state that does (off) or does not (on) contain "Off".
func pickState(states []string, on bool) (string, bool) {
	for _, s := range states {
		if strings.Contains(s, offMarker) != on {
			return s, true
		}
	}
	return "", false
}

// setToggle moves every widget with a normal appearance dictionary to its on
// or off state and records the chosen state as the field value. It reports
// whether any widget changed.
func (f *Field) setToggle(on bool) bool {
	var chosen string
	for _, w := range f.widgets {
		state, ok := pickState(f.widgetStates(w), on)
		if !ok {
			continue
		}
		w.Update("AS", types.Name(state))
		if chosen == "" {
			chosen = state
		}
	}
	if chosen == "" {
		return false
	}
	f.dict.Update("V", types.Name(chosen))
	return true
}

func (f *Field) setText(value string) {
	v := encodeText(value)
	f.dict.Update("V", v)
	f.dict.Update("DV", v)
}

// encodeText renders s as a PDF text string: a literal string when s is
// plain ASCII, otherwise UTF-16BE with a byte order mark as a hex string.
func encodeText(s string) types.Object {
	if isASCII(s) {
		return types.StringLiteral(escapeLiteral(s))
	}
	units := utf16.Encode([]rune(s))
	b := make([]byte, 0, 2+2*len(units))
	b = append(b, 0xFE, 0xFF)
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(strings.ToUpper(hex.EncodeToString(b)))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7E || (s[i] < 0x20 && s[i] != '\n' && s[i] != '\r' && s[i] != '\t') {
			return false
		}
	}
	return true
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`(`, `\(`,
	`)`, `\)`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
