// Package form reads an AcroForm template with pdfcpu, fills it from resolved
// estimate values, and falls back to a summary artifact when the filled
// document cannot be written.
package form

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
)

// maxFieldDepth bounds the field hierarchy walk; deeper trees are malformed
// or cyclic.
const maxFieldDepth = 32

// Template is a parsed AcroForm document. It is mutated in place by the
// Mutator, so load a fresh Template for every document.
type Template struct {
	ctx      *model.Context
	acroForm types.Dict
	fields   []*Field
	byName   map[string][]*Field
}

// FieldInfo describes one template field for inspection.
type FieldInfo struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	States []string `json:"states,omitempty"`
	Value  string   `json:"value,omitempty"`
}

// LoadTemplateFile opens and parses the template at path.
func LoadTemplateFile(path string) (*Template, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, pdferrors.Configuration("cannot open template", err).WithFile(path)
	}
	defer file.Close()

	tpl, err := LoadTemplate(file)
	if err != nil {
		var fe *pdferrors.FillError
		if errors.As(err, &fe) {
			return nil, fe.WithFile(path)
		}
		return nil, err
	}
	return tpl, nil
}

// LoadTemplate parses a template. A document without an AcroForm loads as a
// template with no fields.
func LoadTemplate(rs io.ReadSeeker) (*Template, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, pdferrors.Configuration("cannot read template", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, pdferrors.Configuration("cannot read template page tree", err)
	}

	tpl := &Template{ctx: ctx, byName: make(map[string][]*Field)}
	if err := tpl.collectFields(); err != nil {
		return nil, pdferrors.Configuration("cannot read template fields", err)
	}
	return tpl, nil
}

// Fields returns the terminal fields in document order.
func (t *Template) Fields() []*Field {
	out := make([]*Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Lookup returns the fields named name. Names are normally unique but
// malformed templates may repeat them.
func (t *Template) Lookup(name string) []*Field {
	return t.byName[name]
}

// ListFields reports every field with its kind, appearance states and
// current value.
func (t *Template) ListFields() []FieldInfo {
	infos := make([]FieldInfo, 0, len(t.fields))
	for _, f := range t.fields {
		info := FieldInfo{Name: f.Name(), Kind: f.Kind().String()}
		switch f.Kind() {
		case KindToggle:
			info.States = f.AppearanceStates()
			info.Value = f.State()
		case KindText:
			info.Value = f.Text()
		}
		infos = append(infos, info)
	}
	return infos
}

// setNeedAppearances asks viewers to regenerate appearance streams for the
// new text values.
func (t *Template) setNeedAppearances() {
	if t.acroForm != nil {
		t.acroForm.Update("NeedAppearances", types.Boolean(true))
	}
}

func (t *Template) collectFields() error {
	root, err := t.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := root.Find("AcroForm")
	if !found {
		return nil
	}
	acroForm, err := t.ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroForm == nil {
		return nil
	}
	t.acroForm = acroForm

	fieldsObj, found := acroForm.Find("Fields")
	if !found {
		return nil
	}
	fields, err := t.ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	for _, obj := range fields {
		t.walk(obj, inherited{}, 0)
	}
	return nil
}

// inherited carries the inheritable field attributes down the hierarchy.
type inherited struct {
	name    string
	partial string
	ft      string
	flags   int
}

func (t *Template) walk(obj types.Object, parent inherited, depth int) {
	if depth > maxFieldDepth {
		return
	}
	d, err := t.ctx.DereferenceDict(obj)
	if err != nil || d == nil {
		return
	}

	cur := parent
	if partial := t.stringEntry(d, "T"); partial != "" {
		cur.partial = partial
		if cur.name != "" {
			cur.name += "." + partial
		} else {
			cur.name = partial
		}
	}
	if ftObj, found := d.Find("FT"); found {
		if ft, err := t.ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			cur.ft = string(ft)
		}
	}
	if ffObj, found := d.Find("Ff"); found {
		if ff, err := t.ctx.DereferenceInteger(ffObj); err == nil && ff != nil {
			cur.flags = int(*ff)
		}
	}

	var childFields, widgets []types.Object
	if kidsObj, found := d.Find("Kids"); found {
		if kids, err := t.ctx.DereferenceArray(kidsObj); err == nil {
			for _, kid := range kids {
				kd, err := t.ctx.DereferenceDict(kid)
				if err != nil || kd == nil {
					continue
				}
				if _, named := kd.Find("T"); named {
					childFields = append(childFields, kid)
				} else {
					widgets = append(widgets, kid)
				}
			}
		}
	}

	for _, child := range childFields {
		t.walk(child, cur, depth+1)
	}
	if len(childFields) > 0 && len(widgets) == 0 {
		return
	}
	if cur.name == "" {
		return
	}

	f := &Field{ctx: t.ctx, name: cur.name, partial: cur.partial, kind: kindOf(cur.ft, cur.flags), dict: d}
	if len(widgets) == 0 {
		f.widgets = []types.Dict{d}
	}
	for _, w := range widgets {
		if wd, err := t.ctx.DereferenceDict(w); err == nil && wd != nil {
			f.widgets = append(f.widgets, wd)
		}
	}

	t.fields = append(t.fields, f)
	t.byName[f.name] = append(t.byName[f.name], f)
}

func (t *Template) stringEntry(d types.Dict, key string) string {
	obj, found := d.Find(key)
	if !found {
		return ""
	}
	s, err := t.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func kindOf(ft string, flags int) Kind {
	switch ft {
	case "Tx":
		return KindText
	case "Btn":
		if flags&flagPushbutton != 0 {
			return KindOther
		}
		return KindToggle
	default:
		return KindOther
	}
}
