package form

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/phuslu/log"

	"github.com/a3tai/claim-form-filler/internal/fileutil"
	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
	"github.com/a3tai/claim-form-filler/internal/resolve"
)

// ResultKind tells the caller which artifact Fill produced.
type ResultKind int

const (
	ResultFilled ResultKind = iota
	ResultFallbackSummary
	ResultFallbackText
)

func (k ResultKind) String() string {
	switch k {
	case ResultFilled:
		return "filled"
	case ResultFallbackSummary:
		return "fallback_summary"
	case ResultFallbackText:
		return "fallback_text"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON output.
func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MutationReport records what the two mutation passes did.
type MutationReport struct {
	Neutralized int                    `json:"neutralized"`
	TextSet     []string               `json:"text_set,omitempty"`
	Checked     []string               `json:"checked,omitempty"`
	Unmatched   []string               `json:"unmatched,omitempty"`
	Skipped     []*pdferrors.FillError `json:"skipped,omitempty"`
}

// Result is the outcome of Fill.
type Result struct {
	Kind   ResultKind      `json:"kind"`
	Path   string          `json:"path"`
	Report *MutationReport `json:"report"`
	// Cause is the serialization failure that forced a fallback.
	Cause error `json:"-"`
}

// IsFallback reports whether the template could not be written.
func (r *Result) IsFallback() bool {
	return r.Kind != ResultFilled
}

// Request is one fill operation.
type Request struct {
	Template   *Template
	Fields     resolve.FieldMap
	Checkboxes resolve.CheckboxSet
	// FieldOrder orders the summary listing; unlisted fields follow sorted.
	FieldOrder []string
	OutputPath string
}

// Serializer writes a mutated document.
type Serializer func(ctx *model.Context, w io.Writer) error

// SummaryRenderer produces the fallback summary document.
type SummaryRenderer interface {
	RenderSummary(s Summary) ([]byte, error)
}

// Mutator applies resolved values to a template and writes the result.
type Mutator struct {
	logger     *log.Logger
	serialize  Serializer
	summary    SummaryRenderer
	outputPerm os.FileMode
}

// MutatorOption configures a Mutator.
type MutatorOption func(*Mutator)

// WithMutatorLogger sets the logger.
func WithMutatorLogger(logger *log.Logger) MutatorOption {
	return func(m *Mutator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSerializer replaces the pdfcpu writer.
func WithSerializer(s Serializer) MutatorOption {
	return func(m *Mutator) {
		if s != nil {
			m.serialize = s
		}
	}
}

// WithSummaryRenderer replaces the fallback summary renderer.
func WithSummaryRenderer(r SummaryRenderer) MutatorOption {
	return func(m *Mutator) {
		if r != nil {
			m.summary = r
		}
	}
}

// NewMutator returns a Mutator that writes with pdfcpu and falls back to a
// PDF summary.
func NewMutator(opts ...MutatorOption) *Mutator {
	m := &Mutator{
		logger:     &log.DefaultLogger,
		serialize:  writeContext,
		summary:    NewPDFSummary(),
		outputPerm: 0o644,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func writeContext(ctx *model.Context, w io.Writer) error {
	return api.WriteContext(ctx, w)
}

// Apply mutates tpl in two passes. The first pass moves every toggle to its
// off state so template defaults never leak into the output. The second
// turns on the toggles named in on and writes the text values. A field is
// addressed by its fully qualified name, or by its own partial name when no
// entry uses the full one. A field that fails is skipped and recorded; the
// others still apply.
func (m *Mutator) Apply(tpl *Template, fields resolve.FieldMap, on resolve.CheckboxSet) *MutationReport {
	report := &MutationReport{}

	for _, f := range tpl.fields {
		if f.kind != KindToggle {
			continue
		}
		m.guard(report, f, func() {
			if f.setToggle(false) {
				report.Neutralized++
			}
		})
	}

	wantOn := make(map[string]bool, len(on))
	for _, name := range on {
		wantOn[name] = true
	}

	matched := make(map[string]bool)
	for _, f := range tpl.fields {
		switch f.kind {
		case KindToggle:
			key, ok := f.matchName(func(n string) bool { return wantOn[n] })
			if !ok {
				continue
			}
			matched[key] = true
			m.guard(report, f, func() {
				if f.setToggle(true) {
					report.Checked = append(report.Checked, f.name)
				}
			})
		case KindText:
			key, ok := f.matchName(func(n string) bool {
				_, ok := fields[n]
				return ok
			})
			if !ok {
				continue
			}
			val := fields[key]
			matched[key] = true
			m.guard(report, f, func() {
				f.setText(val)
				report.TextSet = append(report.TextSet, f.name)
			})
		}
	}

	for _, name := range fields.Keys() {
		if !matched[name] {
			report.Unmatched = append(report.Unmatched, name)
		}
	}
	for _, name := range on {
		if !matched[name] {
			report.Unmatched = append(report.Unmatched, name)
		}
	}

	if len(report.TextSet) > 0 {
		tpl.setNeedAppearances()
	}

	m.logger.Debug().
		Int("neutralized", report.Neutralized).
		Int("text_set", len(report.TextSet)).
		Int("checked", len(report.Checked)).
		Strs("unmatched", report.Unmatched).
		Int("skipped", len(report.Skipped)).
		Msg("applied values to template")

	return report
}

func (m *Mutator) guard(report *MutationReport, f *Field, op func()) {
	defer func() {
		if r := recover(); r != nil {
			fe := pdferrors.NewFillErrorWithContext(
				pdferrors.ErrorTypeAnnotationMutation, "field update failed", fmt.Sprint(r),
			).WithField(f.name)
			report.Skipped = append(report.Skipped, fe)
			m.logger.Warn().Str("field", f.name).Str("cause", fmt.Sprint(r)).Msg("skipped template field")
		}
	}()
	op()
}

// Fill applies the request and writes the filled template to OutputPath.
// When the template cannot be written it writes a summary PDF to OutputPath
// instead, and failing that a plain-text listing next to it. Only when every
// artifact fails is an error returned.
func (m *Mutator) Fill(req Request) (*Result, error) {
	if req.Template == nil {
		return nil, pdferrors.Configuration("template is nil", nil)
	}
	if req.OutputPath == "" {
		return nil, pdferrors.Configuration("output path is empty", nil)
	}

	report := m.Apply(req.Template, req.Fields, req.Checkboxes)

	err := m.writeFilled(req.Template, req.OutputPath)
	if err == nil {
		m.logger.Info().Str("output", req.OutputPath).Msg("wrote filled form")
		return &Result{Kind: ResultFilled, Path: req.OutputPath, Report: report}, nil
	}

	cause := pdferrors.WrapError(pdferrors.ErrorTypeSerialization, "cannot write filled form", err).WithFile(req.OutputPath)
	m.logger.Warn().Err(cause).Msg("falling back to summary")

	summary := NewSummary(req.Fields, req.FieldOrder, req.Checkboxes)

	pdfErr := m.writeSummaryPDF(summary, req.OutputPath)
	if pdfErr == nil {
		m.logger.Info().Str("output", req.OutputPath).Msg("wrote fallback summary PDF")
		return &Result{Kind: ResultFallbackSummary, Path: req.OutputPath, Report: report, Cause: cause}, nil
	}
	m.logger.Warn().Err(pdfErr).Msg("summary PDF failed, writing text summary")

	textPath := TextSummaryPath(req.OutputPath)
	txtErr := fileutil.WriteFileAtomic(textPath, summary.Text(), m.fileMode())
	if txtErr == nil {
		m.logger.Info().Str("output", textPath).Msg("wrote fallback text summary")
		return &Result{Kind: ResultFallbackText, Path: textPath, Report: report, Cause: cause}, nil
	}

	return nil, pdferrors.WrapError(
		pdferrors.ErrorTypeFallbackFailure, "no output could be produced",
		errors.Join(cause, pdfErr, txtErr),
	).WithFile(req.OutputPath)
}

func (m *Mutator) writeFilled(tpl *Template, path string) error {
	var buf bytes.Buffer
	if err := m.serializeSafely(tpl.ctx, &buf); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), m.fileMode())
}

// serializeSafely converts a serializer panic into an error; pdfcpu can
// panic on object graphs it did not produce itself.
func (m *Mutator) serializeSafely(ctx *model.Context, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serializer panic: %v", r)
		}
	}()
	return m.serialize(ctx, w)
}

func (m *Mutator) writeSummaryPDF(s Summary, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summary renderer panic: %v", r)
		}
	}()
	data, err := m.summary.RenderSummary(s)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, m.fileMode())
}

func (m *Mutator) fileMode() os.FileMode {
	return m.outputPerm
}

// TextSummaryPath returns the path of the plain-text fallback for output.
func TextSummaryPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".txt"
}
