// Package pipeline wires the stages of one estimate run together: rule set
// loading and merging, text extraction, resolution, and form filling.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/a3tai/claim-form-filler/internal/fileutil"
	"github.com/a3tai/claim-form-filler/internal/pdf"
	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
	"github.com/a3tai/claim-form-filler/internal/pdf/form"
	"github.com/a3tai/claim-form-filler/internal/resolve"
	"github.com/a3tai/claim-form-filler/internal/rules"
)

// DefaultWorkers is the FillBatch parallelism when none is configured.
const DefaultWorkers = 4

const outputDirPerm = 0o755

// Options configures a Service.
type Options struct {
	MaxFileSize int64
	Workers     int
	Logger      *log.Logger
	// Mutator overrides the default pdfcpu-backed mutator.
	Mutator *form.Mutator
	// Now stamps merged rule sets; defaults to time.Now.
	Now func() time.Time
}

// Service runs estimates through the pipeline. It holds no per-document
// state and is safe for concurrent use.
type Service struct {
	extractor *pdf.TextExtractor
	validator *pdf.Validator
	mutator   *form.Mutator
	logger    *log.Logger
	workers   int
	now       func() time.Time
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = &log.DefaultLogger
	}
	mutator := opts.Mutator
	if mutator == nil {
		mutator = form.NewMutator(form.WithMutatorLogger(logger))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		extractor: pdf.NewTextExtractor(opts.MaxFileSize, logger),
		validator: pdf.NewValidator(opts.MaxFileSize),
		mutator:   mutator,
		logger:    logger,
		workers:   workers,
		now:       now,
	}
}

// Plan is a compiled rule set ready to run against any number of estimates.
type Plan struct {
	Rules  *rules.RuleSet
	engine *resolve.Engine
	// dir is the directory relative template paths are resolved against.
	dir string
}

// LoadRules loads the base rule set and, when patchPath is set, merges the
// patch into it.
func (s *Service) LoadRules(basePath, patchPath string) (*rules.RuleSet, error) {
	base, err := rules.LoadFile(basePath)
	if err != nil {
		return nil, err
	}
	if patchPath == "" {
		return base, nil
	}

	patch, err := rules.LoadFile(patchPath)
	if err != nil {
		return nil, err
	}
	merged := rules.Merge(base, patch, s.now())
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("base", basePath).
		Str("patch", patchPath).
		Int("text_fields", merged.TextFields.Len()).
		Int("checkbox_rules", len(merged.CheckboxRules.Rules)).
		Msg("merged rule sets")
	return merged, nil
}

// MergeRules merges patchPath into basePath and, when outPath is set, writes
// the merged rule set there.
func (s *Service) MergeRules(basePath, patchPath, outPath string) (*rules.RuleSet, error) {
	merged, err := s.LoadRules(basePath, patchPath)
	if err != nil {
		return nil, err
	}
	if outPath != "" {
		if err := rules.WriteFile(outPath, merged); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeSerialization, "cannot write merged rule set", err).WithFile(outPath)
		}
		s.logger.Info().Str("output", outPath).Msg("wrote merged rule set")
	}
	return merged, nil
}

// Prepare compiles rs. rulesDir anchors a relative meta.pdf_template.
func (s *Service) Prepare(rs *rules.RuleSet, rulesDir string) (*Plan, error) {
	engine, err := resolve.Compile(rs, resolve.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return &Plan{Rules: rs, engine: engine, dir: rulesDir}, nil
}

// PrepareFiles loads, merges and compiles in one step.
func (s *Service) PrepareFiles(basePath, patchPath string) (*Plan, error) {
	rs, err := s.LoadRules(basePath, patchPath)
	if err != nil {
		return nil, err
	}
	return s.Prepare(rs, filepath.Dir(basePath))
}

// TemplatePath returns override when set, otherwise meta.pdf_template
// resolved against the rule set directory.
func (p *Plan) TemplatePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	tpl := p.Rules.Meta.PDFTemplate
	if tpl == "" {
		return "", pdferrors.Configuration("no template given and rule set has no meta.pdf_template", nil)
	}
	if filepath.IsAbs(tpl) || p.dir == "" {
		return tpl, nil
	}
	return filepath.Join(p.dir, tpl), nil
}

// Resolve extracts the estimate text and resolves it against the plan.
func (s *Service) Resolve(ctx context.Context, plan *Plan, estimatePath string) (*resolve.Resolution, error) {
	text, err := s.extractor.ExtractText(ctx, estimatePath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pdferrors.Configuration("cannot read estimate", err).WithFile(estimatePath)
	}
	if text == "" {
		s.logger.Warn().Str("estimate", estimatePath).Msg("estimate has no extractable text")
	}
	return plan.engine.Resolve(text), nil
}

// Job is one estimate to fill.
type Job struct {
	EstimatePath string `json:"estimate"`
	// TemplatePath overrides the plan's meta.pdf_template.
	TemplatePath  string `json:"template,omitempty"`
	OutputPath    string `json:"output"`
	DebugJSONPath string `json:"debug_json,omitempty"`
}

// Outcome reports one Job.
type Outcome struct {
	RunID      string              `json:"run_id"`
	Job        Job                 `json:"job"`
	Resolution *resolve.Resolution `json:"resolution,omitempty"`
	Result     *form.Result        `json:"result,omitempty"`
	// DebugJSONPath is set only when the debug JSON was written.
	DebugJSONPath string `json:"debug_json,omitempty"`
	// Issues collects the skipped fields, the fallback cause and any fatal
	// error of this run.
	Issues *pdferrors.ErrorCollection `json:"issues"`
	Err    error                      `json:"-"`
	Error  string                     `json:"error,omitempty"`
}

func newOutcome(job Job) *Outcome {
	return &Outcome{
		RunID:  uuid.NewString(),
		Job:    job,
		Issues: pdferrors.NewErrorCollection(job.EstimatePath),
	}
}

func (o *Outcome) fail(err error) *Outcome {
	o.Err = err
	o.Error = err.Error()
	o.record(err)
	return o
}

// record adds err to Issues when it carries a pipeline error type.
func (o *Outcome) record(err error) {
	var fe *pdferrors.FillError
	if errors.As(err, &fe) {
		o.Issues.Add(fe)
	}
}

// Fill runs one job end to end. The returned error is also recorded on the
// Outcome; a fallback artifact is not an error.
func (s *Service) Fill(ctx context.Context, plan *Plan, job Job) (*Outcome, error) {
	out := newOutcome(job)
	logger := s.logger

	templatePath, err := plan.TemplatePath(job.TemplatePath)
	if err != nil {
		return out.fail(err), err
	}
	if _, err := s.validator.CheckFile(templatePath); err != nil {
		err = pdferrors.Configuration("invalid template", err).WithFile(templatePath)
		return out.fail(err), err
	}

	res, err := s.Resolve(ctx, plan, job.EstimatePath)
	if err != nil {
		return out.fail(err), err
	}
	out.Resolution = res

	logger.Info().
		Str("run_id", out.RunID).
		Str("estimate", job.EstimatePath).
		Int("fields", len(res.Fields)).
		Strs("checkboxes", res.Checkboxes).
		Msg("resolved estimate")

	if job.DebugJSONPath != "" {
		if err := WriteDebugJSON(job.DebugJSONPath, res); err != nil {
			logger.Warn().Str("run_id", out.RunID).Err(err).Msg("cannot write debug JSON")
			out.Issues.Add(pdferrors.WrapError(pdferrors.ErrorTypeSerialization, "cannot write debug JSON", err).WithFile(job.DebugJSONPath))
		} else {
			out.DebugJSONPath = job.DebugJSONPath
		}
	}

	if err := ctx.Err(); err != nil {
		return out.fail(err), err
	}

	tpl, err := form.LoadTemplateFile(templatePath)
	if err != nil {
		return out.fail(err), err
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), outputDirPerm); err != nil {
		err = pdferrors.Configuration("cannot create output directory", err).WithFile(job.OutputPath)
		return out.fail(err), err
	}

	result, err := s.mutator.Fill(form.Request{
		Template:   tpl,
		Fields:     res.Fields,
		Checkboxes: res.Checkboxes,
		FieldOrder: plan.engine.FieldNames(),
		OutputPath: job.OutputPath,
	})
	if err != nil {
		return out.fail(err), err
	}
	out.Result = result
	for _, skipped := range result.Report.Skipped {
		out.Issues.Add(skipped)
	}
	if result.Cause != nil {
		out.record(result.Cause)
	}

	entry := logger.Info()
	if result.IsFallback() {
		entry = logger.Warn()
	}
	entry.Str("run_id", out.RunID).
		Str("kind", result.Kind.String()).
		Str("output", result.Path).
		Int("skipped_fields", len(result.Report.Skipped)).
		Msg("fill finished")

	return out, nil
}

// FillBatch runs jobs with at most the configured number in flight. Outcomes
// are returned in job order; failures are reported per outcome.
func (s *Service) FillBatch(ctx context.Context, plan *Plan, jobs []Job) []*Outcome {
	outcomes := make([]*Outcome, len(jobs))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.workers)

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = newOutcome(job).fail(err)
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcomes[i], _ = s.Fill(ctx, plan, job)
		}(i, job)
	}

	wg.Wait()
	return outcomes
}

// WriteDebugJSON writes the resolution as indented JSON, creating the
// parent directory when needed.
func WriteDebugJSON(path string, res *resolve.Resolution) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode resolution: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), outputDirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
