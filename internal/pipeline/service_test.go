package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
	"github.com/a3tai/claim-form-filler/internal/pdf/form"
	"github.com/a3tai/claim-form-filler/internal/resolve"
	"github.com/a3tai/claim-form-filler/internal/rules"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestService(opts ...func(*Options)) *Service {
	o := Options{
		MaxFileSize: 10 * 1024 * 1024,
		Workers:     2,
		Logger:      quietLogger(),
		Now:         func() time.Time { return fixedNow },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return NewService(o)
}

func estimateLines() []string {
	return []string{
		"Claim #: 998877 (Auto)",
		"4 Door Sedan",
		"2 Door option removed",
		"2019 CHEV malibu",
	}
}

func TestLoadRules_MergesPatch(t *testing.T) {
	dir := t.TempDir()
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	patch := writeRules(t, dir, "patch.yaml", patchRulesYAML)

	rs, err := newTestService().LoadRules(base, patch)
	require.NoError(t, err)

	claim, ok := rs.TextFields.Get("Claim Number")
	require.True(t, ok)
	assert.Equal(t, []string{`Claim\s*#?\s*:?\s*(\d+)`, `Claim\s+No\.?\s*(\d+)`}, claim.Patterns)
	assert.Equal(t, []string{"Claim Number", "Model"}, rs.TextFields.Names())
	assert.Equal(t, "bcif.pdf", rs.Meta.PDFTemplate)
	assert.NotEmpty(t, rs.Meta.MergedAt)

	require.Len(t, rs.CheckboxRules.Rules, 2)
	assert.Equal(t, []string{"2 Door", "Coupe"}, rs.CheckboxRules.Rules[1].MatchAny)
}

func TestLoadRules_WithoutPatch(t *testing.T) {
	dir := t.TempDir()
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)

	rs, err := newTestService().LoadRules(base, "")
	require.NoError(t, err)
	assert.Empty(t, rs.Meta.MergedAt)
}

func TestLoadRules_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	svc := newTestService()

	_, err := svc.LoadRules(filepath.Join(dir, "nope.yaml"), "")
	assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))

	_, err = svc.LoadRules(base, filepath.Join(dir, "nope.yaml"))
	assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))
}

func TestMergeRules_WritesOutput(t *testing.T) {
	dir := t.TempDir()
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	patch := writeRules(t, dir, "patch.yaml", patchRulesYAML)
	out := filepath.Join(dir, "merged.json")

	merged, err := newTestService().MergeRules(base, patch, out)
	require.NoError(t, err)

	reloaded, err := rules.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, merged.TextFields.Names(), reloaded.TextFields.Names())
	assert.Equal(t, merged.Meta, reloaded.Meta)
}

func TestPlan_TemplatePath(t *testing.T) {
	svc := newTestService()

	plan, err := svc.Prepare(&rules.RuleSet{Meta: rules.Meta{PDFTemplate: "forms/bcif.pdf"}}, "/etc/rules")
	require.NoError(t, err)

	got, err := plan.TemplatePath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/etc/rules", "forms/bcif.pdf"), got)

	got, err = plan.TemplatePath("/tmp/other.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.pdf", got)

	plan, err = svc.Prepare(&rules.RuleSet{Meta: rules.Meta{PDFTemplate: "/abs/bcif.pdf"}}, "/etc/rules")
	require.NoError(t, err)
	got, err = plan.TemplatePath("")
	require.NoError(t, err)
	assert.Equal(t, "/abs/bcif.pdf", got)

	plan, err = svc.Prepare(&rules.RuleSet{}, "/etc/rules")
	require.NoError(t, err)
	_, err = plan.TemplatePath("")
	assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))
}

func TestFill_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir)
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	estimate := writeEstimate(t, dir, "estimate.pdf", estimateLines()...)

	svc := newTestService()
	plan, err := svc.PrepareFiles(base, "")
	require.NoError(t, err)

	job := Job{
		EstimatePath:  estimate,
		OutputPath:    filepath.Join(dir, "out", "filled.pdf"),
		DebugJSONPath: filepath.Join(dir, "out", "resolved.json"),
	}
	out, err := svc.Fill(context.Background(), plan, job)
	require.NoError(t, err)

	_, err = uuid.Parse(out.RunID)
	assert.NoError(t, err)
	assert.Empty(t, out.Error)

	assert.Equal(t, "998877", out.Resolution.Fields["Claim Number"])
	assert.Equal(t, "Malibu", out.Resolution.Fields["Model"])
	assert.Equal(t, resolve.CheckboxSet{"4DR"}, out.Resolution.Checkboxes)

	require.NotNil(t, out.Result)
	assert.Equal(t, form.ResultFilled, out.Result.Kind)
	assert.Equal(t, job.OutputPath, out.Result.Path)

	tpl, err := form.LoadTemplateFile(job.OutputPath)
	require.NoError(t, err)
	values := make(map[string]form.FieldInfo)
	for _, fi := range tpl.ListFields() {
		values[fi.Name] = fi
	}
	assert.Equal(t, "998877", values["Claim Number"].Value)
	assert.Equal(t, "Malibu", values["Model"].Value)

	data, err := os.ReadFile(job.DebugJSONPath)
	require.NoError(t, err)
	var debug map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &debug))
	assert.Contains(t, debug, "resolved_text_fields")
	assert.Contains(t, debug, "resolved_checkboxes_on")
	assert.Equal(t, job.DebugJSONPath, out.DebugJSONPath)

	errs, warns := out.Issues.Count()
	assert.Zero(t, errs)
	assert.Zero(t, warns)
	assert.Equal(t, "No errors or warnings", out.Issues.Summary())
}

func TestFill_DebugJSONFailureIsRecorded(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir)
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	estimate := writeEstimate(t, dir, "estimate.pdf", estimateLines()...)

	svc := newTestService()
	plan, err := svc.PrepareFiles(base, "")
	require.NoError(t, err)

	out, err := svc.Fill(context.Background(), plan, Job{
		EstimatePath:  estimate,
		OutputPath:    filepath.Join(dir, "filled.pdf"),
		DebugJSONPath: filepath.Join(estimate, "resolved.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, form.ResultFilled, out.Result.Kind)
	assert.Empty(t, out.DebugJSONPath)

	require.Len(t, out.Issues.Errors, 1)
	assert.True(t, errors.Is(out.Issues.Errors[0], pdferrors.ErrSerialization))
	assert.Equal(t, filepath.Join(estimate, "resolved.json"), out.Issues.Errors[0].FilePath)
	assert.False(t, out.Issues.HasFatalErrors())
}

func TestFill_SerializationFallback(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir)
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	estimate := writeEstimate(t, dir, "estimate.pdf", estimateLines()...)

	broken := form.NewMutator(
		form.WithMutatorLogger(quietLogger()),
		form.WithSerializer(func(*model.Context, io.Writer) error { return errors.New("xref overflow") }),
	)
	svc := newTestService(func(o *Options) { o.Mutator = broken })
	plan, err := svc.PrepareFiles(base, "")
	require.NoError(t, err)

	out, err := svc.Fill(context.Background(), plan, Job{EstimatePath: estimate, OutputPath: filepath.Join(dir, "filled.pdf")})
	require.NoError(t, err)
	assert.Equal(t, form.ResultFallbackSummary, out.Result.Kind)
	assert.True(t, errors.Is(out.Result.Cause, pdferrors.ErrSerialization))

	require.Len(t, out.Issues.Errors, 1)
	assert.True(t, errors.Is(out.Issues.Errors[0], pdferrors.ErrSerialization))
	assert.Equal(t, "Found 1 error(s) and 0 warning(s)", out.Issues.Summary())
}

func TestFill_Errors(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir)
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)
	estimate := writeEstimate(t, dir, "estimate.pdf", estimateLines()...)

	svc := newTestService()
	plan, err := svc.PrepareFiles(base, "")
	require.NoError(t, err)

	t.Run("missing estimate", func(t *testing.T) {
		out, err := svc.Fill(context.Background(), plan, Job{
			EstimatePath: filepath.Join(dir, "missing.pdf"),
			OutputPath:   filepath.Join(dir, "filled.pdf"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))
		assert.NotEmpty(t, out.Error)
		assert.Nil(t, out.Result)
		assert.True(t, out.Issues.HasFatalErrors())
	})

	t.Run("output directory blocked", func(t *testing.T) {
		out, err := svc.Fill(context.Background(), plan, Job{
			EstimatePath: estimate,
			OutputPath:   filepath.Join(estimate, "filled.pdf"),
		})
		assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))
		assert.True(t, out.Issues.HasFatalErrors())
	})

	t.Run("missing template", func(t *testing.T) {
		_, err := svc.Fill(context.Background(), plan, Job{
			EstimatePath: estimate,
			TemplatePath: filepath.Join(dir, "nope.pdf"),
			OutputPath:   filepath.Join(dir, "filled.pdf"),
		})
		assert.True(t, errors.Is(err, pdferrors.ErrConfiguration))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.Fill(ctx, plan, Job{EstimatePath: estimate, OutputPath: filepath.Join(dir, "filled.pdf")})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestFillBatch_KeepsJobOrder(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir)
	base := writeRules(t, dir, "base.yaml", baseRulesYAML)

	svc := newTestService()
	plan, err := svc.PrepareFiles(base, "")
	require.NoError(t, err)

	claims := []string{"100001", "100002", "100003", "100004", "100005"}
	var jobs []Job
	for i, claim := range claims {
		name := "estimate-" + claim + ".pdf"
		jobs = append(jobs, Job{
			EstimatePath: writeEstimate(t, dir, name, "Claim #: "+claim+" (Auto)"),
			OutputPath:   filepath.Join(dir, "out", name),
		})
		if i == 2 {
			jobs[i].EstimatePath = filepath.Join(dir, "missing.pdf")
		}
	}

	outcomes := svc.FillBatch(context.Background(), plan, jobs)
	require.Len(t, outcomes, len(jobs))

	seen := make(map[string]bool)
	for i, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, jobs[i], out.Job)
		assert.False(t, seen[out.RunID], "run IDs must be unique")
		seen[out.RunID] = true

		if i == 2 {
			assert.NotEmpty(t, out.Error)
			continue
		}
		require.Empty(t, out.Error)
		assert.Equal(t, claims[i], out.Resolution.Fields["Claim Number"])
		assert.FileExists(t, jobs[i].OutputPath)
	}
}

func TestFillBatch_CanceledContext(t *testing.T) {
	svc := newTestService()
	plan, err := svc.Prepare(&rules.RuleSet{}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := svc.FillBatch(ctx, plan, []Job{{EstimatePath: "a.pdf"}, {EstimatePath: "b.pdf"}})
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.True(t, errors.Is(out.Err, context.Canceled))
	}
}

func TestWriteDebugJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.json")
	res := &resolve.Resolution{
		Fields:     resolve.FieldMap{"Claim Number": "998877"},
		Checkboxes: resolve.CheckboxSet{"4DR"},
	}
	require.NoError(t, WriteDebugJSON(path, res))

	var got resolve.Resolution
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *res, got)
}
