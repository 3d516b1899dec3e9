package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/a3tai/claim-form-filler/internal/config"
	"github.com/a3tai/claim-form-filler/internal/descriptions"
	"github.com/a3tai/claim-form-filler/internal/pdf"
	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
	"github.com/a3tai/claim-form-filler/internal/pdf/form"
	"github.com/a3tai/claim-form-filler/internal/pdf/security"
	"github.com/a3tai/claim-form-filler/internal/pipeline"
	"github.com/a3tai/claim-form-filler/internal/rules"
)

// inventoryLimit caps the files listed by bcif_server_info.
const inventoryLimit = 200

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *pipeline.Service
	paths     *security.PathValidator
	scanner   *pdf.Scanner
	logger    *log.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *pipeline.Service, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}

	paths, err := security.NewPathValidator(cfg.WorkDirectory)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		paths:     paths,
		scanner:   pdf.NewScanner(cfg.MaxFileSize, inventoryLimit),
		logger:    logger,
		mcpServer: mcpServer,
	}
	s.registerTools()

	return s, nil
}

func rulesArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("rules",
			mcp.Description("Base rule set (JSON or YAML); defaults to the server's configured rule set"),
		),
		mcp.WithString("patch",
			mcp.Description("Optional patch rule set merged over the base"),
		),
	}
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	fillOpts := append([]mcp.ToolOption{
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolFill)),
		mcp.WithString("estimate",
			mcp.Description("Estimate PDF to read"),
		),
		mcp.WithArray("estimates",
			mcp.Description("Several estimate PDFs to fill in parallel; requires output_dir"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("output",
			mcp.Description("Where to write the filled form (single estimate)"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Directory for filled forms (several estimates); each is written as <stem>-bcif.pdf, or <stem>-<n>-bcif.pdf when stems repeat"),
		),
		mcp.WithString("template",
			mcp.Description("BCIF template PDF; defaults to the configured template or meta.pdf_template"),
		),
		mcp.WithString("debug_json",
			mcp.Description("Also write the resolved values as JSON here (single estimate)"),
		),
	}, rulesArgs()...)
	s.mcpServer.AddTool(mcp.NewTool(descriptions.ToolFill, fillOpts...), s.handleFill)

	resolveOpts := append([]mcp.ToolOption{
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolResolve)),
		mcp.WithString("estimate",
			mcp.Required(),
			mcp.Description("Estimate PDF to read"),
		),
	}, rulesArgs()...)
	s.mcpServer.AddTool(mcp.NewTool(descriptions.ToolResolve, resolveOpts...), s.handleResolve)

	s.mcpServer.AddTool(mcp.NewTool(descriptions.ToolMergeRules,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolMergeRules)),
		mcp.WithString("rules",
			mcp.Description("Base rule set; defaults to the server's configured rule set"),
		),
		mcp.WithString("patch",
			mcp.Required(),
			mcp.Description("Patch rule set merged over the base"),
		),
		mcp.WithString("output",
			mcp.Description("Optional path to write the merged rule set (.json, .yaml or .yml)"),
		),
	), s.handleMergeRules)

	s.mcpServer.AddTool(mcp.NewTool(descriptions.ToolTemplateFields,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolTemplateFields)),
		mcp.WithString("template",
			mcp.Description("Template PDF; defaults to the configured template"),
		),
	), s.handleTemplateFields)

	s.mcpServer.AddTool(mcp.NewTool(descriptions.ToolServerInfo,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolServerInfo)),
	), s.handleServerInfo)
}

// stringArg returns a trimmed optional string argument.
func stringArg(request mcp.CallToolRequest, key string) string {
	if v, ok := request.GetArguments()[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// stringsArg returns an optional string array argument.
func stringsArg(request mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		out = append(out, str)
	}
	return out, nil
}

// plan loads the rule sets named by the request, falling back to the
// configured ones. A configured patch only applies to the configured base.
func (s *Server) plan(request mcp.CallToolRequest) (*pipeline.Plan, error) {
	base, patch := stringArg(request, "rules"), stringArg(request, "patch")
	if base == "" {
		base = s.config.RulesPath
		if patch == "" {
			patch = s.config.PatchPath
		}
	}
	if base == "" {
		return nil, fmt.Errorf("no rule set given and none configured")
	}

	basePath, err := s.paths.Resolve(base)
	if err != nil {
		return nil, err
	}
	patchPath, err := s.paths.ResolveOptional(patch)
	if err != nil {
		return nil, err
	}
	return s.service.PrepareFiles(basePath, patchPath)
}

// templateOverride returns the template path a fill should use ahead of
// meta.pdf_template, or "".
func (s *Server) templateOverride(request mcp.CallToolRequest) (string, error) {
	if t := stringArg(request, "template"); t != "" {
		return s.paths.Resolve(t)
	}
	return s.config.TemplatePath, nil
}

// Handler functions
func (s *Server) handleFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	estimates, err := stringsArg(request, "estimates")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	single := stringArg(request, "estimate")
	if single == "" && len(estimates) == 0 {
		return mcp.NewToolResultError("estimate or estimates is required"), nil
	}

	plan, err := s.plan(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	template, err := s.templateOverride(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if single != "" {
		job, err := s.singleJob(request, single, template)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := s.service.Fill(ctx, plan, job)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatOutcomes([]*pipeline.Outcome{out})), nil
	}

	jobs, err := s.batchJobs(request, estimates, template)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcomes := s.service.FillBatch(ctx, plan, jobs)
	return mcp.NewToolResultText(formatOutcomes(outcomes)), nil
}

func (s *Server) singleJob(request mcp.CallToolRequest, estimate, template string) (pipeline.Job, error) {
	output := stringArg(request, "output")
	if output == "" {
		return pipeline.Job{}, fmt.Errorf("output is required with estimate")
	}

	job := pipeline.Job{TemplatePath: template}
	var err error
	if job.EstimatePath, err = s.paths.Resolve(estimate); err != nil {
		return job, err
	}
	if job.OutputPath, err = s.paths.Resolve(output); err != nil {
		return job, err
	}
	if job.DebugJSONPath, err = s.paths.ResolveOptional(stringArg(request, "debug_json")); err != nil {
		return job, err
	}
	return job, nil
}

func (s *Server) batchJobs(request mcp.CallToolRequest, estimates []string, template string) ([]pipeline.Job, error) {
	outputDir := stringArg(request, "output_dir")
	if outputDir == "" {
		return nil, fmt.Errorf("output_dir is required with estimates")
	}
	dir, err := s.paths.Resolve(outputDir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(estimates))
	for i, estimate := range estimates {
		if paths[i], err = s.paths.Resolve(estimate); err != nil {
			return nil, err
		}
	}

	names := outputNames(paths)
	jobs := make([]pipeline.Job, len(paths))
	for i, path := range paths {
		jobs[i] = pipeline.Job{
			EstimatePath: path,
			TemplatePath: template,
			OutputPath:   filepath.Join(dir, names[i]),
		}
	}
	return jobs, nil
}

// outputNames maps each estimate to <stem>-bcif.pdf. Stems shared by more
// than one estimate get a counter, <stem>-<n>-bcif.pdf, so no two jobs in a
// batch write the same file. Names compare case-insensitively.
func outputNames(paths []string) []string {
	stems := make([]string, len(paths))
	count := make(map[string]int, len(paths))
	for i, path := range paths {
		stems[i] = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		count[strings.ToLower(stems[i])]++
	}

	names := make([]string, len(paths))
	used := make(map[string]bool, len(paths))
	for i, stem := range stems {
		if count[strings.ToLower(stem)] == 1 {
			names[i] = stem + "-bcif.pdf"
			used[strings.ToLower(names[i])] = true
		}
	}
	for i, stem := range stems {
		if names[i] != "" {
			continue
		}
		for n := 1; ; n++ {
			name := fmt.Sprintf("%s-%d-bcif.pdf", stem, n)
			if !used[strings.ToLower(name)] {
				names[i] = name
				used[strings.ToLower(name)] = true
				break
			}
		}
	}
	return names
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	estimate, err := request.RequireString("estimate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.paths.Resolve(estimate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	plan, err := s.plan(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.service.Resolve(ctx, plan, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleMergeRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patch, err := request.RequireString("patch")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	base := stringArg(request, "rules")
	if base == "" {
		base = s.config.RulesPath
	}
	if base == "" {
		return mcp.NewToolResultError("no rule set given and none configured"), nil
	}

	var basePath, patchPath, outPath string
	for _, p := range []struct {
		dst *string
		src string
	}{{&basePath, base}, {&patchPath, patch}, {&outPath, stringArg(request, "output")}} {
		if *p.dst, err = s.paths.ResolveOptional(p.src); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	merged, err := s.service.MergeRules(basePath, patchPath, outPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := rules.Encode(merged, rules.FormatJSON)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Merged %s over %s\n", patchPath, basePath)
	text += fmt.Sprintf("Text fields: %d\n", merged.TextFields.Len())
	text += fmt.Sprintf("Checkbox rules: %d\n", len(merged.CheckboxRules.Rules))
	if outPath != "" {
		text += fmt.Sprintf("Written to: %s\n", outPath)
	}
	text += "\n" + string(data)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleTemplateFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.templateOverride(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path == "" {
		return mcp.NewToolResultError("no template given and none configured"), nil
	}

	tpl, err := form.LoadTemplateFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatTemplateFields(path, tpl.ListFields())), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inv, err := s.scanner.Scan(s.paths.Root())
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", s.paths.Root()).Msg("cannot scan work directory")
		inv = &pdf.Inventory{Directory: s.paths.Root()}
	}
	return mcp.NewToolResultText(s.formatServerInfo(inv)), nil
}

func writeIssues(b *strings.Builder, issues *pdferrors.ErrorCollection) {
	if issues == nil {
		return
	}
	if errs, warns := issues.Count(); errs+warns == 0 {
		return
	}
	fmt.Fprintf(b, "Issues: %s\n", issues.Summary())
	for _, e := range issues.Errors {
		fmt.Fprintf(b, "  error: %v\n", e)
	}
	for _, w := range issues.Warnings {
		fmt.Fprintf(b, "  warning: %v\n", w)
	}
}

// Formatting methods
func formatOutcomes(outcomes []*pipeline.Outcome) string {
	var b strings.Builder
	failed := 0
	for i, out := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Estimate: %s\n", out.Job.EstimatePath)
		fmt.Fprintf(&b, "Run ID: %s\n", out.RunID)
		if out.Error != "" {
			failed++
			fmt.Fprintf(&b, "Error: %s\n", out.Error)
			continue
		}

		fmt.Fprintf(&b, "Result: %s\n", out.Result.Kind)
		fmt.Fprintf(&b, "Output: %s\n", out.Result.Path)
		if out.Result.IsFallback() && out.Result.Cause != nil {
			fmt.Fprintf(&b, "Fallback cause: %v\n", out.Result.Cause)
		}

		fields := out.Resolution.Fields
		fmt.Fprintf(&b, "Text fields resolved: %d\n", len(fields))
		for _, k := range fields.Keys() {
			fmt.Fprintf(&b, "  %s: %s\n", k, fields[k])
		}
		fmt.Fprintf(&b, "Checkboxes on: %s\n", strings.Join(out.Resolution.Checkboxes, ", "))

		if report := out.Result.Report; report != nil && len(report.Unmatched) > 0 {
			fmt.Fprintf(&b, "Not in template: %s\n", strings.Join(report.Unmatched, ", "))
		}
		if out.DebugJSONPath != "" {
			fmt.Fprintf(&b, "Debug JSON: %s\n", out.DebugJSONPath)
		}
		writeIssues(&b, out.Issues)
	}
	if len(outcomes) > 1 {
		fmt.Fprintf(&b, "\n%d of %d estimates filled\n", len(outcomes)-failed, len(outcomes))
	}
	return b.String()
}

func formatTemplateFields(path string, fields []form.FieldInfo) string {
	text := fmt.Sprintf("Template: %s\n", path)
	text += fmt.Sprintf("Fields: %d\n\n", len(fields))
	for _, f := range fields {
		text += fmt.Sprintf("%s [%s]", f.Name, f.Kind)
		if len(f.States) > 0 {
			text += fmt.Sprintf(" states: %s", strings.Join(f.States, ", "))
		}
		if f.Value != "" {
			text += fmt.Sprintf(" value: %q", f.Value)
		}
		text += "\n"
	}
	return text
}

func (s *Server) formatServerInfo(inv *pdf.Inventory) string {
	orNone := func(v string) string {
		if v == "" {
			return "(none)"
		}
		return v
	}

	text := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Work Directory: %s\n", s.paths.Root())
	text += fmt.Sprintf("Default Rules: %s\n", orNone(s.config.RulesPath))
	text += fmt.Sprintf("Default Patch: %s\n", orNone(s.config.PatchPath))
	text += fmt.Sprintf("Default Template: %s\n", orNone(s.config.TemplatePath))
	text += fmt.Sprintf("Max File Size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Batch Workers: %d\n\n", s.config.Workers)

	list := func(title string, files []pdf.FileInfo) {
		if len(files) == 0 {
			text += fmt.Sprintf("%s: none found\n", title)
			return
		}
		text += fmt.Sprintf("%s (%d):\n", title, len(files))
		for i, f := range files {
			rel, err := filepath.Rel(s.paths.Root(), f.Path)
			if err != nil {
				rel = f.Path
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, rel, f.Size)
		}
	}
	list("PDF Files", inv.PDFs)
	list("Rule Sets", inv.RuleSets)
	if inv.Truncated {
		text += fmt.Sprintf("   ... listing stopped after %d files\n", inventoryLimit)
	}

	text += "\nAvailable Tools:\n"
	for _, name := range descriptions.GetAllToolNames() {
		desc := descriptions.GetToolDescription(name)
		if i := strings.Index(desc, "\n"); i >= 0 {
			desc = desc[:i]
		}
		text += fmt.Sprintf("  • %s: %s\n", name, desc)
	}
	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	s.logger.Info().
		Str("mode", config.ModeStdio).
		Str("dir", s.paths.Root()).
		Msg("starting claim form filler MCP server")

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE until ctx is done.
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	s.logger.Info().
		Str("mode", config.ModeServer).
		Str("addr", addr).
		Str("dir", s.paths.Root()).
		Msg("starting claim form filler MCP server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve SSE: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := sse.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("failed to shut down SSE server: %w", err)
		}
		return nil
	}
}
