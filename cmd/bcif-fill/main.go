// Command bcif-fill merges rule sets and fills one BCIF form from an estimate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/pflag"

	"github.com/a3tai/claim-form-filler/internal/config"
	"github.com/a3tai/claim-form-filler/internal/pipeline"
)

type options struct {
	estimate    string
	template    string
	rules       string
	patch       string
	writeMerged string
	mergeOnly   bool
	output      string
	debugJSON   string
	logLevel    string
	maxFileSize int64
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("bcif-fill", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.estimate, "estimate", "", "Estimate PDF to read")
	fs.StringVar(&opts.template, "template", "", "Fillable BCIF template (defaults to meta.pdf_template)")
	fs.StringVar(&opts.rules, "rules", "", "Base rule set, JSON or YAML (required)")
	fs.StringVar(&opts.patch, "patch", "", "Patch rule set merged over the base")
	fs.StringVar(&opts.writeMerged, "write-merged", "", "Write the merged rule set here")
	fs.BoolVar(&opts.mergeOnly, "merge-only", false, "Only merge rule sets; do not fill")
	fs.StringVar(&opts.output, "output", "", "Where to write the filled form")
	fs.StringVar(&opts.debugJSON, "debug-json", "", "Write resolved fields and checkboxes as JSON here")
	fs.StringVar(&opts.logLevel, "loglevel", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Int64Var(&opts.maxFileSize, "maxfilesize", config.DefaultMaxFileSize, "Maximum PDF file size in bytes")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bcif-fill --rules mapping.json [--patch patch.yaml] --estimate estimate.pdf --output filled.pdf\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.rules == "" {
		return nil, errors.New("--rules is required")
	}
	if opts.mergeOnly {
		if opts.patch == "" || opts.writeMerged == "" {
			return nil, errors.New("--merge-only needs --patch and --write-merged")
		}
		return opts, nil
	}
	if opts.estimate == "" || opts.output == "" {
		return nil, errors.New("--estimate and --output are required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cfg := &config.Config{LogLevel: opts.logLevel}
	logger := cfg.NewLogger(stderr)

	svc := pipeline.NewService(pipeline.Options{
		MaxFileSize: opts.maxFileSize,
		Workers:     1,
		Logger:      logger,
	})

	merged, err := svc.MergeRules(opts.rules, opts.patch, opts.writeMerged)
	if err != nil {
		return fail(logger, stderr, err)
	}
	if opts.writeMerged != "" {
		fmt.Fprintf(stdout, "Merged rule set written to: %s\n", opts.writeMerged)
	}
	if opts.mergeOnly {
		return 0
	}

	plan, err := svc.Prepare(merged, filepath.Dir(opts.rules))
	if err != nil {
		return fail(logger, stderr, err)
	}

	out, err := svc.Fill(ctx, plan, pipeline.Job{
		EstimatePath:  opts.estimate,
		TemplatePath:  opts.template,
		OutputPath:    opts.output,
		DebugJSONPath: opts.debugJSON,
	})
	if err != nil {
		return fail(logger, stderr, err)
	}

	if out.DebugJSONPath != "" {
		fmt.Fprintf(stdout, "Debug JSON written to: %s\n", out.DebugJSONPath)
	} else if opts.debugJSON != "" {
		fmt.Fprintf(stderr, "Warning: debug JSON not written to %s\n", opts.debugJSON)
	}
	if out.Result.IsFallback() {
		fmt.Fprintf(stdout, "Form could not be written (%v); %s written to: %s\n",
			out.Result.Cause, out.Result.Kind, out.Result.Path)
		return 0
	}
	fmt.Fprintf(stdout, "Filled PDF written to: %s\n", out.Result.Path)
	return 0
}

func fail(logger *log.Logger, stderr io.Writer, err error) int {
	logger.Debug().Err(err).Msg("bcif-fill failed")
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
