package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/genmerge/internal/compiler"
	"github.com/roach88/genmerge/internal/engine"
	"github.com/roach88/genmerge/internal/harness"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
	"github.com/roach88/genmerge/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database    string
	Requests    string
	Target      string
	Tie         string
	MaxRequests int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	RunIDs engine.RunIDGenerator
}

// ApplyResult summarizes one recorded run.
type ApplyResult struct {
	RunID      string                  `json:"run_id"`
	Target     string                  `json:"target"`
	TieBreak   string                  `json:"tie_break"`
	Requests   int64                   `json:"requests"`
	Accepted   int                     `json:"accepted"`
	Suppressed int                     `json:"suppressed"`
	Removed    int                     `json:"removed"`
	NotFound   int                     `json:"not_found"`
	BeforeHash string                  `json:"before_hash"`
	AfterHash  string                  `json:"after_hash"`
	Warnings   []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <model>",
		Short: "Merge generation requests into a model",
		Long: `Merge generation requests into a CUE model and record the run.

The model is a .cue file or a directory holding one CUE package. Requests
come from the model's own request list followed by the --requests file.
Each request is filtered against existing and inherited values, placed by
priority and extension order, and recorded in the SQLite database together
with before and after snapshots of the model.

Exit codes:
  0 - Run finished
  1 - Invalid requests or the run failed (quota, cycle, unresolved reference)
  2 - Command error (missing files, database errors)

Examples:
  genmerge apply --db ./merge.db ./model.cue --requests ./requests.cue
  genmerge apply --db ./merge.db ./model --target components:m1 --tie before`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Requests, "requests", "", "CUE file or directory with a request list")
	cmd.Flags().StringVar(&opts.Target, "target", "", "element path of the component being generated (default: whole project)")
	cmd.Flags().StringVar(&opts.Tie, "tie", "after", "placement among equally ranked siblings (after|before)")
	cmd.Flags().IntVar(&opts.MaxRequests, "max-requests", engine.DefaultMaxRequests, "request quota per run (0 disables)")

	return cmd
}

func runApply(opts *ApplyOptions, modelPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	tie, err := engine.ParseTieBreak(opts.Tie)
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, err.Error())
	}

	logger.Info("loading model", "path", modelPath)
	loaded, err := LoadModel(modelPath)
	if err != nil {
		return loadFailure(formatter, err)
	}
	docs := loaded.Requests
	if opts.Requests != "" {
		more, err := LoadRequests(opts.Requests)
		if err != nil {
			return loadFailure(formatter, err)
		}
		docs = append(docs, more...)
	}
	logger.Info("model loaded", "files", loaded.FileCount, "requests", len(docs))

	if errs := compiler.Validate(loaded.Project, docs); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	warnings := compiler.AnalyzeInheritance(loaded.Project)
	for _, w := range warnings {
		logger.Warn("inheritance cycle", "relation", w.Relation, "message", w.Message)
	}

	target, err := model.Resolve(loaded.Project, opts.Target)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("target: %v", err))
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("failed to open database: %v", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithTieBreak(tie),
		engine.WithMaxRequests(opts.MaxRequests),
		engine.WithRecorder(st),
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng := engine.New(engineOpts...)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := eng.BeginRun(ctx, loaded.Project, target)
	if err != nil {
		return commandError(formatter, ErrCodeWriteFailed, err.Error())
	}

	// Requests are resolved one at a time: a later request may name a
	// parent added by an earlier one.
	for i, doc := range docs {
		req, err := engine.ResolveRequest(loaded.Project, doc)
		if err != nil {
			return runFailure(formatter, run.ID(), errors.Wrapf(err, "request %d", i+1))
		}
		run.Enqueue(req)
		if _, err := run.Drain(ctx); err != nil {
			return runFailure(formatter, run.ID(), err)
		}
	}

	record, err := run.Finish(ctx)
	if err != nil {
		return runFailure(formatter, run.ID(), err)
	}

	result := summarizeRun(record, run.Changes())
	result.Warnings = warnings

	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Run %s: %d request(s)\n", result.RunID, result.Requests)
	fmt.Fprintf(w, "  accepted: %d, suppressed: %d, removed: %d, not found: %d\n",
		result.Accepted, result.Suppressed, result.Removed, result.NotFound)
	fmt.Fprintf(w, "  after: %s\n", result.AfterHash)
	if opts.Verbose {
		fmt.Fprintln(w)
		fmt.Fprint(w, harness.RenderTree(loaded.Project))
	}
	return nil
}

func summarizeRun(record ir.RunRecord, changes []ir.ChangeRecord) ApplyResult {
	result := ApplyResult{
		RunID:      record.ID,
		Target:     record.Target,
		TieBreak:   record.TieBreak,
		Requests:   record.Requests,
		BeforeHash: record.BeforeHash,
		AfterHash:  record.AfterHash,
	}
	for _, c := range changes {
		switch c.Status {
		case ir.StatusAccepted:
			result.Accepted++
		case ir.StatusSuppressed:
			result.Suppressed++
		case ir.StatusRemoved:
			result.Removed++
		case ir.StatusNotFound:
			result.NotFound++
		}
	}
	return result
}

// runFailure reports an engine error. The run stays in the database without
// an after snapshot; replay lists it as incomplete.
func runFailure(formatter *OutputFormatter, runID string, err error) error {
	cliErr := runError(err)
	if formatter.Format == "json" {
		_ = formatter.Respond(CLIResponse{Status: "error", Error: cliErr, RunID: runID})
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Run %s failed\n", runID)
		fmt.Fprintf(formatter.Writer, "  %s\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(formatter.Writer, "  hint: %s\n", hint)
		}
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("run %s failed", runID), err)
}

// loadFailure reports a model or request loading error.
func loadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), msg)
		}
		return commandError(formatter, loadErr.Code, msg)
	}
	return commandError(formatter, ErrCodeGeneric, err.Error())
}

// commandError outputs a single error. Command-level errors exit with code 2.
func commandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
