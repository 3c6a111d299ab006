package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/genmerge/internal/engine"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
	"github.com/roach88/genmerge/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// Divergence is a request whose replayed outcome differs from the record.
type Divergence struct {
	Seq      int64  `json:"seq"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string       `json:"run_id"`
	Requests      int          `json:"requests"`
	IsComplete    bool         `json:"is_complete"`
	Deterministic bool         `json:"deterministic"`
	AfterHash     string       `json:"after_hash,omitempty"`
	ReplayHash    string       `json:"replay_hash,omitempty"`
	Divergences   []Divergence `json:"divergences,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	Incomplete       []string          `json:"incomplete,omitempty"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded runs and verify determinism",
		Long: `Re-apply the recorded requests of each run to its before snapshot.

Every request must reproduce its recorded status and index, and the final
model must hash to the recorded after snapshot. Runs that never finished
(no after snapshot) are listed as incomplete and not replayed.

Exit codes:
  0 - All replayed runs are deterministic
  1 - A replay diverged from the record
  2 - Command error (database not found, unknown run, etc.)

Examples:
  genmerge replay --db ./merge.db
  genmerge replay --db ./merge.db --run 0192...
  genmerge replay --db ./merge.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}

	for _, id := range runIDs {
		log, err := st.LoadRunLog(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load run %s", id), err)
		}

		runResult, err := replayRun(ctx, log, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}

		result.Runs = append(result.Runs, runResult)
		if !runResult.IsComplete {
			result.Incomplete = append(result.Incomplete, id)
			continue
		}
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// replayRun rebuilds the before snapshot and applies the recorded requests
// in seq order under the recorded run id and tie break. Nothing is written
// back to the store.
func replayRun(ctx context.Context, log store.RunLog, logger *slog.Logger) (ReplayRunResult, error) {
	result := ReplayRunResult{
		RunID:      log.Run.ID,
		Requests:   len(log.Changes),
		IsComplete: log.IsComplete,
		AfterHash:  log.AfterHash,
	}
	if !log.IsComplete {
		return result, nil
	}

	project, err := model.FromDoc(log.Before)
	if err != nil {
		return result, fmt.Errorf("rebuild before snapshot: %w", err)
	}
	target, err := model.Resolve(project, log.Run.Target)
	if err != nil {
		return result, fmt.Errorf("target: %w", err)
	}
	tie, err := engine.ParseTieBreak(log.Run.TieBreak)
	if err != nil {
		return result, err
	}

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithTieBreak(tie),
		engine.WithMaxRequests(0), // the recorded run already passed its quota
		engine.WithRunIDGenerator(engine.NewFixedGenerator(log.Run.ID)),
	)
	run, err := eng.BeginRun(ctx, project, target)
	if err != nil {
		return result, err
	}

	aborted := false
	for _, change := range log.Changes {
		req, err := engine.ResolveRequest(project, change.Request)
		if err != nil {
			result.Divergences = append(result.Divergences, Divergence{
				Seq:      change.Seq,
				Expected: describeChange(change.Status, change.Index),
				Actual:   fmt.Sprintf("unresolvable: %v", err),
			})
			aborted = true
			break
		}
		out, err := run.Apply(ctx, req)
		if err != nil {
			result.Divergences = append(result.Divergences, Divergence{
				Seq:      change.Seq,
				Expected: describeChange(change.Status, change.Index),
				Actual:   fmt.Sprintf("error: %v", err),
			})
			aborted = true
			break
		}
		if out.Status != change.Status || int64(out.Index) != change.Index {
			result.Divergences = append(result.Divergences, Divergence{
				Seq:      change.Seq,
				Expected: describeChange(change.Status, change.Index),
				Actual:   describeChange(out.Status, int64(out.Index)),
			})
		}
	}

	if !aborted {
		record, err := run.Finish(ctx)
		if err != nil {
			// Seq 0 marks the finish step.
			result.Divergences = append(result.Divergences, Divergence{
				Expected: "finish",
				Actual:   fmt.Sprintf("error: %v", err),
			})
		}
		result.ReplayHash = record.AfterHash
	}

	result.Deterministic = len(result.Divergences) == 0 && result.ReplayHash == log.AfterHash
	return result, nil
}

func describeChange(status ir.ChangeStatus, index int64) string {
	return fmt.Sprintf("%s @%d", status, index)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		if !run.IsComplete {
			fmt.Fprintf(w, "- Run: %s\n", run.RunID)
			fmt.Fprintln(w, "  Incomplete: no after snapshot, skipped")
			fmt.Fprintln(w)
			continue
		}

		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Requests: %d\n", run.Requests)
		if verbose || !run.Deterministic {
			fmt.Fprintf(w, "  Recorded: %s\n", run.AfterHash)
			fmt.Fprintf(w, "  Replayed: %s\n", run.ReplayHash)
		}
		for _, d := range run.Divergences {
			fmt.Fprintf(w, "  [%d] expected %s, got %s\n", d.Seq, d.Expected, d.Actual)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
