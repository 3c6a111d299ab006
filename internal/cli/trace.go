package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/genmerge/internal/harness"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string
	Status    string // optional - filter to one change status
	Generator string // optional - filter to one generator id
	Feature   string // optional - filter to one feature
}

// TraceEntry is one applied request in the timeline of a run.
type TraceEntry struct {
	Seq       int64  `json:"seq"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Index     int64  `json:"index"`
	Parent    string `json:"parent"`
	Feature   string `json:"feature"`
	Value     string `json:"value"`
	Remove    bool   `json:"remove,omitempty"`
	Priority  int64  `json:"priority,omitempty"`
	Generator string `json:"generator,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Requests   int  `json:"requests"`
	Accepted   int  `json:"accepted"`
	Suppressed int  `json:"suppressed"`
	Removed    int  `json:"removed"`
	NotFound   int  `json:"not_found"`
	IsComplete bool `json:"is_complete"`
}

// TraceResult holds the complete trace output of one run.
type TraceResult struct {
	Run      ir.RunRecord `json:"run"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// RunSummary is one line of the run listing.
type RunSummary struct {
	ID         string `json:"id"`
	Target     string `json:"target"`
	Requests   int64  `json:"requests"`
	IsComplete bool   `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded change log of a run",
		Long: `Show what a recorded run did with each request.

Without --run, lists the runs in the database. With --run, prints the
timeline of the run: every request in seq order with its status and the
index it was placed at, followed by summary statistics.

Examples:
  genmerge trace --db ./merge.db
  genmerge trace --db ./merge.db --run 0192...
  genmerge trace --db ./merge.db --run 0192... --status suppressed
  genmerge trace --db ./merge.db --run 0192... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter to a change status (accepted|suppressed|removed|not_found)")
	cmd.Flags().StringVar(&opts.Generator, "generator", "", "filter to a generator id")
	cmd.Flags().StringVar(&opts.Feature, "feature", "", "filter to a feature (variables, invariants, ...)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, formatter)
	}

	log, err := st.LoadRunLog(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}

	filtered, err := st.QueryChanges(ctx, opts.RunID, store.ChangeFilter{
		Status:    ir.ChangeStatus(opts.Status),
		Generator: opts.Generator,
		Feature:   opts.Feature,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query changes", err)
	}

	result := TraceResult{
		Run:      log.Run,
		Timeline: buildTimeline(filtered),
		Stats:    traceStats(log),
	}

	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, RunID: log.Run.ID})
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	incomplete, err := st.FindIncompleteRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	open := make(map[string]bool, len(incomplete))
	for _, id := range incomplete {
		open[id] = true
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, RunSummary{
			ID:         r.ID,
			Target:     r.Target,
			Requests:   r.Requests,
			IsComplete: !open[r.ID],
		})
	}

	if formatter.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: summaries})
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-10s  %d request(s)  %s\n", s.ID, displayTarget(s.Target), s.Requests, completeStatus(s.IsComplete))
	}
	return nil
}

// buildTimeline converts change records to timeline entries.
func buildTimeline(changes []ir.ChangeRecord) []TraceEntry {
	timeline := make([]TraceEntry, 0, len(changes))
	for _, c := range changes {
		timeline = append(timeline, TraceEntry{
			Seq:       c.Seq,
			RequestID: c.RequestID,
			Status:    string(c.Status),
			Index:     c.Index,
			Parent:    c.Request.Parent,
			Feature:   c.Request.Feature,
			Value:     harness.ValueLabel(c.Request.Value),
			Remove:    c.Request.Remove,
			Priority:  c.Request.Priority,
			Generator: c.Request.Generator,
		})
	}
	return timeline
}

// traceStats counts over the whole run, ignoring filters.
func traceStats(log store.RunLog) TraceStats {
	stats := TraceStats{Requests: len(log.Changes), IsComplete: log.IsComplete}
	for _, c := range log.Changes {
		switch c.Status {
		case ir.StatusAccepted:
			stats.Accepted++
		case ir.StatusSuppressed:
			stats.Suppressed++
		case ir.StatusRemoved:
			stats.Removed++
		case ir.StatusNotFound:
			stats.NotFound++
		}
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Target: %s (tie %s)\n", displayTarget(result.Run.Target), result.Run.TieBreak)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no requests)")
	}
	for _, e := range result.Timeline {
		formatTimelineEntry(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Requests:   %d\n", result.Stats.Requests)
	fmt.Fprintf(w, "  Accepted:   %d\n", result.Stats.Accepted)
	fmt.Fprintf(w, "  Suppressed: %d\n", result.Stats.Suppressed)
	fmt.Fprintf(w, "  Removed:    %d\n", result.Stats.Removed)
	fmt.Fprintf(w, "  Not found:  %d\n", result.Stats.NotFound)
	if verbose {
		fmt.Fprintf(w, "  Before:     %s\n", result.Run.BeforeHash)
		fmt.Fprintf(w, "  After:      %s\n", result.Run.AfterHash)
	}

	return nil
}

// formatTimelineEntry formats a single timeline entry for text output.
func formatTimelineEntry(w io.Writer, e TraceEntry, verbose bool) {
	op := "ADD"
	if e.Remove {
		op = "DEL"
	}
	where := displayTarget(e.Parent) + "." + e.Feature
	line := fmt.Sprintf("  [%d] %s %s %s: %s", e.Seq, op, e.Value, where, strings.ToUpper(e.Status))
	if e.Index >= 0 {
		line += fmt.Sprintf(" @%d", e.Index)
	}
	fmt.Fprintln(w, line)

	if verbose {
		if e.Generator != "" {
			fmt.Fprintf(w, "       Generator: %s\n", e.Generator)
		}
		if e.Priority != 0 {
			fmt.Fprintf(w, "       Priority: %d\n", e.Priority)
		}
		fmt.Fprintf(w, "       ID: %s\n", truncateID(e.RequestID))
	}
}

func displayTarget(path string) string {
	if path == "" {
		return "<project>"
	}
	return path
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (no after snapshot)"
}
