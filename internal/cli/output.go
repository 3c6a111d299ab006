package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/engine"
)

// Exit codes shared by every genmerge command.
const (
	ExitSuccess      = 0 // run recorded, model valid, scenarios passed, replay matched
	ExitFailure      = 1 // run failed, validation errors, scenario failures, replay diverged
	ExitCommandError = 2 // bad arguments, unreadable files, unknown run, database errors
)

// codeRunFailed is reported for engine errors that carry no RuntimeError code.
const codeRunFailed = "RUN_FAILED"

// ExitError carries the process exit code of a failed command. main unwraps
// it with GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, and
// ExitFailure for any other error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command writes with --format json.
//
//	{"status":"ok","data":{"accepted":2,"suppressed":1},"run_id":"0190..."}
//	{"status":"error","error":{"code":"CYCLIC_MODEL","message":"...","details":{"hint":"..."}}}
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is either a loader/validation E-code (E005, E105, E120, ...) or
// an engine RuntimeError code (MALFORMED_REQUEST, CYCLIC_MODEL, ...).
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// runError converts an engine failure into a CLIError. The code is the
// RuntimeError code when there is one; hints attached with errors.WithHint
// end up in details.
func runError(err error) *CLIError {
	cliErr := &CLIError{Code: codeRunFailed, Message: err.Error()}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		cliErr.Code = string(re.Code)
	}
	if hint := errors.FlattenHints(err); hint != "" {
		cliErr.Details = map[string]string{"hint": hint}
	}
	return cliErr
}

// OutputFormatter writes command results as text or JSON. Diagnostics go to
// ErrWriter so JSON on Writer stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a single error. In text mode details are shown only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Respond writes a full response as indented JSON, for commands whose
// output carries data and an error together (validate, test, replay).
func (f *OutputFormatter) Respond(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

type outputStreams interface {
	OutOrStdout() io.Writer
	ErrOrStderr() io.Writer
}

func newFormatter(opts *RootOptions, cmd outputStreams) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
