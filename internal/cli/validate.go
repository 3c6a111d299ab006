package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/genmerge/internal/compiler"
	"github.com/roach88/genmerge/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Requests string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Elements int                        `json:"elements"`
	Requests int                        `json:"requests"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model and its requests without merging",
		Long: `Validate a CUE model and the requests that would be merged into it.

Checks that the model compiles, that every element kind and feature is
known, that named siblings are unique, that request parents resolve, and
that refines, sees and extends references form no cycle. Nothing is
written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Requests, "requests", "", "CUE file or directory with a request list")

	return cmd
}

func runValidate(opts *ValidateOptions, modelPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadModel(modelPath)
	if err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			return commandError(formatter, ErrCodeGeneric, err.Error())
		}
		// Compile errors are findings about the model; everything else
		// (missing path, CUE syntax) is a command error.
		if strings.HasPrefix(loadErr.Code, "E1") {
			return outputValidationErrors(formatter, []compiler.ValidationError{{
				Field:   "model",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			}})
		}
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loaded.FileCount, modelPath)

	docs := loaded.Requests
	if opts.Requests != "" {
		more, err := LoadRequests(opts.Requests)
		if err != nil {
			return loadFailure(formatter, err)
		}
		docs = append(docs, more...)
	}

	errs := ValidateModel(loaded, docs)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	result := ValidationResult{
		Valid:    true,
		Elements: len(loaded.Project.AllContained()),
		Requests: len(docs),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Model valid (%d element(s), %d request(s))\n", result.Elements, result.Requests)
	return nil
}

// ValidateModel runs the structural checks and the inheritance cycle
// analysis. Cycles are reported as errors since a run that reaches one
// fails.
func ValidateModel(loaded *LoadResult, docs []ir.RequestDoc) []compiler.ValidationError {
	errs := compiler.Validate(loaded.Project, docs)
	for _, w := range compiler.AnalyzeInheritance(loaded.Project) {
		field := ""
		if len(w.Path) > 0 {
			field = w.Path[0]
		}
		errs = append(errs, compiler.ValidationError{
			Field:   field,
			Message: w.Message,
			Code:    ErrCodeInheritanceCycle,
		})
	}
	return errs
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Respond(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
