package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/genmerge/internal/compiler"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// LoadResult is a compiled model and the requests declared alongside it.
type LoadResult struct {
	Project   *model.Element
	Requests  []ir.RequestDoc
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files read
}

// LoadError represents an error that occurred while loading CUE input.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModel loads and compiles a model from a .cue file or from a directory
// holding one CUE package. Requests in the same document are compiled too.
func LoadModel(path string) (*LoadResult, error) {
	value, files, err := loadValue(path)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{CUEValue: value, FileCount: files}

	result.Project, err = compiler.CompileModel(value)
	if err != nil {
		return nil, convertCompileError(err, "model")
	}
	result.Requests, err = compiler.CompileRequests(value)
	if err != nil {
		return nil, convertCompileError(err, "request")
	}
	return result, nil
}

// LoadRequests loads the request list of a CUE file or directory.
func LoadRequests(path string) ([]ir.RequestDoc, error) {
	value, _, err := loadValue(path)
	if err != nil {
		return nil, err
	}
	if !value.LookupPath(cue.ParsePath("request")).Exists() {
		return nil, &LoadError{Code: ErrCodeBadRequest, Message: fmt.Sprintf("no request list in %s", path)}
	}
	docs, err := compiler.CompileRequests(value)
	if err != nil {
		return nil, convertCompileError(err, "request")
	}
	return docs, nil
}

func loadValue(path string) (cue.Value, int, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}

	ctx := cuecontext.New()

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		value := ctx.CompileBytes(data, cue.Filename(path))
		if err := value.Err(); err != nil {
			return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
		}
		return value, 1, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, len(cueFiles), nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapCompileErrorToCode(compileErr),
			Message: compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // Database write error

	// Model compile errors
	ErrCodeUnknownField    = "E101" // Field not known for the element kind
	ErrCodeUnknownName     = "E102" // Reference to an undeclared element
	ErrCodeExtensionID     = "E103" // Extension without id
	ErrCodeLabelledElement = "E104" // Entry is neither text nor a struct with text
	ErrCodeBadRequest      = "E105" // Malformed request entry

	// Inheritance analysis
	ErrCodeInheritanceCycle = "E120" // refines/sees/extends loop
)

// MapCompileErrorToCode maps a compiler error to an error code.
func MapCompileErrorToCode(err *compiler.CompileError) string {
	switch {
	case strings.HasPrefix(err.Field, "request"):
		return ErrCodeBadRequest
	case strings.HasSuffix(err.Field, ".extensions"):
		return ErrCodeExtensionID
	case strings.HasPrefix(err.Message, "unknown field"):
		return ErrCodeUnknownField
	case strings.HasPrefix(err.Message, "unknown "), strings.HasSuffix(err.Message, "refines nothing"):
		return ErrCodeUnknownName
	case strings.Contains(err.Message, "must be a string"):
		return ErrCodeLabelledElement
	default:
		return ErrCodeGeneric
	}
}
