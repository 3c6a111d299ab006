package engine

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// RuntimeError is an error detected while building or applying requests.
//
// Runtime errors include:
//   - Malformed request: a removal carrying a before sibling, a nil value
//   - Cyclic model: refines, sees or extends loop back on themselves
//   - Unresolved reference: a forward reference never found its target
//   - Quota exceeded: a run received more requests than allowed
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, if any.
	RunID string

	// Path is the element path the error is about, if any.
	Path string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeMalformedRequest    RuntimeErrorCode = "MALFORMED_REQUEST"
	ErrCodeCyclicModel         RuntimeErrorCode = "CYCLIC_MODEL"
	ErrCodeUnresolvedReference RuntimeErrorCode = "UNRESOLVED_REFERENCE"
	ErrCodeQuotaExceeded       RuntimeErrorCode = "QUOTA_EXCEEDED"
	ErrCodeMissingParent       RuntimeErrorCode = "MISSING_PARENT"
	ErrCodeRunClosed           RuntimeErrorCode = "RUN_CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	switch {
	case e.RunID != "" && e.Path != "":
		fmt.Fprintf(&b, " (run=%s, path=%s)", e.RunID, e.Path)
	case e.RunID != "":
		fmt.Fprintf(&b, " (run=%s)", e.RunID)
	case e.Path != "":
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	return b.String()
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsMalformedRequestError reports whether err is a MALFORMED_REQUEST error.
// Uses errors.As to handle wrapped errors.
func IsMalformedRequestError(err error) bool { return hasCode(err, ErrCodeMalformedRequest) }

// IsCyclicModelError reports whether err is a CYCLIC_MODEL error.
func IsCyclicModelError(err error) bool { return hasCode(err, ErrCodeCyclicModel) }

// IsUnresolvedReferenceError reports whether err is an UNRESOLVED_REFERENCE error.
func IsUnresolvedReferenceError(err error) bool { return hasCode(err, ErrCodeUnresolvedReference) }

// IsQuotaError reports whether err is a QUOTA_EXCEEDED error.
func IsQuotaError(err error) bool { return hasCode(err, ErrCodeQuotaExceeded) }

// IsMissingParentError reports whether err is a MISSING_PARENT error.
func IsMissingParentError(err error) bool { return hasCode(err, ErrCodeMissingParent) }

// NewMalformedRequestError creates a MALFORMED_REQUEST error.
func NewMalformedRequestError(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMalformedRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewCyclicModelError creates a CYCLIC_MODEL error for the given loop of
// element paths. The returned error carries a hint for the user.
func NewCyclicModelError(relation string, loop []string) error {
	re := &RuntimeError{
		Code:    ErrCodeCyclicModel,
		Message: fmt.Sprintf("%s cycle: %s", relation, strings.Join(loop, " -> ")),
		Details: map[string]string{"relation": relation},
	}
	if len(loop) > 0 {
		re.Path = loop[0]
	}
	return errors.WithHint(re, "remove one of the "+relation+" links so the inheritance graph is acyclic")
}

// NewQuotaError creates a QUOTA_EXCEEDED error.
func NewQuotaError(runID string, requests, maxRequests int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("run exceeded max requests (%d > %d)", requests, maxRequests),
		RunID:   runID,
		Details: map[string]string{
			"requests":     fmt.Sprintf("%d", requests),
			"max_requests": fmt.Sprintf("%d", maxRequests),
		},
	}
}
