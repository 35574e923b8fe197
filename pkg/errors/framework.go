// Package errors implements the trust subsystem's closed error taxonomy:
// IO_ERROR, PERMISSION_DENIED, FILE_CORRUPTED, INVALID_ARGUMENT, CANCELLED.
// Every error the trust/discovery/permission core raises is constructed
// through one of this package's five kind-specific constructors. Kind is an
// exported string type and TrustError's fields are exported, so the package
// itself does not stop a caller from building a value with another kind.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Kind is the closed taxonomy of error kinds this subsystem raises.
type Kind string

const (
	KindIOError          Kind = "IO_ERROR"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindFileCorrupted    Kind = "FILE_CORRUPTED"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindCancelled        Kind = "CANCELLED"
)

// TrustError is the enhanced error type carried across the trust core,
// generalized from the teacher's MCPError: structured context, a
// suggestion list, and source-location capture, narrowed to the five
// kinds this subsystem's error taxonomy names.
type TrustError struct {
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Component string                 `json:"component"`
	Operation string                 `json:"operation"`

	Context     map[string]interface{} `json:"context,omitempty"`
	Suggestions []string                `json:"suggestions,omitempty"`

	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Source    ErrorSource `json:"source"`

	Cause error `json:"-"`
}

// ErrorSource captures where the error was constructed, for LLM-assisted
// troubleshooting.
type ErrorSource struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

func (e *TrustError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Kind, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Kind, e.Operation, e.Message)
}

func (e *TrustError) Unwrap() error {
	return e.Cause
}

// WithTraceID attaches a trace identifier, returning the same error for
// chaining at the call site.
func (e *TrustError) WithTraceID(traceID string) *TrustError {
	e.TraceID = traceID
	return e
}

// WithContext merges additional context fields into the error.
func (e *TrustError) WithContext(ctx map[string]interface{}) *TrustError {
	if e.Context == nil {
		e.Context = make(map[string]interface{}, len(ctx))
	}
	for k, v := range ctx {
		e.Context[k] = v
	}
	return e
}

func captureSource() ErrorSource {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return ErrorSource{}
	}
	fn := runtime.FuncForPC(pc)
	name := ""
	if fn != nil {
		name = fn.Name()
	}
	return ErrorSource{Function: name, File: file, Line: line}
}

func new_(kind Kind, component, operation, message string, cause error, suggestions []string) *TrustError {
	return &TrustError{
		Kind:        kind,
		Message:     message,
		Component:   component,
		Operation:   operation,
		Cause:       cause,
		Suggestions: suggestions,
		Timestamp:   time.Now(),
		Source:      captureSource(),
	}
}

// IOError constructs a generic filesystem failure error (not permission,
// not not-found).
func IOError(component, operation, message string, cause error) *TrustError {
	return new_(KindIOError, component, operation, message, cause, []string{
		"Check disk space and filesystem health",
		"Verify the path is on a mounted, writable filesystem",
	})
}

// PermissionDenied constructs an error for an OS-level access rejection on
// a path the caller is entitled to use.
func PermissionDenied(component, operation, message string, cause error) *TrustError {
	return new_(KindPermissionDenied, component, operation, message, cause, []string{
		"Check file and directory permissions",
		"Verify the process owner matches the expected user",
	})
}

// Corrupted constructs an error describing a malformed or schema-invalid
// trust file. Per the Trust Store's corruption-recovery policy, this kind
// is never surfaced from load() — it is handled internally and logged,
// not returned to callers.
func Corrupted(component, operation, message string, cause error) *TrustError {
	return new_(KindFileCorrupted, component, operation, message, cause, []string{
		"A backup of the corrupted file has been written alongside it",
		"Re-approve affected plugins; the store has reset to empty",
	})
}

// InvalidArgument constructs a synchronous validation error for a
// caller-supplied value (e.g. an unknown capability string).
func InvalidArgument(component, operation, message string) *TrustError {
	return new_(KindInvalidArgument, component, operation, message, nil, []string{
		"Check the argument against the documented closed enumeration",
	})
}

// Cancelled constructs an error for cooperative cancellation firing at a
// suspension point.
func Cancelled(component, operation string) *TrustError {
	return new_(KindCancelled, component, operation, "operation cancelled", nil, nil)
}

// Is reports whether err is a *TrustError of the given kind.
func Is(err error, kind Kind) bool {
	te, ok := err.(*TrustError)
	return ok && te.Kind == kind
}

// KindOf returns the Kind of err if it is a *TrustError, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	te, ok := err.(*TrustError)
	if !ok {
		return "", false
	}
	return te.Kind, true
}
