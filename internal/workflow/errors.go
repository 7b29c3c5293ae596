package workflow

import (
	"fmt"
	"strings"
)

// DiscoveryError records one candidate file that could not be parsed or
// loaded. It never aborts a scan.
type DiscoveryError struct {
	Path string
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// MetadataParseError is a malformed metadata block. Line is the 1-based line
// number in the file. It reaches the catalog wrapped in a DiscoveryError.
type MetadataParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *MetadataParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// FieldError is one argument that failed schema validation.
type FieldError struct {
	Param string `json:"param"`
	Msg   string `json:"message"`
}

// ValidationError aggregates every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Param+": "+f.Msg)
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Add appends a field failure.
func (e *ValidationError) Add(param, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Param: param, Msg: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// LifecycleError is a failure inside a workflow stage.
type LifecycleError struct {
	Stage Stage
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// GenerationError is one generation strategy that failed or produced output
// the catalog would not accept.
type GenerationError struct {
	Strategy string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate (%s): %v", e.Strategy, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
