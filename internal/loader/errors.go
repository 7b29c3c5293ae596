package loader

import (
	"errors"
	"fmt"
)

// Loader errors
var (
	ErrModuleChanged     = errors.New("workflow file changed since it was loaded")
	ErrNoInterpreter     = errors.New("no interpreter configured for file extension")
	ErrMissingOperations = errors.New("workflow does not define all lifecycle operations")
	ErrProcessExited     = errors.New("workflow process exited")
)

// LoadError is returned when a candidate file cannot be turned into a
// runnable module. It is scoped to one file.
type LoadError struct {
	Path   string
	Reason string
	Stderr string
	Err    error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
