package workflow

import "time"

// Status is the outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorCategory classifies a failed execution.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "ValidationError"
	CategoryLifecycle  ErrorCategory = "LifecycleError"
)

// Stage names a lifecycle step.
type Stage string

const (
	StageLoad      Stage = "load"
	StageConfigure Stage = "configure"
	StageValidate  Stage = "validate"
	StageExecute   Stage = "execute"
)

// Result is the outcome of one invocation. It is owned by the caller.
type Result struct {
	RunID         string        `json:"run_id"`
	WorkflowID    string        `json:"workflow_id"`
	Status        Status        `json:"status"`
	Payload       any           `json:"payload,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	Stage         Stage         `json:"stage,omitempty"`
	FieldErrors   []FieldError  `json:"field_errors,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Succeeded reports whether the run ended with StatusSuccess.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Duration returns FinishedAt - StartedAt.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
