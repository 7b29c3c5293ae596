// Package engine runs one workflow invocation through the configure,
// validate and execute stages and reports the outcome as a Result.
//
// Execute never returns an error and never panics because of workflow
// code: every failure is folded into the Result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/schema"
	"github.com/zjrosen/autohub/internal/tracing"
	"github.com/zjrosen/autohub/internal/workflow"
)

// ErrMissingStatus is an execute result without a "status" key.
var ErrMissingStatus = errors.New(`result has no "status"`)

// Engine executes workflows. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer sets the tracer for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		tracer: noop.NewTracerProvider().Tracer("engine"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates args against d's parameters and runs the lifecycle.
// The descriptor's entry point is used for the whole run even if the
// catalog is rescanned meanwhile.
func (e *Engine) Execute(ctx context.Context, d *workflow.Descriptor, args map[string]any) *workflow.Result {
	res := &workflow.Result{
		RunID:      e.newID(),
		WorkflowID: d.ID(),
		StartedAt:  e.now(),
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanEngineExecute, trace.WithAttributes(
		attribute.String(tracing.AttrWorkflowID, d.ID()),
		attribute.String(tracing.AttrWorkflowSource, string(d.Source())),
		attribute.String(tracing.AttrRunID, res.RunID),
	))
	defer span.End()

	e.run(ctx, span, d, args, res)

	res.FinishedAt = e.now()
	span.SetAttributes(attribute.String(tracing.AttrRunStatus, string(res.Status)))
	if res.Succeeded() {
		log.Info(log.CatEngine, "Workflow succeeded",
			"workflow", d.ID(), "run", res.RunID, "duration", res.Duration())
	} else {
		span.SetAttributes(
			attribute.String(tracing.AttrRunStage, string(res.Stage)),
			attribute.String(tracing.AttrErrorCategory, string(res.ErrorCategory)),
		)
		tracing.RecordError(span, errors.New(res.ErrorMessage))
		log.Warn(log.CatEngine, "Workflow failed",
			"workflow", d.ID(), "run", res.RunID, "category", res.ErrorCategory, "stage", res.Stage, "error", res.ErrorMessage)
	}
	return res
}

func (e *Engine) run(ctx context.Context, span trace.Span, d *workflow.Descriptor, args map[string]any, res *workflow.Result) {
	resolved, err := schema.Resolve(d.Parameters(), args)
	if err != nil {
		res.Status = workflow.StatusError
		res.ErrorCategory = workflow.CategoryValidation
		res.ErrorMessage = err.Error()
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			res.FieldErrors = verr.Fields
		}
		return
	}
	span.AddEvent(tracing.EventArgumentsResolved)

	inst, err := open(ctx, d.EntryPoint())
	if err != nil {
		e.lifecycleFailure(span, res, workflow.StageLoad, err)
		return
	}
	defer func() {
		if err := guard(inst.Close); err != nil {
			log.ErrorErr(log.CatEngine, "Close workflow instance", err, "workflow", d.ID(), "run", res.RunID)
		}
	}()

	stages := []struct {
		stage workflow.Stage
		fn    func() error
	}{
		{workflow.StageConfigure, func() error { return inst.Configure(ctx, resolved) }},
		{workflow.StageValidate, func() error { return inst.Validate(ctx) }},
	}
	for _, s := range stages {
		span.AddEvent(tracing.EventStageStarted, trace.WithAttributes(attribute.String(tracing.AttrRunStage, string(s.stage))))
		if err := guard(s.fn); err != nil {
			e.lifecycleFailure(span, res, s.stage, err)
			return
		}
	}

	span.AddEvent(tracing.EventStageStarted, trace.WithAttributes(attribute.String(tracing.AttrRunStage, string(workflow.StageExecute))))
	var out map[string]any
	err = guard(func() error {
		var err error
		out, err = inst.Execute(ctx)
		return err
	})
	if err == nil {
		err = interpret(out, res)
	}
	if err != nil {
		e.lifecycleFailure(span, res, workflow.StageExecute, err)
		return
	}
	res.Status = workflow.StatusSuccess
}

func (e *Engine) lifecycleFailure(span trace.Span, res *workflow.Result, stage workflow.Stage, err error) {
	lerr := &workflow.LifecycleError{Stage: stage, Err: err}
	res.Status = workflow.StatusError
	res.ErrorCategory = workflow.CategoryLifecycle
	res.Stage = stage
	res.ErrorMessage = lerr.Error()
	res.Payload = nil
	span.AddEvent(tracing.EventStageFailed, trace.WithAttributes(attribute.String(tracing.AttrRunStage, string(stage))))
}

func open(ctx context.Context, entry workflow.EntryPoint) (inst workflow.Instance, err error) {
	err = guard(func() error {
		var err error
		inst, err = entry.Open(ctx)
		return err
	})
	if err == nil && inst == nil {
		err = errors.New("entry point returned no instance")
	}
	return inst, err
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatEngine, "Recovered workflow panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// interpret applies the result contract: "status" must be "success", and
// the payload is "payload" when present, otherwise the rest of the mapping.
func interpret(out map[string]any, res *workflow.Result) error {
	status, ok := out["status"]
	if !ok {
		return ErrMissingStatus
	}
	if s, _ := status.(string); s != string(workflow.StatusSuccess) {
		return fmt.Errorf("workflow reported status %v: %s", status, failureMessage(out))
	}

	if payload, ok := out["payload"]; ok {
		res.Payload = payload
		return nil
	}
	rest := make(map[string]any, len(out))
	for k, v := range out {
		if k != "status" {
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		res.Payload = rest
	}
	return nil
}

func failureMessage(out map[string]any) string {
	for _, key := range []string{"message", "error"} {
		if v, ok := out[key]; ok {
			return fmt.Sprint(v)
		}
	}
	return "no message"
}
