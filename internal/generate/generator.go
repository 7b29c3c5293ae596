package generate

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/autohub/internal/loader"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/metadata"
	"github.com/zjrosen/autohub/internal/tracing"
	"github.com/zjrosen/autohub/internal/workflow"
)

// StrategySkeleton marks output produced after every strategy failed.
const StrategySkeleton = "skeleton"

// candidatePath is the name generated text is checked under.
const candidatePath = "generated_workflow.py"

// Attempt records one strategy that was tried.
type Attempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// Output is an accepted script.
type Output struct {
	Script       string             `json:"script"`
	Strategy     string             `json:"strategy"`
	FallbackUsed bool               `json:"fallback_used"`
	Attempts     []Attempt          `json:"attempts"`
	Metadata     *workflow.Metadata `json:"-"`
	// Message explains a fallback to the user.
	Message string `json:"message,omitempty"`
}

// Generator tries strategies in order.
type Generator struct {
	strategies []Strategy
	tracer     trace.Tracer
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTracer sets the tracer for generation spans.
func WithTracer(t trace.Tracer) GeneratorOption {
	return func(g *Generator) {
		if t != nil {
			g.tracer = t
		}
	}
}

// NewGenerator creates a Generator over strategies. Nil strategies are
// ignored.
func NewGenerator(strategies []Strategy, opts ...GeneratorOption) *Generator {
	g := &Generator{tracer: noop.NewTracerProvider().Tracer("generate")}
	for _, s := range strategies {
		if s != nil {
			g.strategies = append(g.strategies, s)
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Strategies returns the names of the configured strategies in order.
func (g *Generator) Strategies() []string {
	names := make([]string, len(g.strategies))
	for i, s := range g.strategies {
		names[i] = s.Name()
	}
	return names
}

// Generate returns the first output that the parser and loader accept. When
// every strategy fails it returns the skeleton with a Message; an error is
// returned only if even the skeleton cannot be produced.
func (g *Generator) Generate(ctx context.Context, req Request) (*Output, error) {
	ctx, span := g.tracer.Start(ctx, tracing.SpanGenerate)
	defer span.End()

	out := &Output{}
	for i, s := range g.strategies {
		script, meta, err := g.try(ctx, s, req)
		if err == nil {
			out.Script = script
			out.Strategy = s.Name()
			out.Metadata = meta
			out.FallbackUsed = i > 0
			out.Attempts = append(out.Attempts, Attempt{Strategy: s.Name()})
			span.SetAttributes(attribute.String(tracing.AttrStrategy, s.Name()), attribute.Bool(tracing.AttrFallbackUsed, out.FallbackUsed))
			log.Info(log.CatGenerate, "Workflow generated", "strategy", s.Name(), "fallback", out.FallbackUsed)
			return out, nil
		}
		out.Attempts = append(out.Attempts, Attempt{Strategy: s.Name(), Error: err.Error()})
		log.Warn(log.CatGenerate, "Generation strategy failed", "strategy", s.Name(), "error", err)
	}

	script, err := Skeleton(req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, &workflow.GenerationError{Strategy: StrategySkeleton, Err: err}
	}
	meta, err := accept(script)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, &workflow.GenerationError{Strategy: StrategySkeleton, Err: err}
	}

	out.Script = script
	out.Strategy = StrategySkeleton
	out.Metadata = meta
	out.FallbackUsed = true
	out.Message = skeletonMessage(out.Attempts)
	span.SetAttributes(attribute.String(tracing.AttrStrategy, StrategySkeleton), attribute.Bool(tracing.AttrFallbackUsed, true))
	log.Warn(log.CatGenerate, "All generation strategies failed, returning skeleton", "attempts", len(out.Attempts))
	return out, nil
}

func (g *Generator) try(ctx context.Context, s Strategy, req Request) (string, *workflow.Metadata, error) {
	ctx, span := g.tracer.Start(ctx, tracing.SpanGenerateStrategy,
		trace.WithAttributes(attribute.String(tracing.AttrStrategy, s.Name())))
	defer span.End()

	script, err := s.Generate(ctx, req)
	if err != nil {
		err = &workflow.GenerationError{Strategy: s.Name(), Err: err}
		tracing.RecordError(span, err)
		return "", nil, err
	}
	meta, err := accept(script)
	if err != nil {
		err = &workflow.GenerationError{Strategy: s.Name(), Err: err}
		tracing.RecordError(span, err)
		return "", nil, err
	}
	return script, meta, nil
}

// accept checks script against the same rules a catalog scan applies.
func accept(script string) (*workflow.Metadata, error) {
	meta, err := metadata.Parse(candidatePath, []byte(script))
	if err != nil {
		return nil, fmt.Errorf("output rejected by parser: %w", err)
	}
	if err := loader.CheckSource(candidatePath, []byte(script)); err != nil {
		return nil, fmt.Errorf("output rejected by loader: %w", err)
	}
	return meta, nil
}

func skeletonMessage(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "No generation strategy is configured; a minimal skeleton was returned."
	}
	reasons := make([]string, len(attempts))
	for i, a := range attempts {
		reasons[i] = a.Error
	}
	return "Generation failed (" + strings.Join(reasons, "; ") + "); a minimal skeleton was returned."
}
