package workflow

import "context"

// EntryPoint is the loaded, runnable side of a workflow. Each Open yields an
// independent Instance; the engine opens one per execution and keeps it for
// the whole run, so catalog swaps never affect an execution in flight.
type EntryPoint interface {
	Open(ctx context.Context) (Instance, error)
}

// Instance is one live copy of a workflow. The engine calls Configure,
// Validate and Execute in that order and always calls Close.
type Instance interface {
	Configure(ctx context.Context, args map[string]any) error
	Validate(ctx context.Context) error
	Execute(ctx context.Context) (map[string]any, error)
	Close() error
}

// EntryPointFunc adapts a factory function to EntryPoint.
type EntryPointFunc func(ctx context.Context) (Instance, error)

// Open calls f(ctx).
func (f EntryPointFunc) Open(ctx context.Context) (Instance, error) {
	return f(ctx)
}
