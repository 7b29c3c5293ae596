package builtin

import (
	"context"
	"errors"
)

type echo struct {
	msg string
}

func (e *echo) Configure(_ context.Context, args map[string]any) error {
	e.msg, _ = args["msg"].(string)
	return nil
}

func (e *echo) Validate(context.Context) error {
	if e.msg == "" {
		return errors.New("msg is empty")
	}
	return nil
}

func (e *echo) Execute(context.Context) (map[string]any, error) {
	return map[string]any{"status": "success", "payload": e.msg}, nil
}

func (e *echo) Close() error { return nil }
