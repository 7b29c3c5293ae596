// Package generate produces new workflow scripts from a natural language
// description. Strategies are tried in order and every candidate must pass
// the metadata parser and the loader's source check before it is accepted.
package generate

import (
	"context"
	"strings"
)

// Request describes the workflow to generate.
type Request struct {
	Description string
	Category    string
	// UseExamples adds example scripts to the prompt of model-backed
	// strategies.
	UseExamples bool
	// Examples are extra example scripts, typically taken from the catalog.
	Examples []string
}

func (r Request) category() string {
	if c := strings.TrimSpace(r.Category); c != "" {
		return c
	}
	return "Custom"
}

// Strategy produces script text for a request.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
