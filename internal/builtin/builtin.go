// Package builtin provides workflows compiled into the binary. Their
// metadata lives in embedded files parsed by the same parser as scripts.
package builtin

import (
	"context"
	"embed"
	"fmt"
	"path"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/workflow"
)

//go:embed meta/*.meta
var metaFS embed.FS

// definition pairs an embedded metadata file with its instance factory.
type definition struct {
	id      string
	newInst func() workflow.Instance
}

var definitions = []definition{
	{id: "echo", newInst: func() workflow.Instance { return &echo{} }},
	{id: "organize_files", newInst: func() workflow.Instance { return &organizer{} }},
}

// Workflows returns every built-in workflow for the catalog.
func Workflows() []catalog.BuiltinWorkflow {
	out := make([]catalog.BuiltinWorkflow, 0, len(definitions))
	for _, def := range definitions {
		content, err := metaFS.ReadFile(path.Join("meta", def.id+".meta"))
		if err != nil {
			panic(fmt.Sprintf("builtin %s: missing metadata: %v", def.id, err))
		}
		out = append(out, catalog.BuiltinWorkflow{
			ID:      def.id,
			Path:    "builtin://" + def.id,
			Content: content,
			Entry:   factory(def.newInst),
		})
	}
	return out
}

func factory(newInst func() workflow.Instance) workflow.EntryPoint {
	return workflow.EntryPointFunc(func(context.Context) (workflow.Instance, error) {
		return newInst(), nil
	})
}
