// Package testutil builds workflow script fixtures for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Default protocol replies.
const (
	DescribeOK  = `{"ok":true,"operations":["configure","validate","execute"]}`
	ConfigureOK = `{"ok":true}`
	ValidateOK  = `{"ok":true,"valid":true}`
	ExecuteOK   = `{"ok":true,"result":{"status":"success"}}`
)

// paramData holds one parameter declaration.
type paramData struct {
	name     string
	ptype    string
	required bool
	def      string
	choices  []string
}

// ScriptBuilder assembles a /bin/sh workflow that speaks the lifecycle line
// protocol: it reads one JSON request per line and answers per operation.
type ScriptBuilder struct {
	name     string
	category string
	extra    []string
	params   []paramData
	preamble []string
	handlers map[string]string
	noMeta   bool
}

// NewScript starts a script whose metadata name is name.
func NewScript(name string) *ScriptBuilder {
	return &ScriptBuilder{
		name: name,
		handlers: map[string]string{
			"describe":  reply(DescribeOK),
			"configure": reply(ConfigureOK),
			"validate":  reply(ValidateOK),
			"execute":   reply(ExecuteOK),
		},
	}
}

// WithCategory sets the metadata category.
func (b *ScriptBuilder) WithCategory(category string) *ScriptBuilder {
	b.category = category
	return b
}

// WithMetaLine appends a raw line (relative to the block indent) to the
// metadata block.
func (b *ScriptBuilder) WithMetaLine(line string) *ScriptBuilder {
	b.extra = append(b.extra, line)
	return b
}

// WithParam declares a parameter.
func (b *ScriptBuilder) WithParam(name, ptype string, opts ...ParamOption) *ScriptBuilder {
	p := paramData{name: name, ptype: ptype}
	for _, opt := range opts {
		opt(&p)
	}
	b.params = append(b.params, p)
	return b
}

// WithoutMetadata omits the metadata header entirely.
func (b *ScriptBuilder) WithoutMetadata() *ScriptBuilder {
	b.noMeta = true
	return b
}

// WithPreamble adds a shell line that runs before the request loop.
func (b *ScriptBuilder) WithPreamble(line string) *ScriptBuilder {
	b.preamble = append(b.preamble, line)
	return b
}

// WithHandler replaces the shell body run for op.
func (b *ScriptBuilder) WithHandler(op, body string) *ScriptBuilder {
	b.handlers[op] = body
	return b
}

// WithReply makes op answer with the given JSON line.
func (b *ScriptBuilder) WithReply(op, json string) *ScriptBuilder {
	return b.WithHandler(op, reply(json))
}

// FailAt makes op answer with ok=false and msg.
func (b *ScriptBuilder) FailAt(op, msg string) *ScriptBuilder {
	return b.WithReply(op, fmt.Sprintf(`{"ok":false,"error":%q}`, msg))
}

// String renders the script.
func (b *ScriptBuilder) String() string {
	var s strings.Builder
	s.WriteString("#!/bin/sh\n")
	if !b.noMeta {
		s.WriteString("# WORKFLOW_META:\n")
		fmt.Fprintf(&s, "#   name: %q\n", b.name)
		if b.category != "" {
			fmt.Fprintf(&s, "#   category: %q\n", b.category)
		}
		for _, line := range b.extra {
			fmt.Fprintf(&s, "#   %s\n", line)
		}
		if len(b.params) > 0 {
			s.WriteString("#   parameters:\n")
			for _, p := range b.params {
				fmt.Fprintf(&s, "#     %s:\n", p.name)
				fmt.Fprintf(&s, "#       type: %s\n", p.ptype)
				fmt.Fprintf(&s, "#       required: %t\n", p.required)
				if p.def != "" {
					fmt.Fprintf(&s, "#       default: %s\n", p.def)
				}
				if len(p.choices) > 0 {
					fmt.Fprintf(&s, "#       choices: [%s]\n", strings.Join(p.choices, ", "))
				}
			}
		}
	}
	s.WriteString("\n")
	for _, line := range b.preamble {
		s.WriteString(line + "\n")
	}
	s.WriteString("while IFS= read -r line; do\n")
	s.WriteString("  case \"$line\" in\n")
	for _, op := range []string{"describe", "configure", "validate", "execute"} {
		fmt.Fprintf(&s, "    *'\"op\":\"%s\"'*)\n      %s\n      ;;\n", op, b.handlers[op])
	}
	s.WriteString("  esac\n")
	s.WriteString("done\n")
	return s.String()
}

// Write renders the script to dir/rel and returns the full path.
func (b *ScriptBuilder) Write(t *testing.T, dir, rel string) string {
	t.Helper()
	return WriteFile(t, dir, rel, b.String())
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func reply(json string) string {
	return "printf '%s\\n' '" + json + "'"
}
