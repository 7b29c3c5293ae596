package metadata

import (
	"fmt"
	"strings"

	"github.com/zjrosen/autohub/internal/workflow"
)

// Render returns the canonical block for m: the sentinel followed by
// two-space indented keys with every string double quoted. Parameter names
// are written bare, so they must be valid keys (as produced by Parse).
func Render(m *workflow.Metadata) string {
	var b strings.Builder
	b.WriteString(Sentinel)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "  name: %s\n", quote(m.Name))
	fmt.Fprintf(&b, "  description: %s\n", quote(m.Description))
	fmt.Fprintf(&b, "  category: %s\n", quote(m.Category))
	fmt.Fprintf(&b, "  version: %s\n", quote(m.Version))
	fmt.Fprintf(&b, "  author: %s\n", quote(m.Author))
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "  tags: %s\n", inlineList(m.Tags))
	}

	if len(m.Parameters) > 0 {
		b.WriteString("  parameters:\n")
		for _, p := range m.Parameters {
			fmt.Fprintf(&b, "    %s:\n", p.Name())
			fmt.Fprintf(&b, "      type: %s\n", p.Type())
			if p.Description() != "" {
				fmt.Fprintf(&b, "      description: %s\n", quote(p.Description()))
			}
			fmt.Fprintf(&b, "      required: %t\n", p.Required())
			if def, ok := p.Default(); ok {
				switch v := def.(type) {
				case bool:
					fmt.Fprintf(&b, "      default: %t\n", v)
				case string:
					fmt.Fprintf(&b, "      default: %s\n", quote(v))
				}
			}
			if choices := p.Choices(); len(choices) > 0 {
				fmt.Fprintf(&b, "      choices: %s\n", inlineList(choices))
			}
		}
	}

	return b.String()
}

// RenderDocstring wraps the block in a Python module docstring.
func RenderDocstring(m *workflow.Metadata) string {
	return `"""` + "\n" + Render(m) + `"""` + "\n"
}

// RenderComment renders the block as "#" comment lines, suitable for shell
// and PowerShell scripts.
func RenderComment(m *workflow.Metadata) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(Render(m), "\n"), "\n") {
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\t", `\t`,
	"\r", `\r`,
)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

func inlineList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
