package presentation

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// noMarginStyle is a JSON style that removes document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps glamour for terminal markdown output.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// NewRenderer creates a markdown renderer with the given width and style.
// style should be "dark", "light" or "notty". Defaults to "dark" if empty.
// A fixed style avoids the terminal background query WithAutoStyle makes.
func NewRenderer(width int, style string) (*Renderer, error) {
	if style == "" {
		style = "dark"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Render transforms markdown to styled terminal output.
func (r *Renderer) Render(markdown string) (string, error) {
	return r.renderer.Render(markdown)
}

// WorkflowMarkdown describes a workflow as a markdown document.
func WorkflowMarkdown(w WorkflowDTO) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", w.Name)
	if w.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", w.Description)
	}
	fmt.Fprintf(&b, "- **ID:** `%s`\n", w.ID)
	fmt.Fprintf(&b, "- **Category:** %s\n", w.Category)
	if w.Version != "" {
		fmt.Fprintf(&b, "- **Version:** %s\n", w.Version)
	}
	if w.Author != "" {
		fmt.Fprintf(&b, "- **Author:** %s\n", w.Author)
	}
	if len(w.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(w.Tags, ", "))
	}
	fmt.Fprintf(&b, "- **Source:** %s (`%s`)\n", w.Source, w.Path)

	if len(w.Parameters) == 0 {
		return b.String()
	}
	b.WriteString("\n## Parameters\n\n")
	b.WriteString("| Name | Type | Required | Default | Description |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, p := range w.Parameters {
		def := ""
		if p.Default != nil {
			def = fmt.Sprintf("`%v`", p.Default)
		}
		desc := p.Description
		if len(p.Choices) > 0 {
			desc = strings.TrimSpace(desc + " (one of: " + strings.Join(p.Choices, ", ") + ")")
		}
		required := "no"
		if p.Required {
			required = "yes"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n", p.Name, p.Type, required, def, escapeCell(desc))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
