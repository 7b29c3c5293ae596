package generate

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/zjrosen/autohub/internal/metadata"
	"github.com/zjrosen/autohub/internal/workflow"
)

// Intent is the kind of automation a description asks for.
type Intent string

const (
	IntentAsana          Intent = "asana"
	IntentExcelReport    Intent = "excel_report"
	IntentEmail          Intent = "email"
	IntentFileManagement Intent = "file_management"
	IntentDesktopRPA     Intent = "desktop_rpa"
	IntentGeneric        Intent = "generic"
)

// intentKeywords is checked in order; the first intent with a matching
// keyword wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentAsana, []string{"asana", "task", "project management", "roadmap", "sprint"}},
	{IntentExcelReport, []string{"excel", "spreadsheet", "workbook", "report", "chart"}},
	{IntentEmail, []string{"email", "outlook", "message", "inbox"}},
	{IntentFileManagement, []string{"file", "folder", "directory", "sharepoint", "document"}},
	{IntentDesktopRPA, []string{"window", "click", "type", "automate app"}},
}

// DetectIntent classifies description by keyword.
func DetectIntent(description string) Intent {
	lower := strings.ToLower(description)
	for _, ik := range intentKeywords {
		for _, kw := range ik.keywords {
			if strings.Contains(lower, kw) {
				return ik.intent
			}
		}
	}
	return IntentGeneric
}

// NameFromDescription builds a workflow name from the first four words.
func NameFromDescription(description string) string {
	words := strings.Fields(description)
	if len(words) > 4 {
		words = words[:4]
	}
	name := strings.Join(words, " ")
	if r := []rune(name); len(r) > 40 {
		name = string(r[:40]) + "..."
	}
	if name == "" {
		return "Generated Workflow"
	}
	return titleCase(name) + " Workflow"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

type paramSpec struct {
	name  string
	ptype workflow.ParamType
	desc  string
	opts  []workflow.ParameterOption
}

// intentParameters are the parameters guessed for each intent.
var intentParameters = map[Intent][]paramSpec{
	IntentAsana: {
		{name: "project", ptype: workflow.ParamString, desc: "Project name", opts: []workflow.ParameterOption{workflow.Required(true)}},
		{name: "task_name", ptype: workflow.ParamString, desc: "Task title", opts: []workflow.ParameterOption{workflow.Required(true)}},
		{name: "notes", ptype: workflow.ParamMultiline, desc: "Task notes"},
	},
	IntentExcelReport: {
		{name: "input_file", ptype: workflow.ParamFilePath, desc: "Input file", opts: []workflow.ParameterOption{workflow.Required(true)}},
		{name: "output_file", ptype: workflow.ParamString, desc: "Output file", opts: []workflow.ParameterOption{workflow.Required(true)}},
	},
	IntentEmail: {
		{name: "action", ptype: workflow.ParamChoice, opts: []workflow.ParameterOption{
			workflow.Required(true), workflow.WithChoices("send", "read"), workflow.WithDefault("send"),
		}},
	},
	IntentFileManagement: {
		{name: "source_folder", ptype: workflow.ParamFilePath, desc: "Source folder", opts: []workflow.ParameterOption{workflow.Required(true)}},
		{name: "dry_run", ptype: workflow.ParamBoolean, desc: "Only report what would change", opts: []workflow.ParameterOption{workflow.WithDefault(true)}},
	},
	IntentDesktopRPA: {
		{name: "window_title", ptype: workflow.ParamString, desc: "Title of the target window", opts: []workflow.ParameterOption{workflow.Required(true)}},
	},
}

func parametersFor(intent Intent) ([]*workflow.Parameter, error) {
	specs := intentParameters[intent]
	params := make([]*workflow.Parameter, 0, len(specs))
	for _, s := range specs {
		opts := append([]workflow.ParameterOption{workflow.WithDescription(s.desc)}, s.opts...)
		p, err := workflow.NewParameter(s.name, s.ptype, opts...)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

//go:embed templates/workflow.py.tmpl
var pythonTemplate string

var scriptTemplate = template.Must(template.New("workflow.py").Funcs(template.FuncMap{
	"py": pyString,
}).Parse(pythonTemplate))

// scriptData feeds workflow.py.tmpl.
type scriptData struct {
	Docstring string
	ClassName string
	Intent    Intent
	Required  []string
	Params    []string
}

// RenderScript renders a loadable Python workflow for m. The intent picks
// the body of execute.
func RenderScript(m *workflow.Metadata, intent Intent) (string, error) {
	data := scriptData{
		Docstring: metadata.RenderDocstring(m),
		ClassName: className(m.Name),
		Intent:    intent,
	}
	for _, p := range m.Parameters {
		data.Params = append(data.Params, p.Name())
		if p.Required() {
			data.Required = append(data.Required, p.Name())
		}
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render script: %w", err)
	}
	return buf.String(), nil
}

func className(name string) string {
	var b strings.Builder
	for _, w := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		r := []rune(w)
		if r[0] > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToUpper(r[0]))
		for _, c := range r[1:] {
			if c <= unicode.MaxASCII {
				b.WriteRune(c)
			}
		}
	}
	s := b.String()
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "Generated" + s
	}
	return s
}

// pyString quotes s as a Python string literal.
func pyString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

// TemplateStrategy fills a fixed skeleton with parameters guessed from the
// description. It needs no network access.
type TemplateStrategy struct{}

// Name implements Strategy.
func (TemplateStrategy) Name() string { return "template" }

// Generate implements Strategy.
func (TemplateStrategy) Generate(_ context.Context, req Request) (string, error) {
	intent := DetectIntent(req.Description)
	params, err := parametersFor(intent)
	if err != nil {
		return "", err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = workflow.DefaultDescription
	}
	m := &workflow.Metadata{
		Name:        NameFromDescription(req.Description),
		Description: description,
		Category:    req.category(),
		Version:     workflow.DefaultVersion,
		Author:      "autohub",
		Tags:        []string{"generated", string(intent)},
		Parameters:  params,
	}
	return RenderScript(m, intent)
}

// Skeleton returns the minimal workflow used when every strategy failed.
func Skeleton(req Request) (string, error) {
	m := &workflow.Metadata{
		Name:        "Generated Workflow",
		Description: workflow.DefaultDescription,
		Category:    req.category(),
		Version:     workflow.DefaultVersion,
		Author:      "autohub",
	}
	return RenderScript(m, IntentGeneric)
}
