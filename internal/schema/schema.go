// Package schema validates invocation arguments against a workflow's
// parameter list.
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/zjrosen/autohub/internal/workflow"
)

// Resolve applies defaults and validates args against params. It returns
// the effective argument map, or a *workflow.ValidationError listing every
// failing field. Unknown argument names are rejected.
func Resolve(params []*workflow.Parameter, args map[string]any) (map[string]any, error) {
	verr := &workflow.ValidationError{}
	out := make(map[string]any, len(params))

	for _, p := range params {
		name := p.Name()
		v, ok := args[name]
		if !ok || v == nil {
			v, ok = p.Default()
		}
		if !ok {
			if p.Required() {
				verr.Add(name, "is required")
			}
			continue
		}

		if !p.Type().Accepts(v) {
			verr.Add(name, "must be a %s, got %s", p.Type(), describe(v))
			continue
		}
		if s, isString := v.(string); isString {
			if p.Required() && s == "" {
				verr.Add(name, "is required")
				continue
			}
			if p.Type() == workflow.ParamChoice && !p.Allows(s) {
				verr.Add(name, "must be one of %s, got %q", strings.Join(p.Choices(), ", "), s)
				continue
			}
		}
		out[name] = v
	}

	var unknown []string
	for name := range args {
		if !slices.ContainsFunc(params, func(p *workflow.Parameter) bool { return p.Name() == name }) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		verr.Add(name, "unknown argument")
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Coerce converts "key=value" style CLI strings into typed values.
// Booleans accept the strconv.ParseBool forms plus yes/no. Keys without a
// matching parameter are passed through as strings so Resolve can report
// them.
func Coerce(params []*workflow.Parameter, raw map[string]string) (map[string]any, error) {
	verr := &workflow.ValidationError{}
	out := make(map[string]any, len(raw))

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := raw[key]
		idx := slices.IndexFunc(params, func(p *workflow.Parameter) bool { return p.Name() == key })
		if idx < 0 || params[idx].Type() != workflow.ParamBoolean {
			out[key] = s
			continue
		}
		b, err := parseBool(s)
		if err != nil {
			verr.Add(key, "must be true or false, got %q", s)
			continue
		}
		out[key] = b
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

// Widget is the input control a form should use for a parameter.
type Widget string

const (
	WidgetText     Widget = "text"
	WidgetTextarea Widget = "textarea"
	WidgetFile     Widget = "file"
	WidgetSelect   Widget = "select"
	WidgetCheckbox Widget = "checkbox"
)

// FormField describes one input of a generated parameter form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Widget   Widget   `json:"widget"`
	Help     string   `json:"help,omitempty"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

// FormFields returns one field per parameter, in declaration order.
func FormFields(params []*workflow.Parameter) []FormField {
	fields := make([]FormField, 0, len(params))
	for _, p := range params {
		f := FormField{
			Name:     p.Name(),
			Label:    label(p.Name()),
			Widget:   widgetFor(p.Type()),
			Help:     p.Description(),
			Required: p.Required(),
			Choices:  p.Choices(),
		}
		if def, ok := p.Default(); ok {
			f.Default = fmt.Sprint(def)
		}
		fields = append(fields, f)
	}
	return fields
}

func widgetFor(t workflow.ParamType) Widget {
	switch t {
	case workflow.ParamMultiline:
		return WidgetTextarea
	case workflow.ParamFilePath:
		return WidgetFile
	case workflow.ParamChoice:
		return WidgetSelect
	case workflow.ParamBoolean:
		return WidgetCheckbox
	default:
		return WidgetText
	}
}

// label turns "source_folder" into "Source Folder".
func label(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
