package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ParamType is the closed set of input types a workflow parameter may have.
type ParamType string

const (
	ParamString    ParamType = "string"
	ParamMultiline ParamType = "multiline-text"
	ParamFilePath  ParamType = "file-path"
	ParamChoice    ParamType = "choice"
	ParamBoolean   ParamType = "boolean"
)

// paramAliases maps accepted spellings onto canonical types.
var paramAliases = map[string]ParamType{
	"string":         ParamString,
	"str":            ParamString,
	"multiline-text": ParamMultiline,
	"multiline":      ParamMultiline,
	"text":           ParamMultiline,
	"textarea":       ParamMultiline,
	"file-path":      ParamFilePath,
	"file":           ParamFilePath,
	"path":           ParamFilePath,
	"choice":         ParamChoice,
	"select":         ParamChoice,
	"boolean":        ParamBoolean,
	"bool":           ParamBoolean,
}

// ParseParamType resolves a type name (or accepted alias) to its canonical
// ParamType.
func ParseParamType(name string) (ParamType, error) {
	if t, ok := paramAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q (must be string, multiline-text, file-path, choice, or boolean)", ErrUnknownParamType, name)
}

// IsValid returns true if the type is one of the canonical types.
func (t ParamType) IsValid() bool {
	switch t {
	case ParamString, ParamMultiline, ParamFilePath, ParamChoice, ParamBoolean:
		return true
	default:
		return false
	}
}

// IsText reports whether values of this type are strings.
func (t ParamType) IsText() bool {
	return t == ParamString || t == ParamMultiline || t == ParamFilePath || t == ParamChoice
}

// Accepts reports whether v has the runtime type this ParamType requires.
func (t ParamType) Accepts(v any) bool {
	switch t {
	case ParamBoolean:
		_, ok := v.(bool)
		return ok
	case ParamString, ParamMultiline, ParamFilePath, ParamChoice:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

// Parameter errors
var (
	ErrUnknownParamType      = errors.New("unknown parameter type")
	ErrParameterEmptyName    = errors.New("parameter name cannot be empty")
	ErrParameterEmptyChoices = errors.New("choices cannot be empty for choice parameters")
	ErrParameterChoicesType  = errors.New("choices are only allowed for choice parameters")
	ErrDefaultTypeMismatch   = errors.New("default value does not match parameter type")
	ErrDefaultNotInChoices   = errors.New("default value must be one of choices")
)

// Parameter describes one typed workflow input.
type Parameter struct {
	name         string
	description  string
	paramType    ParamType
	required     bool
	hasDefault   bool
	defaultValue any
	choices      []string
	line         int
}

// ParameterOption configures a Parameter under construction.
type ParameterOption func(*Parameter)

// WithDescription sets the help text.
func WithDescription(desc string) ParameterOption {
	return func(p *Parameter) { p.description = desc }
}

// Required marks the parameter as required.
func Required(required bool) ParameterOption {
	return func(p *Parameter) { p.required = required }
}

// WithDefault sets the default value.
func WithDefault(v any) ParameterOption {
	return func(p *Parameter) {
		p.hasDefault = true
		p.defaultValue = v
	}
}

// WithChoices sets the allowed values of a choice parameter.
func WithChoices(choices ...string) ParameterOption {
	return func(p *Parameter) { p.choices = slices.Clone(choices) }
}

// AtLine records the source line the parameter was declared on.
func AtLine(line int) ParameterOption {
	return func(p *Parameter) { p.line = line }
}

// NewParameter creates a Parameter and enforces the schema invariants:
// choice parameters carry a non-empty choices list, a default matches the
// type, and a choice default is one of the choices.
func NewParameter(name string, t ParamType, opts ...ParameterOption) (*Parameter, error) {
	if name == "" {
		return nil, ErrParameterEmptyName
	}
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParamType, t)
	}

	p := &Parameter{name: name, paramType: t}
	for _, opt := range opts {
		opt(p)
	}

	if t == ParamChoice && len(p.choices) == 0 {
		return nil, ErrParameterEmptyChoices
	}
	if t != ParamChoice && len(p.choices) > 0 {
		return nil, ErrParameterChoicesType
	}
	if p.hasDefault {
		if !t.Accepts(p.defaultValue) {
			return nil, fmt.Errorf("%w: %s wants %s, got %T", ErrDefaultTypeMismatch, name, t, p.defaultValue)
		}
		if t == ParamChoice && !slices.Contains(p.choices, p.defaultValue.(string)) {
			return nil, fmt.Errorf("%w: %q", ErrDefaultNotInChoices, p.defaultValue)
		}
	}

	return p, nil
}

// Name returns the parameter name (the argument key).
func (p *Parameter) Name() string {
	return p.name
}

// Description returns the help text.
func (p *Parameter) Description() string {
	return p.description
}

// Type returns the parameter type.
func (p *Parameter) Type() ParamType {
	return p.paramType
}

// Required returns whether the parameter must be supplied.
func (p *Parameter) Required() bool {
	return p.required
}

// Default returns the default value and whether one was declared.
func (p *Parameter) Default() (any, bool) {
	return p.defaultValue, p.hasDefault
}

// Choices returns a copy of the allowed values for choice parameters.
func (p *Parameter) Choices() []string {
	return slices.Clone(p.choices)
}

// Allows reports whether v is a member of the choices list.
func (p *Parameter) Allows(v string) bool {
	return slices.Contains(p.choices, v)
}

// Line returns the source line of the declaration (0 when unknown).
func (p *Parameter) Line() int {
	return p.line
}
