package metadata

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/zjrosen/autohub/internal/workflow"
)

type decoder struct {
	path string
}

func (d *decoder) errorf(line int, format string, args ...any) error {
	return &workflow.MetadataParseError{Path: d.path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// decode maps the parsed tree onto Metadata, filling documented defaults for
// missing keys. Unknown keys are ignored.
func decode(path string, root *node) (*workflow.Metadata, error) {
	m := &workflow.Metadata{
		Name:        DeriveName(path),
		Description: workflow.DefaultDescription,
		Category:    workflow.DefaultCategory,
		Version:     workflow.DefaultVersion,
		Author:      workflow.DefaultAuthor,
	}
	if root == nil {
		return m, nil
	}

	d := &decoder{path: path}
	if root.kind != mappingNode {
		return nil, d.errorf(root.line, "metadata block must be a mapping")
	}

	for _, key := range root.keys {
		n := root.fields[key]
		var err error
		switch key {
		case "name":
			err = d.setString(n, key, &m.Name)
		case "description":
			err = d.setString(n, key, &m.Description)
		case "category":
			err = d.setString(n, key, &m.Category)
		case "version":
			err = d.setString(n, key, &m.Version)
		case "author":
			err = d.setString(n, key, &m.Author)
		case "tags":
			m.Tags, err = d.stringList(n, key, true)
		case "parameters":
			m.Parameters, err = d.parameters(n)
		}
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// setString overwrites dst only when the value is non-empty.
func (d *decoder) setString(n *node, key string, dst *string) error {
	s, err := d.scalar(n, key)
	if err != nil {
		return err
	}
	if s != "" {
		*dst = s
	}
	return nil
}

func (d *decoder) scalar(n *node, key string) (string, error) {
	if n.kind != scalarNode {
		return "", d.errorf(n.line, "%s must be a scalar", key)
	}
	if n.isNull() {
		return "", nil
	}
	return n.value, nil
}

func (d *decoder) stringList(n *node, key string, allowScalar bool) ([]string, error) {
	if n.isNull() {
		return nil, nil
	}
	var out []string
	switch n.kind {
	case sequenceNode:
		for _, item := range n.items {
			out = append(out, item.value)
		}
	case scalarNode:
		if !allowScalar {
			return nil, d.errorf(n.line, "%s must be a list", key)
		}
		for _, part := range strings.Split(n.value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	default:
		return nil, d.errorf(n.line, "%s must be a list", key)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (d *decoder) boolean(n *node, key string) (bool, error) {
	if n.kind != scalarNode {
		return false, d.errorf(n.line, "%s must be true or false", key)
	}
	switch strings.ToLower(n.value) {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	}
	return false, d.errorf(n.line, "%s must be true or false, got %q", key, n.value)
}

func (d *decoder) parameters(n *node) ([]*workflow.Parameter, error) {
	if n.isNull() {
		return nil, nil
	}
	if n.kind != mappingNode {
		return nil, d.errorf(n.line, "parameters must be a mapping of name to definition")
	}

	params := make([]*workflow.Parameter, 0, len(n.keys))
	for _, name := range n.keys {
		p, err := d.parameter(name, n.keyLines[name], n.fields[name])
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func (d *decoder) parameter(name string, line int, n *node) (*workflow.Parameter, error) {
	if n.kind != mappingNode {
		return nil, d.errorf(line, "parameter %q must be a mapping", name)
	}

	ptype := workflow.ParamString
	if tn, ok := n.fields["type"]; ok {
		s, err := d.scalar(tn, "type")
		if err != nil {
			return nil, err
		}
		if s != "" {
			ptype, err = workflow.ParseParamType(s)
			if err != nil {
				return nil, d.errorf(tn.line, "parameter %q: unknown type %q", name, s)
			}
		}
	}

	opts := []workflow.ParameterOption{workflow.AtLine(line)}

	if dn, ok := n.fields["description"]; ok {
		s, err := d.scalar(dn, "description")
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.WithDescription(s))
	}

	if rn, ok := n.fields["required"]; ok && !rn.isNull() {
		req, err := d.boolean(rn, "required")
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.Required(req))
	}

	if cn, ok := n.fields["choices"]; ok {
		choices, err := d.stringList(cn, "choices", false)
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.WithChoices(choices...))
	}

	if dn, ok := n.fields["default"]; ok && !dn.isNull() {
		if ptype == workflow.ParamBoolean {
			v, err := d.boolean(dn, "default")
			if err != nil {
				return nil, err
			}
			opts = append(opts, workflow.WithDefault(v))
		} else {
			s, err := d.scalar(dn, "default")
			if err != nil {
				return nil, err
			}
			opts = append(opts, workflow.WithDefault(s))
		}
	}

	p, err := workflow.NewParameter(name, ptype, opts...)
	if err != nil {
		return nil, d.errorf(line, "parameter %q: %v", name, err)
	}
	return p, nil
}

// DeriveName turns a file name into a display name: the extension is
// dropped, "_" and "-" become spaces and each word is title cased.
// "weekly_report.py" becomes "Weekly Report".
func DeriveName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}

	if len(words) == 0 {
		return "Untitled Workflow"
	}
	return strings.Join(words, " ")
}
