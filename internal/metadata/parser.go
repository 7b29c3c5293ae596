// Package metadata parses and renders the WORKFLOW_META header embedded in
// the leading comment of a workflow script.
//
// The block is a small indentation-based grammar: "key: value" pairs, nested
// mappings under "key:", sequences as "- item" lines or inline "[a, b]", and
// double quoted, single quoted or bare scalars. Comments start with "#"
// outside quotes. Tabs in indentation, inconsistent indentation, duplicate
// keys and unterminated quotes are errors that carry the file line.
package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zjrosen/autohub/internal/workflow"
)

// Sentinel is the line that opens a metadata block.
const Sentinel = "WORKFLOW_META:"

// ErrNoMetadata is returned when a file has no WORKFLOW_META block. Callers
// skip such files rather than reporting them.
var ErrNoMetadata = errors.New("no " + Sentinel + " block")

// codingCookie matches a PEP 263 encoding declaration.
var codingCookie = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*[-\w.]+`)

type srcLine struct {
	text string
	no   int
}

// Parse extracts the metadata block from content. path is used for error
// context and for the default name.
func Parse(path string, content []byte) (*workflow.Metadata, error) {
	comment, err := leadingComment(path, splitLines(content))
	if err != nil {
		return nil, err
	}

	body, err := extractBlock(path, comment)
	if err != nil {
		return nil, err
	}

	p, err := newParser(path, body)
	if err != nil {
		return nil, err
	}

	var root *node
	if len(p.lines) > 0 {
		root, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}

	return decode(path, root)
}

func splitLines(content []byte) []string {
	s := strings.TrimPrefix(string(content), "\ufeff")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// leadingComment returns the lines of the first documentation comment,
// skipping a shebang, encoding cookies and blank lines.
func leadingComment(path string, lines []string) ([]srcLine, error) {
	i := 0
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		i = 1
	}
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) != "" && !codingCookie.MatchString(lines[i]) {
			break
		}
		i++
	}
	if i >= len(lines) {
		return nil, ErrNoMetadata
	}

	first := strings.TrimSpace(lines[i])

	if first == Sentinel {
		out := make([]srcLine, 0, len(lines)-i)
		for ; i < len(lines); i++ {
			out = append(out, srcLine{text: lines[i], no: i + 1})
		}
		return out, nil
	}

	if fence, rest, ok := openFence(first); ok {
		return fencedComment(path, lines, i, fence, rest)
	}

	if strings.HasPrefix(first, "#") {
		var out []srcLine
		for ; i < len(lines); i++ {
			t := strings.TrimLeft(lines[i], " \t")
			if !strings.HasPrefix(t, "#") {
				break
			}
			out = append(out, srcLine{text: strings.TrimPrefix(t[1:], " "), no: i + 1})
		}
		return out, nil
	}

	return nil, ErrNoMetadata
}

func openFence(s string) (fence, rest string, ok bool) {
	t := s
	if len(t) > 0 && strings.ContainsRune("rRuU", rune(t[0])) {
		t = t[1:]
	}
	for _, f := range []string{`"""`, `'''`} {
		if strings.HasPrefix(t, f) {
			return f, t[len(f):], true
		}
	}
	return "", "", false
}

func fencedComment(path string, lines []string, i int, fence, rest string) ([]srcLine, error) {
	var out []srcLine
	openedAt := i + 1
	no := i + 1
	for {
		if idx := strings.Index(rest, fence); idx >= 0 {
			if s := rest[:idx]; strings.TrimSpace(s) != "" {
				out = append(out, srcLine{text: s, no: no})
			}
			return out, nil
		}
		out = append(out, srcLine{text: rest, no: no})
		i++
		if i >= len(lines) {
			break
		}
		rest = lines[i]
		no = i + 1
	}

	for _, l := range out {
		if strings.TrimSpace(l.text) == Sentinel {
			return nil, &workflow.MetadataParseError{Path: path, Line: openedAt, Msg: "unterminated docstring"}
		}
	}
	return nil, ErrNoMetadata
}

// extractBlock returns the lines indented under the sentinel.
func extractBlock(path string, comment []srcLine) ([]srcLine, error) {
	start := -1
	for k, l := range comment {
		if strings.TrimSpace(l.text) == Sentinel {
			start = k
			break
		}
	}
	if start < 0 {
		return nil, ErrNoMetadata
	}

	base := indentWidth(comment[start].text)
	k := start + 1
	var body []srcLine
	for ; k < len(comment); k++ {
		l := comment[k]
		if strings.TrimSpace(l.text) != "" && indentWidth(l.text) <= base {
			break
		}
		body = append(body, l)
	}

	for ; k < len(comment); k++ {
		if strings.TrimSpace(comment[k].text) == Sentinel {
			return nil, &workflow.MetadataParseError{Path: path, Line: comment[k].no, Msg: "duplicate " + Sentinel + " block"}
		}
	}
	return body, nil
}

func indentWidth(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

type nodeKind int

const (
	scalarNode nodeKind = iota
	mappingNode
	sequenceNode
)

// node is one value in the parsed block.
type node struct {
	kind   nodeKind
	line   int
	value  string
	quoted bool

	keys     []string
	fields   map[string]*node
	keyLines map[string]int

	items []*node
}

func (n *node) isNull() bool {
	return n.kind == scalarNode && !n.quoted && (n.value == "" || n.value == "~" || n.value == "null")
}

type blockLine struct {
	indent  int
	content string
	no      int
}

type parser struct {
	path  string
	lines []blockLine
	pos   int
}

func newParser(path string, body []srcLine) (*parser, error) {
	p := &parser{path: path}
	for _, l := range body {
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		trimmed := strings.TrimLeft(l.text, " \t")
		ws := l.text[:len(l.text)-len(trimmed)]
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.Contains(ws, "\t") {
			return nil, p.errorf(l.no, "tab character in indentation")
		}
		p.lines = append(p.lines, blockLine{
			indent:  len(ws),
			content: strings.TrimRight(trimmed, " \t"),
			no:      l.no,
		})
	}
	return p, nil
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &workflow.MetadataParseError{Path: p.path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseBlock() (*node, error) {
	l := p.lines[p.pos]
	if isSeqItem(l.content) {
		return p.parseSequence(l.indent)
	}
	return p.parseMapping(l.indent)
}

func isSeqItem(c string) bool {
	return c == "-" || strings.HasPrefix(c, "- ")
}

func (p *parser) parseMapping(indent int) (*node, error) {
	n := &node{
		kind:     mappingNode,
		line:     p.lines[p.pos].no,
		fields:   make(map[string]*node),
		keyLines: make(map[string]int),
	}

	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.indent < indent {
			break
		}
		if l.indent > indent {
			return nil, p.errorf(l.no, "inconsistent indentation")
		}
		if isSeqItem(l.content) {
			return nil, p.errorf(l.no, "sequence item where a key was expected")
		}

		key, rest, ok := splitKey(l.content)
		if !ok {
			return nil, p.errorf(l.no, "expected \"key: value\", got %q", l.content)
		}
		if _, dup := n.fields[key]; dup {
			return nil, p.errorf(l.no, "duplicate key %q", key)
		}
		p.pos++

		val, err := p.parseValue(l, rest)
		if err != nil {
			return nil, err
		}
		n.keys = append(n.keys, key)
		n.fields[key] = val
		n.keyLines[key] = l.no
	}

	return n, nil
}

func (p *parser) parseValue(l blockLine, rest string) (*node, error) {
	if rest == "" || strings.HasPrefix(rest, "#") {
		if p.pos < len(p.lines) {
			next := p.lines[p.pos]
			if next.indent > l.indent || (next.indent == l.indent && isSeqItem(next.content)) {
				return p.parseBlock()
			}
		}
		return &node{kind: scalarNode, line: l.no}, nil
	}

	if strings.HasPrefix(rest, "[") {
		return p.parseInline(l.no, rest)
	}
	if strings.HasPrefix(rest, "{") {
		return p.parseEmptyMapping(l.no, rest)
	}

	v, quoted, err := parseScalar(rest)
	if err != nil {
		return nil, p.errorf(l.no, "%v", err)
	}
	return &node{kind: scalarNode, line: l.no, value: v, quoted: quoted}, nil
}

func (p *parser) parseSequence(indent int) (*node, error) {
	n := &node{kind: sequenceNode, line: p.lines[p.pos].no}

	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.indent < indent {
			break
		}
		if l.indent > indent {
			return nil, p.errorf(l.no, "inconsistent indentation")
		}
		if !isSeqItem(l.content) {
			break
		}
		p.pos++

		item := strings.TrimSpace(strings.TrimPrefix(l.content, "-"))
		if item == "" || strings.HasPrefix(item, "#") {
			return nil, p.errorf(l.no, "empty sequence item")
		}
		if strings.HasPrefix(item, "[") {
			return nil, p.errorf(l.no, "nested sequences are not supported")
		}
		v, quoted, err := parseScalar(item)
		if err != nil {
			return nil, p.errorf(l.no, "%v", err)
		}
		n.items = append(n.items, &node{kind: scalarNode, line: l.no, value: v, quoted: quoted})
	}

	return n, nil
}

func (p *parser) parseInline(line int, s string) (*node, error) {
	n := &node{kind: sequenceNode, line: line}
	i := 1

	skip := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	for {
		skip()
		if i >= len(s) {
			return nil, p.errorf(line, "unterminated \"[\"")
		}
		if s[i] == ']' {
			i++
			break
		}

		var item *node
		switch s[i] {
		case '"', '\'':
			v, rest, err := unquote(s[i:])
			if err != nil {
				return nil, p.errorf(line, "%v", err)
			}
			i = len(s) - len(rest)
			item = &node{kind: scalarNode, line: line, value: v, quoted: true}
		default:
			j := i
			for j < len(s) && s[j] != ',' && s[j] != ']' {
				j++
			}
			v := strings.TrimSpace(s[i:j])
			if v == "" {
				return nil, p.errorf(line, "empty sequence item")
			}
			i = j
			item = &node{kind: scalarNode, line: line, value: v}
		}
		n.items = append(n.items, item)

		skip()
		if i >= len(s) {
			return nil, p.errorf(line, "unterminated \"[\"")
		}
		if s[i] == ',' {
			i++
			continue
		}
		if s[i] == ']' {
			i++
			break
		}
		return nil, p.errorf(line, "expected \",\" or \"]\" in list")
	}

	if rest := strings.TrimSpace(s[i:]); rest != "" && !strings.HasPrefix(rest, "#") {
		return nil, p.errorf(line, "unexpected text after list: %q", rest)
	}
	return n, nil
}

// parseEmptyMapping accepts "{}" with an optional trailing comment. Inline
// mappings with entries are not part of the header grammar.
func (p *parser) parseEmptyMapping(line int, s string) (*node, error) {
	inner, rest, ok := strings.Cut(s[1:], "}")
	if !ok {
		return nil, p.errorf(line, "unterminated \"{\"")
	}
	if strings.TrimSpace(inner) != "" {
		return nil, p.errorf(line, "inline mappings are not supported, use an indented block")
	}
	if rest = strings.TrimSpace(rest); rest != "" && !strings.HasPrefix(rest, "#") {
		return nil, p.errorf(line, "unexpected text after mapping: %q", rest)
	}
	return &node{
		kind:     mappingNode,
		line:     line,
		fields:   make(map[string]*node),
		keyLines: make(map[string]int),
	}, nil
}

// splitKey splits "key: rest". The colon must be followed by a space or end
// the line so values like URLs are not mistaken for keys.
func splitKey(content string) (key, rest string, ok bool) {
	if content == "" || content[0] == '"' || content[0] == '\'' {
		return "", "", false
	}
	for i := 0; i < len(content); i++ {
		if content[i] == ':' && (i+1 == len(content) || content[i+1] == ' ') {
			key = strings.TrimSpace(content[:i])
			if key == "" {
				return "", "", false
			}
			return key, strings.TrimSpace(content[i+1:]), true
		}
	}
	return "", "", false
}

func parseScalar(s string) (value string, quoted bool, err error) {
	if s[0] != '"' && s[0] != '\'' {
		if i := commentStart(s); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s), false, nil
	}

	v, rest, err := unquote(s)
	if err != nil {
		return "", false, err
	}
	if rest = strings.TrimSpace(rest); rest != "" && !strings.HasPrefix(rest, "#") {
		return "", false, fmt.Errorf("unexpected text after quoted value: %q", rest)
	}
	return v, true, nil
}

func commentStart(s string) int {
	for i := 1; i < len(s); i++ {
		if s[i] == '#' && (s[i-1] == ' ' || s[i-1] == '\t') {
			return i
		}
	}
	return -1
}

// unquote decodes the quoted string at the start of s and returns the text
// after the closing quote.
func unquote(s string) (value, rest string, err error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case q == '"' && c == '\\':
			if i+1 >= len(s) {
				return "", "", errors.New("unterminated quoted string")
			}
			i++
			switch s[i] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", "", fmt.Errorf("unknown escape sequence \\%c", s[i])
			}
		case c == q && q == '\'' && i+1 < len(s) && s[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == q:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("unterminated quoted string")
}
