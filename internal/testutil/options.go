package testutil

import "strings"

// ParamOption configures a declared parameter.
type ParamOption func(*paramData)

// Required marks the parameter required.
func Required() ParamOption {
	return func(p *paramData) { p.required = true }
}

// Default sets the raw default value as written in the header.
func Default(raw string) ParamOption {
	return func(p *paramData) { p.def = raw }
}

// Choices sets the choice list.
func Choices(choices ...string) ParamOption {
	return func(p *paramData) { p.choices = choices }
}

// ArgExtractor returns a shell snippet that stores the string argument
// named arg from the current request line into the variable v.
func ArgExtractor(v, arg string) string {
	return v + `=$(printf '%s\n' "$line" | sed -n 's/.*"` + arg + `":"\([^"]*\)".*/\1/p')`
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
