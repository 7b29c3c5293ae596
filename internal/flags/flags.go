// Package flags holds the boolean switches read from the "flags" section of
// the config file. Unset and unknown flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/autohub/internal/log"
)

const (
	// FlagDisableBuiltins hides the built-in workflows from the catalog.
	FlagDisableBuiltins = "disable-builtins"

	// FlagDisableParseCache parses every candidate file on every scan.
	FlagDisableParseCache = "disable-parse-cache"

	// FlagStrictScan makes catalog:scan exit non-zero when the scan produced
	// discovery errors or collision warnings.
	FlagStrictScan = "strict-scan"
)

// Known describes every flag the application reads.
var Known = map[string]string{
	FlagDisableBuiltins:   "hide the built-in workflows",
	FlagDisableParseCache: "re-parse every workflow header on every scan",
	FlagStrictScan:        "fail catalog:scan on discovery errors or warnings",
}

// Registry is the read-only flag state for one run.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from the config map. A nil map disables everything.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: maps.Clone(flags)}
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	for _, name := range r.Unknown() {
		log.Warn(log.CatConfig, "Ignoring unknown flag", "flag", name)
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled reports whether name is set to true. Nil-safe.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Unknown returns the configured flag names that nothing reads, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name := range r.flags {
		if _, ok := Known[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
