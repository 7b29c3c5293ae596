package loader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	pyDefPattern = regexp.MustCompile(`(?m)^[ \t]*def[ \t]+(configure|validate|execute)[ \t]*\(`)
	wordPattern  = regexp.MustCompile(`\b(configure|validate|execute)\b`)
)

// CheckSource statically verifies that content looks like it implements the
// lifecycle. Python files must define configure, validate and execute
// (as module functions or methods); other protocol scripts must at least
// name all three operations. Files of unknown type pass.
func CheckSource(path string, content []byte) error {
	var found [][]byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		for _, m := range pyDefPattern.FindAllSubmatch(content, -1) {
			found = append(found, m[1])
		}
	case ".sh", ".ps1":
		found = wordPattern.FindAll(content, -1)
	default:
		return nil
	}

	have := make(map[string]bool, len(found))
	for _, f := range found {
		have[string(f)] = true
	}

	var missing []string
	for _, op := range lifecycleOps {
		if !have[op] {
			missing = append(missing, op)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingOperations, strings.Join(missing, ", "))
	}
	return nil
}
