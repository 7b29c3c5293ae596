package catalog

import (
	"reflect"
	"slices"
)

// Changes lists the ids that differ between two snapshots.
type Changes struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Diff compares two snapshots. A nil snapshot is treated as empty. An id is
// changed when its digest, source path or metadata differ.
func Diff(older, newer *Snapshot) Changes {
	if older == nil {
		older = emptySnapshot()
	}
	if newer == nil {
		newer = emptySnapshot()
	}

	var c Changes
	for id, nd := range newer.byID {
		od, ok := older.byID[id]
		switch {
		case !ok:
			c.Added = append(c.Added, id)
		case od.Digest() != nd.Digest(),
			od.SourcePath() != nd.SourcePath(),
			!reflect.DeepEqual(od.Metadata(), nd.Metadata()):
			c.Changed = append(c.Changed, id)
		}
	}
	for id := range older.byID {
		if _, ok := newer.byID[id]; !ok {
			c.Removed = append(c.Removed, id)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	slices.Sort(c.Changed)
	return c
}
