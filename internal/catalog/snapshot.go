package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zjrosen/autohub/internal/workflow"
)

// ErrNotFound is returned by Lookup for an unknown workflow id.
var ErrNotFound = errors.New("workflow not found")

// WarningKind classifies a non-fatal scan condition.
type WarningKind string

const (
	// WarnCollision is a second file deriving an id that is already taken.
	WarnCollision WarningKind = "collision"
	// WarnMissingRoot is a configured root that does not exist.
	WarnMissingRoot WarningKind = "missing_root"
)

// Warning is a non-fatal scan condition.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Kept     string      `json:"kept,omitempty"`
	Shadowed string      `json:"shadowed,omitempty"`
	Root     string      `json:"root,omitempty"`
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnCollision:
		return "id " + w.ID + " from " + w.Shadowed + " shadowed by " + w.Kept
	case WarnMissingRoot:
		return "root " + w.Root + " does not exist"
	default:
		return string(w.Kind)
	}
}

// Snapshot is one immutable catalog generation. Callers must not modify
// the slices it returns.
type Snapshot struct {
	Version   uint64
	ScannedAt time.Time
	Roots     []string
	Errors    []*workflow.DiscoveryError
	Warnings  []Warning

	byID    map[string]*workflow.Descriptor
	ordered []*workflow.Descriptor
}

func emptySnapshot() *Snapshot {
	return &Snapshot{byID: map[string]*workflow.Descriptor{}}
}

func newSnapshot(version uint64, roots []string, descs []*workflow.Descriptor, errs []*workflow.DiscoveryError, warns []Warning) *Snapshot {
	byID := make(map[string]*workflow.Descriptor, len(descs))
	for _, d := range descs {
		byID[d.ID()] = d
	}
	ordered := slices.Clone(descs)
	slices.SortFunc(ordered, displayOrder)
	return &Snapshot{
		Version:   version,
		ScannedAt: time.Now(),
		Roots:     slices.Clone(roots),
		Errors:    errs,
		Warnings:  warns,
		byID:      byID,
		ordered:   ordered,
	}
}

func displayOrder(a, b *workflow.Descriptor) int {
	if c := strings.Compare(a.Category(), b.Category()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name(), b.Name()); c != 0 {
		return c
	}
	return strings.Compare(a.ID(), b.ID())
}

// Len returns the number of descriptors.
func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// Lookup returns the descriptor for id.
func (s *Snapshot) Lookup(id string) (*workflow.Descriptor, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// List returns descriptors in display order (category, name, id). An empty
// category returns all of them.
func (s *Snapshot) List(category string) []*workflow.Descriptor {
	if category == "" {
		return slices.Clone(s.ordered)
	}
	var out []*workflow.Descriptor
	for _, d := range s.ordered {
		if d.Category() == category {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (s *Snapshot) Categories() []string {
	var cats []string
	for _, d := range s.ordered {
		if len(cats) == 0 || cats[len(cats)-1] != d.Category() {
			cats = append(cats, d.Category())
		}
	}
	return cats
}

// IDs returns every id, sorted.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// String describes the snapshot for logs.
func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot v%d (%d workflows, %d errors)", s.Version, s.Len(), len(s.Errors))
}
