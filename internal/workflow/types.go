package workflow

import (
	"errors"
	"slices"
)

// Source identifies where a workflow came from.
type Source string

const (
	// SourceUser marks workflows discovered under a configured root.
	SourceUser Source = "user"
	// SourceBuiltIn marks workflows compiled into the binary.
	SourceBuiltIn Source = "built-in"
)

// Metadata defaults applied when the header omits a key.
const (
	DefaultDescription = "No description provided"
	DefaultCategory    = "Custom"
	DefaultVersion     = "1.0.0"
	DefaultAuthor      = "Unknown"
)

// Metadata is the parsed content of a WORKFLOW_META block.
type Metadata struct {
	Name        string
	Description string
	Category    string
	Version     string
	Author      string
	Tags        []string
	Parameters  []*Parameter
}

// Parameter returns the named parameter, or nil.
func (m *Metadata) Parameter(name string) *Parameter {
	for _, p := range m.Parameters {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Clone returns a copy whose slices can be modified independently.
// Parameters are immutable and shared.
func (m *Metadata) Clone() *Metadata {
	c := *m
	c.Tags = slices.Clone(m.Tags)
	c.Parameters = slices.Clone(m.Parameters)
	return &c
}

// Descriptor errors
var (
	ErrDescriptorEmptyID    = errors.New("descriptor id cannot be empty")
	ErrDescriptorNoMetadata = errors.New("descriptor metadata cannot be nil")
	ErrDescriptorNoEntry    = errors.New("descriptor entry point cannot be nil")
)

// Descriptor identifies one discoverable workflow. Descriptors are never
// mutated; a rescan builds new ones.
type Descriptor struct {
	id         string
	meta       *Metadata
	sourcePath string
	root       string
	source     Source
	digest     string
	entry      EntryPoint
}

// DescriptorParams holds the inputs to NewDescriptor.
type DescriptorParams struct {
	ID         string
	Metadata   *Metadata
	SourcePath string
	Root       string
	Source     Source
	Digest     string
	EntryPoint EntryPoint
}

// NewDescriptor creates a Descriptor. The metadata is copied so later edits
// by the caller are not observed.
func NewDescriptor(p DescriptorParams) (*Descriptor, error) {
	if p.ID == "" {
		return nil, ErrDescriptorEmptyID
	}
	if p.Metadata == nil {
		return nil, ErrDescriptorNoMetadata
	}
	if p.EntryPoint == nil {
		return nil, ErrDescriptorNoEntry
	}
	source := p.Source
	if source == "" {
		source = SourceUser
	}
	return &Descriptor{
		id:         p.ID,
		meta:       p.Metadata.Clone(),
		sourcePath: p.SourcePath,
		root:       p.Root,
		source:     source,
		digest:     p.Digest,
		entry:      p.EntryPoint,
	}, nil
}

// ID returns the catalog-unique identifier.
func (d *Descriptor) ID() string {
	return d.id
}

// Name returns the display name.
func (d *Descriptor) Name() string {
	return d.meta.Name
}

// Description returns the free-text description.
func (d *Descriptor) Description() string {
	return d.meta.Description
}

// Category returns the grouping key.
func (d *Descriptor) Category() string {
	return d.meta.Category
}

// Version returns the declared version.
func (d *Descriptor) Version() string {
	return d.meta.Version
}

// Author returns the declared author.
func (d *Descriptor) Author() string {
	return d.meta.Author
}

// Tags returns a copy of the tags.
func (d *Descriptor) Tags() []string {
	return slices.Clone(d.meta.Tags)
}

// Parameters returns the ordered parameter list.
func (d *Descriptor) Parameters() []*Parameter {
	return slices.Clone(d.meta.Parameters)
}

// Metadata returns a copy of the parsed metadata.
func (d *Descriptor) Metadata() *Metadata {
	return d.meta.Clone()
}

// SourcePath returns the backing file path. Built-ins report a virtual path.
func (d *Descriptor) SourcePath() string {
	return d.sourcePath
}

// Root returns the scan root the file was found under.
func (d *Descriptor) Root() string {
	return d.root
}

// Source returns user or built-in.
func (d *Descriptor) Source() Source {
	return d.source
}

// Digest returns the sha256 hex digest of the backing content.
func (d *Descriptor) Digest() string {
	return d.digest
}

// EntryPoint returns the runnable side of the workflow.
func (d *Descriptor) EntryPoint() EntryPoint {
	return d.entry
}
