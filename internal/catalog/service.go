// Package catalog discovers workflow scripts under root directories and
// publishes them as immutable, versioned snapshots.
//
// A scan never fails because of one file: parse and load failures become
// DiscoveryErrors on the snapshot and the remaining files are still
// cataloged. Readers always see a complete snapshot, swapped in atomically.
package catalog

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/autohub/internal/cachemanager"
	"github.com/zjrosen/autohub/internal/loader"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/metadata"
	"github.com/zjrosen/autohub/internal/pubsub"
	"github.com/zjrosen/autohub/internal/tracing"
	"github.com/zjrosen/autohub/internal/workflow"
)

// Loader turns a candidate file into an entry point.
type Loader interface {
	Load(ctx context.Context, path string, content []byte) (workflow.EntryPoint, error)
	Extensions() []string
}

// BuiltinWorkflow is a workflow compiled into the binary. Content holds its
// metadata block, parsed by the same parser as script files.
type BuiltinWorkflow struct {
	ID      string
	Path    string
	Content []byte
	Entry   workflow.EntryPoint
}

type parseInput struct {
	path    string
	content []byte
}

// Service owns the current snapshot and runs scans.
type Service struct {
	loader     Loader
	builtins   func() []BuiltinWorkflow
	extensions map[string]bool
	parse      *cachemanager.ReadThroughCache[string, *workflow.Metadata, parseInput]
	cacheTTL   time.Duration
	tracer     trace.Tracer
	broker     *pubsub.Broker[*Snapshot]

	scanMu   sync.Mutex
	roots    []string
	version  uint64
	snapshot atomic.Pointer[Snapshot]
}

// Option configures a Service.
type Option func(*Service)

// WithBuiltins sets the provider of built-in workflows. They are scanned
// after every root.
func WithBuiltins(fn func() []BuiltinWorkflow) Option {
	return func(s *Service) { s.builtins = fn }
}

// WithExtensions overrides the candidate extensions reported by the loader.
func WithExtensions(exts ...string) Option {
	return func(s *Service) {
		if len(exts) > 0 {
			s.extensions = extensionSet(exts)
		}
	}
}

// WithParseCache caches parsed metadata keyed by path and content digest.
func WithParseCache(cache cachemanager.CacheManager[string, *workflow.Metadata], ttl time.Duration) Option {
	return func(s *Service) {
		s.parse = cachemanager.NewReadThroughCache[string, *workflow.Metadata, parseInput](cache, parseMetadata, false)
		s.cacheTTL = ttl
	}
}

// WithTracer sets the tracer used for scan spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBroker publishes every new snapshot as a pubsub.ReloadedEvent.
func WithBroker(b *pubsub.Broker[*Snapshot]) Option {
	return func(s *Service) { s.broker = b }
}

// NewService creates a catalog using l to load candidate files.
func NewService(l Loader, opts ...Option) *Service {
	s := &Service{
		loader:     l,
		extensions: extensionSet(l.Extensions()),
		parse:      cachemanager.NewReadThroughCache[string, *workflow.Metadata, parseInput](nil, parseMetadata, true),
		tracer:     noop.NewTracerProvider().Tracer("catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(emptySnapshot())
	return s
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

func parseMetadata(_ context.Context, in parseInput) (*workflow.Metadata, error) {
	return metadata.Parse(in.path, in.content)
}

// Snapshot returns the current snapshot. Before the first scan it is an
// empty snapshot with version 0.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Lookup finds id in the current snapshot.
func (s *Service) Lookup(id string) (*workflow.Descriptor, error) {
	return s.Snapshot().Lookup(id)
}

// List returns the current descriptors for category (all when empty).
func (s *Service) List(category string) []*workflow.Descriptor {
	return s.Snapshot().List(category)
}

// Categories returns the current categories.
func (s *Service) Categories() []string {
	return s.Snapshot().Categories()
}

// Roots returns the roots of the last scan.
func (s *Service) Roots() []string {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return slices.Clone(s.roots)
}

// Extensions returns the candidate file extensions, sorted.
func (s *Service) Extensions() []string {
	return slices.Sorted(maps.Keys(s.extensions))
}

// Rescan scans the roots of the last Scan again.
func (s *Service) Rescan(ctx context.Context) (*Snapshot, error) {
	return s.Scan(ctx, s.Roots())
}

// Scan walks roots in order and replaces the current snapshot. Only a
// cancelled ctx fails a scan; the previous snapshot is then kept.
func (s *Service) Scan(ctx context.Context, roots []string) (*Snapshot, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	ctx, span := s.tracer.Start(ctx, tracing.SpanCatalogScan,
		trace.WithAttributes(attribute.StringSlice(tracing.AttrScanRoots, roots)))
	defer span.End()

	sc := &scan{svc: s, seen: map[string]*workflow.Descriptor{}}
	for _, root := range roots {
		if err := sc.walkRoot(ctx, root); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
	}
	if s.builtins != nil {
		for _, b := range s.builtins() {
			sc.addBuiltin(b)
		}
	}

	s.roots = slices.Clone(roots)
	s.version++
	snap := newSnapshot(s.version, roots, sc.descs, sc.errs, sc.warns)
	s.snapshot.Store(snap)

	span.SetAttributes(
		attribute.Int64(tracing.AttrScanVersion, int64(snap.Version)), // #nosec G115 -- scan counter
		attribute.Int(tracing.AttrScanWorkflows, snap.Len()),
		attribute.Int(tracing.AttrScanErrors, len(snap.Errors)),
		attribute.Int(tracing.AttrScanWarnings, len(snap.Warnings)),
	)
	log.Info(log.CatCatalog, "Catalog scanned",
		"version", snap.Version, "workflows", snap.Len(), "errors", len(snap.Errors), "warnings", len(snap.Warnings))
	if s.parse.Enabled() {
		stats := s.parse.ResetStats()
		log.Debug(log.CatCache, "Parse cache", "hits", stats.Hits, "misses", stats.Misses)
	}

	if s.broker != nil {
		s.broker.Publish(pubsub.ReloadedEvent, snap)
	}
	return snap, nil
}

// scan accumulates the results of one Scan call.
type scan struct {
	svc   *Service
	seen  map[string]*workflow.Descriptor
	descs []*workflow.Descriptor
	errs  []*workflow.DiscoveryError
	warns []Warning
}

func (sc *scan) walkRoot(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		sc.warns = append(sc.warns, Warning{Kind: WarnMissingRoot, Root: root})
		log.Warn(log.CatCatalog, "Workflow root missing", "root", root)
		return nil
	}

	// WalkDir visits entries in lexical order, which fixes the scan order
	// within a root.
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			sc.errs = append(sc.errs, &workflow.DiscoveryError{Path: path, Root: abs, Err: walkErr})
			if path == abs || (d != nil && d.IsDir()) {
				return fs.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		if skipped(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !sc.svc.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		sc.addFile(ctx, abs, path)
		return nil
	})
}

// skipped reports hidden entries and private files like __init__.py.
func skipped(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func (sc *scan) addFile(ctx context.Context, root, path string) {
	fail := func(err error) {
		sc.errs = append(sc.errs, &workflow.DiscoveryError{Path: path, Root: root, Err: err})
		log.ErrorErr(log.CatCatalog, "Discovery failed", err, "path", path)
	}

	content, err := os.ReadFile(path) // #nosec G304 -- path comes from walking a configured root
	if err != nil {
		fail(err)
		return
	}
	digest := loader.Digest(content)

	meta, err := sc.svc.parse.Get(ctx, path+"@"+digest, parseInput{path: path, content: content}, sc.svc.cacheTTL)
	if errors.Is(err, metadata.ErrNoMetadata) {
		log.Debug(log.CatCatalog, "Skipping file without metadata", "path", path)
		return
	}
	if err != nil {
		fail(err)
		return
	}

	entry, err := sc.svc.loader.Load(ctx, path, content)
	if err != nil {
		fail(err)
		return
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		fail(err)
		return
	}
	d, err := workflow.NewDescriptor(workflow.DescriptorParams{
		ID:         DeriveID(rel),
		Metadata:   meta,
		SourcePath: path,
		Root:       root,
		Source:     workflow.SourceUser,
		Digest:     digest,
		EntryPoint: entry,
	})
	if err != nil {
		fail(err)
		return
	}
	sc.add(d)
}

func (sc *scan) addBuiltin(b BuiltinWorkflow) {
	meta, err := metadata.Parse(b.Path, b.Content)
	if err != nil {
		sc.errs = append(sc.errs, &workflow.DiscoveryError{Path: b.Path, Err: err})
		log.ErrorErr(log.CatCatalog, "Built-in workflow has invalid metadata", err, "id", b.ID)
		return
	}
	d, err := workflow.NewDescriptor(workflow.DescriptorParams{
		ID:         b.ID,
		Metadata:   meta,
		SourcePath: b.Path,
		Source:     workflow.SourceBuiltIn,
		Digest:     loader.Digest(b.Content),
		EntryPoint: b.Entry,
	})
	if err != nil {
		sc.errs = append(sc.errs, &workflow.DiscoveryError{Path: b.Path, Err: err})
		return
	}
	sc.add(d)
}

// add keeps the first descriptor for each id.
func (sc *scan) add(d *workflow.Descriptor) {
	if kept, ok := sc.seen[d.ID()]; ok {
		sc.warns = append(sc.warns, Warning{
			Kind:     WarnCollision,
			ID:       d.ID(),
			Kept:     kept.SourcePath(),
			Shadowed: d.SourcePath(),
		})
		log.Warn(log.CatCatalog, "Workflow id collision", "id", d.ID(), "kept", kept.SourcePath(), "shadowed", d.SourcePath())
		return
	}
	sc.seen[d.ID()] = d
	sc.descs = append(sc.descs, d)
}

// DeriveID turns a root-relative path into a workflow id: the extension is
// dropped and path separators become underscores.
func DeriveID(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "_")
}
