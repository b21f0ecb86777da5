package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/internal/indexer"
	"github.com/dshills/audiomark-mcp/internal/iteration"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

const (
	// FileSuffix is the extension of saved project files
	FileSuffix = ".mmp"
	// MarkupSuffix is the extension used when exporting into a directory
	MarkupSuffix = ".csv"
)

// Options configures project construction and loading
type Options struct {
	Suffixes []string            // Audio extensions to scan (default: indexer.DefaultSuffixes)
	Workers  int                 // Hashing workers (default: NumCPU)
	Logger   *slog.Logger        // default: slog.Default()
	Registry *iteration.Registry // Policy registry (default: built-ins only)
}

// MarkupSettings is the live, persisted settings object of a project
type MarkupSettings struct {
	Iteration     iteration.Settings
	MinDurationMs float64 // Shortest accepted label span; 0 disables the check
}

// DefaultMarkupSettings returns default iteration settings and no minimum duration
func DefaultMarkupSettings() MarkupSettings {
	return MarkupSettings{Iteration: iteration.DefaultSettings()}
}

// Info summarises a project for display
type Info struct {
	ID          string
	Name        string
	Description string
	DatasetRoot string
	Path        string // Last saved or loaded file, empty if never saved
	TreeDigest  string
	Entries     int
	Labeled     int
	Corrupted   int
	Labels      int
	Remaining   int // Size of the current working list
	CreatedAt   time.Time
}

// Project bundles the entry store, iteration state and dataset metadata.
//
// A Project is not safe for concurrent use; callers sharing one across
// goroutines must serialise every call, including reads.
type Project struct {
	id          string
	name        string
	description string
	root        string
	suffixes    []string
	createdAt   time.Time
	treeDigest  string
	path        string

	settings *MarkupSettings
	store    *dataset.Store
	iterator *iteration.Iterator
	registry *iteration.Registry
	scanner  *indexer.Scanner
	logger   *slog.Logger
}

// New creates a project over the dataset at root and runs the initial scan
func New(ctx context.Context, name, description, root string, opts *Options) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", types.ErrInvalidArgument)
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: dataset directory is required", types.ErrInvalidArgument)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset directory %s: %w", types.ErrInvalidArgument, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset directory %s: %w", types.ErrInvalidArgument, absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: dataset path %s is not a directory", types.ErrInvalidArgument, absRoot)
	}

	p := newProject(opts)
	p.id = uuid.NewString()
	p.name = name
	p.description = strings.TrimSpace(description)
	p.root = absRoot
	p.createdAt = time.Now()
	p.store = p.newStore()

	result, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	stats := p.store.Reconcile(result.Files)
	p.treeDigest = result.TreeDigest

	if err := p.initIterator(); err != nil {
		return nil, err
	}

	p.logger.Info("project created",
		"project", p.name, "root", p.root, "entries", stats.Total,
		"duplicates", len(result.Duplicates), "skipped", result.Stats.FilesSkipped)
	return p, nil
}

// newProject applies options shared by New and Load
func newProject(opts *Options) *Project {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = iteration.NewRegistry(nil)
	}
	suffixes := opts.Suffixes
	if len(indexer.NormalizeSuffixes(suffixes)) == 0 {
		suffixes = indexer.DefaultSuffixes
	}

	settings := DefaultMarkupSettings()
	return &Project{
		suffixes: append([]string(nil), suffixes...),
		settings: &settings,
		registry: registry,
		scanner:  indexer.New(&indexer.Config{Workers: opts.Workers, Logger: logger}),
		logger:   logger.With("component", "project"),
	}
}

// newStore creates a store whose span check follows the live minimum duration
func (p *Project) newStore() *dataset.Store {
	return dataset.NewStore(p.root, dataset.WithSpanValidator(func(span types.LabelSpan) error {
		return span.Validate(p.settings.MinDurationMs)
	}))
}

func (p *Project) initIterator() error {
	it, err := iteration.New(p.store, &p.settings.Iteration, p.registry)
	if err != nil {
		return err
	}
	p.iterator = it
	return nil
}

// scan fingerprints the dataset. A dataset root that has disappeared yields
// an empty result, so reconciliation marks every entry corrupted.
func (p *Project) scan(ctx context.Context) (*indexer.ScanResult, error) {
	if _, err := os.Stat(p.root); errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("dataset directory is missing, all entries will be marked corrupted", "root", p.root)
		return &indexer.ScanResult{Root: p.root}, nil
	}
	return p.scanner.Scan(ctx, p.root, p.suffixes)
}

// ID returns the project's UUID
func (p *Project) ID() string { return p.id }

// Name returns the project name
func (p *Project) Name() string { return p.name }

// Description returns the project description
func (p *Project) Description() string { return p.description }

// Root returns the absolute dataset directory
func (p *Project) Root() string { return p.root }

// Suffixes returns the scanned audio extensions
func (p *Project) Suffixes() []string { return append([]string(nil), p.suffixes...) }

// Path returns the file the project was last saved to or loaded from
func (p *Project) Path() string { return p.path }

// TreeDigest returns the aggregate digest of the latest scan
func (p *Project) TreeDigest() string { return p.treeDigest }

// Store returns the entry store
func (p *Project) Store() *dataset.Store { return p.store }

// Iterator returns the iteration engine
func (p *Project) Iterator() *iteration.Iterator { return p.iterator }

// Registry returns the iteration policy registry
func (p *Project) Registry() *iteration.Registry { return p.registry }

// MarkupSettings returns the live settings object. Policy changes made
// directly on it take effect after Iterator().RefreshView(); ApplyIteration
// validates and refreshes in one step.
func (p *Project) MarkupSettings() *MarkupSettings { return p.settings }

// SetMinDuration changes the shortest accepted label span.
// Existing labels are not re-checked.
func (p *Project) SetMinDuration(ms float64) error {
	if err := CheckMinDuration(ms); err != nil {
		return err
	}
	p.settings.MinDurationMs = ms
	return nil
}

// CheckMinDuration reports whether ms is usable as a minimum label duration
func CheckMinDuration(ms float64) error {
	if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return fmt.Errorf("%w: minimum duration must be a finite non-negative number, got %v", types.ErrInvalidArgument, ms)
	}
	return nil
}

// ApplyIteration switches iteration policies and rebuilds the working list
func (p *Project) ApplyIteration(filter, order, index string) error {
	return p.iterator.Apply(filter, order, index)
}

// Next advances the iterator
func (p *Project) Next() (dataset.View, bool) {
	return p.iterator.Next()
}

// Current returns the entry under the cursor
func (p *Project) Current() (dataset.View, bool) {
	return p.iterator.LastAccessed()
}

// Select moves the cursor to fp, which must be in the working list
func (p *Project) Select(fp types.Fingerprint) error {
	if _, ok := p.store.Get(fp); !ok {
		return fmt.Errorf("%w: no entry with fingerprint %s", types.ErrNotFound, fp)
	}
	if !p.iterator.SetLastAccessed(fp) {
		return fmt.Errorf("%w: entry %s is not in the current working list", types.ErrInvalidArgument, fp)
	}
	return nil
}

// AddLabel inserts span at position index of the entry's labels and refreshes the view
func (p *Project) AddLabel(fp types.Fingerprint, index int, span types.LabelSpan) error {
	return p.mutate(func() error { return p.store.AddLabel(fp, index, span) })
}

// UpdateLabel replaces the label at index and refreshes the view
func (p *Project) UpdateLabel(fp types.Fingerprint, index int, span types.LabelSpan) error {
	return p.mutate(func() error { return p.store.UpdateLabel(fp, index, span) })
}

// DeleteLabel removes the label at index and refreshes the view
func (p *Project) DeleteLabel(fp types.Fingerprint, index int) error {
	return p.mutate(func() error { return p.store.DeleteLabel(fp, index) })
}

// RefreshEntry re-checks that the entry's file exists, for use when a media
// collaborator could not open it. It reports the new corruption flag.
// A flag change invalidates the tree digest so the next Rescan reconciles.
func (p *Project) RefreshEntry(fp types.Fingerprint) (bool, error) {
	var corrupted bool
	err := p.mutate(func() error {
		before, _ := p.store.Get(fp)
		var err error
		corrupted, err = p.store.RefreshOne(fp)
		if err == nil && corrupted != before.IsCorrupted {
			p.treeDigest = ""
		}
		return err
	})
	if err == nil && corrupted {
		p.logger.Warn("entry file is missing", "fingerprint", fp.String())
	}
	return corrupted, err
}

// mutate runs a store mutation followed by a view refresh that keeps the
// cursor on the same entry when it is still visible
func (p *Project) mutate(fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	return p.refreshView()
}

func (p *Project) refreshView() error {
	current, hadCurrent := p.iterator.LastAccessed()
	oldIdx := p.settings.Iteration.LastIdx

	if err := p.iterator.RefreshView(); err != nil {
		return err
	}

	if hadCurrent && !p.iterator.SetLastAccessed(current.Fingerprint) {
		// The entry left the working list and its successors moved up by one
		p.settings.Iteration.LastIdx = max(oldIdx-1, -1)
	}
	return nil
}

// Info returns counts and metadata
func (p *Project) Info() Info {
	info := Info{
		ID:          p.id,
		Name:        p.name,
		Description: p.description,
		DatasetRoot: p.root,
		Path:        p.path,
		TreeDigest:  p.treeDigest,
		Remaining:   p.iterator.Remaining(),
		CreatedAt:   p.createdAt,
	}
	for _, v := range p.store.Views() {
		info.Entries++
		if v.IsCorrupted {
			info.Corrupted++
		}
		if n := v.LabelCount(); n > 0 {
			info.Labeled++
			info.Labels += n
		}
	}
	return info
}
