package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/internal/iteration"
	"github.com/dshills/audiomark-mcp/internal/storage"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Save writes the whole project to path and returns the file actually written.
// A directory resolves to <dir>/<name>.mmp; an empty path reuses the last one.
// The file is replaced atomically, so a failed save leaves the old file intact.
func (p *Project) Save(ctx context.Context, path string) (string, error) {
	target, err := p.resolveSavePath(path)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file in %s: %w", types.ErrIO, dir, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := p.writeFile(ctx, tmpPath); err != nil {
		return "", fmt.Errorf("%w: save %s: %w", types.ErrIO, target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("%w: rename to %s: %w", types.ErrIO, target, err)
	}

	p.path = target
	p.logger.Info("project saved", "path", target, "entries", p.store.Len())
	return target, nil
}

func (p *Project) resolveSavePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		if p.path == "" {
			return "", fmt.Errorf("%w: no save path given and the project was never saved", types.ErrInvalidArgument)
		}
		return p.path, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: save path %s: %w", types.ErrInvalidArgument, path, err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return filepath.Join(abs, fileName(p.name)+FileSuffix), nil
	}
	if !strings.EqualFold(filepath.Ext(abs), FileSuffix) {
		return "", fmt.Errorf("%w: project files must end in %s: %s", types.ErrInvalidArgument, FileSuffix, path)
	}
	if err := requireDir(filepath.Dir(abs)); err != nil {
		return "", err
	}
	return abs, nil
}

func (p *Project) writeFile(ctx context.Context, path string) (err error) {
	db, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := &storage.Project{
		ID:          p.id,
		Name:        p.name,
		Description: p.description,
		DatasetRoot: p.root,
		Suffixes:    p.suffixes,
		TreeDigest:  p.treeDigest,
		CreatedAt:   p.createdAt,
	}
	if err = tx.PutProject(ctx, record); err != nil {
		return err
	}

	it := p.settings.Iteration
	err = tx.PutSettings(ctx, &storage.Settings{
		Filter:        it.Filter,
		Order:         it.Order,
		Index:         it.Index,
		LastIdx:       it.LastIdx,
		MinDurationMs: p.settings.MinDurationMs,
	})
	if err != nil {
		return err
	}

	if err = tx.ReplaceEntries(ctx, toStorageEntries(p.store.Records())); err != nil {
		return err
	}
	return tx.Commit()
}

// Load opens a saved project and reconciles it against the dataset as it is now.
//
// A missing path, a directory or a file without the .mmp suffix is ErrNotFound;
// a file that is not a readable project is ErrNotProject.
func Load(ctx context.Context, path string, opts *Options) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: project file %s: %w", types.ErrNotFound, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: project file %s: %w", types.ErrNotFound, abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", types.ErrNotFound, abs)
	}
	if !strings.EqualFold(filepath.Ext(abs), FileSuffix) {
		return nil, fmt.Errorf("%w: %s does not have the %s suffix", types.ErrNotFound, abs, FileSuffix)
	}

	db, err := storage.OpenExisting(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	record, err := db.GetProject(ctx)
	if err != nil {
		return nil, notProject(abs, err)
	}
	saved, err := db.GetSettings(ctx)
	if err != nil {
		return nil, notProject(abs, err)
	}
	entries, err := db.ListEntries(ctx)
	if err != nil {
		return nil, notProject(abs, err)
	}

	if opts == nil {
		opts = &Options{}
	}
	if len(opts.Suffixes) == 0 {
		copied := *opts
		copied.Suffixes = record.Suffixes
		opts = &copied
	}

	p := newProject(opts)
	p.id = record.ID
	p.name = record.Name
	p.description = record.Description
	p.root = record.DatasetRoot
	p.createdAt = record.CreatedAt
	p.treeDigest = record.TreeDigest
	p.path = abs
	p.settings.MinDurationMs = saved.MinDurationMs
	p.settings.Iteration = p.restoreIteration(saved)

	p.store = p.newStore()
	if err := p.store.Restore(fromStorageEntries(entries)); err != nil {
		return nil, notProject(abs, err)
	}

	result, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	stats := p.store.Reconcile(result.Files)
	p.treeDigest = result.TreeDigest

	if err := p.initIterator(); err != nil {
		return nil, err
	}

	p.logger.Info("project loaded",
		"path", abs, "entries", stats.Total, "added", stats.Added,
		"moved", stats.Moved, "corrupted", stats.Corrupted, "restored", stats.Restored)
	return p, nil
}

// restoreIteration maps persisted tags back to policies. Tags the registry does
// not know (a custom policy registered by another build) fall back to defaults.
func (p *Project) restoreIteration(saved *storage.Settings) iteration.Settings {
	it := iteration.Settings{
		Filter:  saved.Filter,
		Order:   saved.Order,
		Index:   saved.Index,
		LastIdx: saved.LastIdx,
	}
	if err := it.Validate(p.registry); err != nil {
		p.logger.Warn("saved iteration policy is not available, using defaults", "error", err)
		return iteration.DefaultSettings()
	}
	return it
}

func notProject(path string, err error) error {
	if errors.Is(err, types.ErrNotProject) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", types.ErrNotProject, path, err)
}

func toStorageEntries(records []dataset.Record) []storage.Entry {
	entries := make([]storage.Entry, len(records))
	for i, r := range records {
		labels := make([]storage.Label, len(r.Entry.Labels))
		for j, l := range r.Entry.Labels {
			labels[j] = storage.FromLabelSpan(l)
		}
		entries[i] = storage.Entry{
			Fingerprint:  r.Fingerprint,
			RelativePath: r.Entry.RelativePath,
			IsCorrupted:  r.Entry.IsCorrupted,
			Labels:       labels,
		}
	}
	return entries
}

func fromStorageEntries(entries []storage.Entry) []dataset.Record {
	records := make([]dataset.Record, len(entries))
	for i, e := range entries {
		var labels []types.LabelSpan
		for _, l := range e.Labels {
			labels = append(labels, l.ToLabelSpan())
		}
		records[i] = dataset.Record{
			Fingerprint: e.Fingerprint,
			Entry: dataset.Entry{
				RelativePath: e.RelativePath,
				IsCorrupted:  e.IsCorrupted,
				Labels:       labels,
			},
		}
	}
	return records
}

// fileName turns a project name into a safe file name stem
func fileName(name string) string {
	stem := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if stem == "" || stem == "." || stem == ".." {
		return "project"
	}
	return stem
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: directory %s: %w", types.ErrInvalidArgument, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", types.ErrInvalidArgument, dir)
	}
	return nil
}
