package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Entry is the per-fingerprint record held by the store
type Entry struct {
	RelativePath string // Slash separated, relative to the dataset root
	IsCorrupted  bool   // File was not found by the latest scan or existence check
	Labels       []types.LabelSpan
}

// View pairs a fingerprint with a snapshot of its entry
type View struct {
	Fingerprint  types.Fingerprint
	RelativePath string
	IsCorrupted  bool
	Labels       []types.LabelSpan
}

// LabelCount returns the number of labels attached to the entry
func (v View) LabelCount() int {
	return len(v.Labels)
}

// Record is the persisted form of an entry, in store order
type Record struct {
	Fingerprint types.Fingerprint
	Entry       Entry
}

// ReconcileStats summarises what a reconciliation changed
type ReconcileStats struct {
	Added     int // Fingerprints seen for the first time
	Moved     int // Known fingerprints found under a new path
	Corrupted int // Known fingerprints newly missing from the scan
	Restored  int // Previously corrupted fingerprints found again
	Total     int // Entries in the store afterwards
}

// Option configures a Store
type Option func(*Store)

// WithSpanValidator installs the check applied to every span before it is stored
func WithSpanValidator(validate func(types.LabelSpan) error) Option {
	return func(s *Store) {
		s.validate = validate
	}
}

// Store maps fingerprints to entries, preserving appearance order
type Store struct {
	root     string
	order    []types.Fingerprint
	entries  map[types.Fingerprint]*Entry
	validate func(types.LabelSpan) error
}

// NewStore creates an empty store for the dataset rooted at root
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		entries: make(map[types.Fingerprint]*Entry),
		validate: func(span types.LabelSpan) error {
			return span.Validate(0)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the dataset root directory
func (s *Store) Root() string {
	return s.root
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.order)
}

// Reconcile merges a scan into the store without losing labels
func (s *Store) Reconcile(files []types.FileRecord) ReconcileStats {
	var stats ReconcileStats

	seen := make(map[types.Fingerprint]struct{}, len(files))
	order := make([]types.Fingerprint, 0, max(len(files), len(s.order)))

	for _, f := range files {
		if _, dup := seen[f.Fingerprint]; dup {
			continue
		}
		seen[f.Fingerprint] = struct{}{}
		order = append(order, f.Fingerprint)

		entry, ok := s.entries[f.Fingerprint]
		if !ok {
			s.entries[f.Fingerprint] = &Entry{RelativePath: f.RelativePath}
			stats.Added++
			continue
		}

		if entry.RelativePath != f.RelativePath {
			entry.RelativePath = f.RelativePath
			stats.Moved++
		}
		if entry.IsCorrupted {
			entry.IsCorrupted = false
			stats.Restored++
		}
	}

	for _, fp := range s.order {
		if _, ok := seen[fp]; ok {
			continue
		}
		entry := s.entries[fp]
		if !entry.IsCorrupted {
			entry.IsCorrupted = true
			stats.Corrupted++
		}
		order = append(order, fp)
	}

	s.order = order
	stats.Total = len(order)
	return stats
}

// Get returns a view of the entry for fp
func (s *Store) Get(fp types.Fingerprint) (View, bool) {
	entry, ok := s.entries[fp]
	if !ok {
		return View{}, false
	}
	return newView(fp, entry), true
}

// Filter returns views of the entries accepted by pred, in appearance order
func (s *Store) Filter(pred func(View) bool) []View {
	views := make([]View, 0, len(s.order))
	for _, fp := range s.order {
		v := newView(fp, s.entries[fp])
		if pred == nil || pred(v) {
			views = append(views, v)
		}
	}
	return views
}

// Views returns views of all entries in appearance order
func (s *Store) Views() []View {
	return s.Filter(nil)
}

// Fingerprints returns the keys in appearance order
func (s *Store) Fingerprints() []types.Fingerprint {
	return slices.Clone(s.order)
}

// AddLabel inserts span at position index of the entry's label list.
// Index 0 puts the label first; index == len appends.
func (s *Store) AddLabel(fp types.Fingerprint, index int, span types.LabelSpan) error {
	entry, err := s.lookup(fp)
	if err != nil {
		return err
	}
	if index < 0 || index > len(entry.Labels) {
		return fmt.Errorf("%w: label position %d out of range [0, %d] for %s",
			types.ErrInvalidArgument, index, len(entry.Labels), fp)
	}
	if err := s.validate(span); err != nil {
		return err
	}
	entry.Labels = slices.Insert(entry.Labels, index, span)
	return nil
}

// AppendLabel adds span after the existing labels
func (s *Store) AppendLabel(fp types.Fingerprint, span types.LabelSpan) error {
	entry, err := s.lookup(fp)
	if err != nil {
		return err
	}
	return s.AddLabel(fp, len(entry.Labels), span)
}

// UpdateLabel replaces the label at index
func (s *Store) UpdateLabel(fp types.Fingerprint, index int, span types.LabelSpan) error {
	entry, err := s.lookup(fp)
	if err != nil {
		return err
	}
	if err := checkIndex(fp, entry, index); err != nil {
		return err
	}
	if err := s.validate(span); err != nil {
		return err
	}
	entry.Labels[index] = span
	return nil
}

// DeleteLabel removes the label at index
func (s *Store) DeleteLabel(fp types.Fingerprint, index int) error {
	entry, err := s.lookup(fp)
	if err != nil {
		return err
	}
	if err := checkIndex(fp, entry, index); err != nil {
		return err
	}
	entry.Labels = slices.Delete(entry.Labels, index, index+1)
	return nil
}

// AbsolutePath resolves the entry's current location on disk
func (s *Store) AbsolutePath(fp types.Fingerprint) (string, error) {
	entry, err := s.lookup(fp)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(entry.RelativePath)), nil
}

// RefreshOne re-checks whether the entry's file still exists and updates its
// corruption flag. It does not rehash the file.
func (s *Store) RefreshOne(fp types.Fingerprint) (bool, error) {
	entry, err := s.lookup(fp)
	if err != nil {
		return false, err
	}

	path := filepath.Join(s.root, filepath.FromSlash(entry.RelativePath))
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		entry.IsCorrupted = false
	case errors.Is(statErr, os.ErrNotExist):
		entry.IsCorrupted = true
	default:
		return entry.IsCorrupted, fmt.Errorf("%w: stat %s: %w", types.ErrIO, path, statErr)
	}
	return entry.IsCorrupted, nil
}

// Records returns a deep copy of the store contents in appearance order
func (s *Store) Records() []Record {
	records := make([]Record, 0, len(s.order))
	for _, fp := range s.order {
		e := s.entries[fp]
		records = append(records, Record{
			Fingerprint: fp,
			Entry: Entry{
				RelativePath: e.RelativePath,
				IsCorrupted:  e.IsCorrupted,
				Labels:       slices.Clone(e.Labels),
			},
		})
	}
	return records
}

// Restore replaces the store contents with previously saved records.
// Labels are taken as stored; they are not re-validated.
func (s *Store) Restore(records []Record) error {
	entries := make(map[types.Fingerprint]*Entry, len(records))
	order := make([]types.Fingerprint, 0, len(records))

	for _, r := range records {
		if _, dup := entries[r.Fingerprint]; dup {
			return fmt.Errorf("%w: duplicate fingerprint %s", types.ErrInvalidArgument, r.Fingerprint)
		}
		e := r.Entry
		e.Labels = slices.Clone(e.Labels)
		entries[r.Fingerprint] = &e
		order = append(order, r.Fingerprint)
	}

	s.entries = entries
	s.order = order
	return nil
}

func (s *Store) lookup(fp types.Fingerprint) (*Entry, error) {
	entry, ok := s.entries[fp]
	if !ok {
		return nil, fmt.Errorf("%w: no entry with fingerprint %s", types.ErrNotFound, fp)
	}
	return entry, nil
}

func checkIndex(fp types.Fingerprint, entry *Entry, index int) error {
	if index < 0 || index >= len(entry.Labels) {
		return fmt.Errorf("%w: label index %d out of range for %s (%d labels)",
			types.ErrInvalidArgument, index, fp, len(entry.Labels))
	}
	return nil
}

func newView(fp types.Fingerprint, e *Entry) View {
	return View{
		Fingerprint:  fp,
		RelativePath: e.RelativePath,
		IsCorrupted:  e.IsCorrupted,
		Labels:       slices.Clone(e.Labels),
	}
}
