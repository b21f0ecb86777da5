// Package iteration drives the traversal a human annotator works through.
//
// An Iterator derives a working list from the entry store (filter, then stable
// sort) and keeps a cursor into it. The three policies are persisted as string
// tags and resolved through a Registry, so a saved project restores the same
// traversal after reload:
//
//	filter: all | non_corrupted | non_visited
//	order:  appearance | label_count
//	index:  sequential | random
//
// Custom policies are registered under new tags:
//
//	reg := iteration.NewRegistry(nil)
//	_ = reg.RegisterFilter("long_paths", "Long Paths", func(v dataset.View) bool {
//	    return len(v.RelativePath) > 40
//	})
//
// # Lazy Re-validation
//
// Next does not rebuild the list. It computes a candidate index, re-reads that
// entry from the store and, if the entry no longer passes the filter (for example
// it just received its first label under non_visited), removes it from the list
// and tries again. The composition of List can therefore change between calls.
//
// # Cursor
//
// Settings.LastIdx is the only iteration state and is meaningful only for the
// current working list. A fresh project starts at -1, so a sequential traversal
// begins with the first entry.
package iteration
