package iteration

import (
	"slices"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Settings is the persistable iteration state.
// Policies are stored as registry tags; LastIdx is the cursor into the working list.
type Settings struct {
	Filter  string
	Order   string
	Index   string
	LastIdx int // -1 means no entry has been visited yet
}

// DefaultSettings returns all / appearance / sequential with the cursor before the first entry
func DefaultSettings() Settings {
	return Settings{
		Filter:  FilterAll,
		Order:   OrderAppearance,
		Index:   IndexSequential,
		LastIdx: -1,
	}
}

// Validate checks that every tag resolves in the registry
func (s Settings) Validate(r *Registry) error {
	if _, err := r.Filter(s.Filter); err != nil {
		return err
	}
	if _, err := r.Order(s.Order); err != nil {
		return err
	}
	if _, err := r.Index(s.Index); err != nil {
		return err
	}
	return nil
}

// Iterator walks a filtered, ordered working list built from the entry store.
//
// The cursor only has meaning for the current working list, so every change of
// policy must be followed by RefreshView before Next or LastAccessed are trusted.
type Iterator struct {
	store    *dataset.Store
	settings *Settings
	registry *Registry

	filter Predicate
	index  IndexFunc
	list   []dataset.View
}

// New creates an iterator over store driven by settings and builds the working list
func New(store *dataset.Store, settings *Settings, registry *Registry) (*Iterator, error) {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	it := &Iterator{
		store:    store,
		settings: settings,
		registry: registry,
	}
	if err := it.RefreshView(); err != nil {
		return nil, err
	}
	return it, nil
}

// Settings returns the live settings the iterator reads from
func (it *Iterator) Settings() *Settings {
	return it.settings
}

// Registry returns the policy registry
func (it *Iterator) Registry() *Registry {
	return it.registry
}

// RefreshView rebuilds the working list from the store using the current policies
func (it *Iterator) RefreshView() error {
	filter, err := it.registry.Filter(it.settings.Filter)
	if err != nil {
		return err
	}
	key, err := it.registry.Order(it.settings.Order)
	if err != nil {
		return err
	}
	index, err := it.registry.Index(it.settings.Index)
	if err != nil {
		return err
	}

	list := it.store.Filter(filter)
	if key != nil {
		sortViews(list, key)
	}

	it.filter = filter
	it.index = index
	it.list = list
	return nil
}

// Apply switches policies and refreshes the view.
// Tags are validated first; on error nothing changes.
func (it *Iterator) Apply(filter, order, index string) error {
	next := *it.settings
	next.Filter, next.Order, next.Index = filter, order, index
	if err := next.Validate(it.registry); err != nil {
		return err
	}

	*it.settings = next
	return it.RefreshView()
}

// Next advances the cursor and returns the entry under it.
// Entries that no longer satisfy the filter are dropped from the working list
// as they are encountered. It returns false once the working list is empty.
func (it *Iterator) Next() (dataset.View, bool) {
	for len(it.list) > 0 {
		size := len(it.list)
		idx := it.index(size, it.settings.LastIdx) % size
		if idx < 0 {
			idx += size
		}
		it.settings.LastIdx = idx

		current, ok := it.store.Get(it.list[idx].Fingerprint)
		if ok && it.filter(current) {
			it.list[idx] = current
			return current, true
		}

		// The cursor steps back so the entry that slides into idx is not skipped
		it.list = slices.Delete(it.list, idx, idx+1)
		it.settings.LastIdx = idx - 1
	}
	return dataset.View{}, false
}

// List returns a snapshot of the working list
func (it *Iterator) List() []dataset.View {
	return slices.Clone(it.list)
}

// Remaining returns the size of the working list
func (it *Iterator) Remaining() int {
	return len(it.list)
}

// LastAccessed returns the entry under the cursor, re-read from the store
func (it *Iterator) LastAccessed() (dataset.View, bool) {
	idx := it.settings.LastIdx
	if idx < 0 || idx >= len(it.list) {
		return dataset.View{}, false
	}
	current, ok := it.store.Get(it.list[idx].Fingerprint)
	if !ok {
		return dataset.View{}, false
	}
	return current, true
}

// SetLastAccessed moves the cursor to the entry with fingerprint fp.
// It reports false, leaving the cursor alone, if fp is not in the working list.
func (it *Iterator) SetLastAccessed(fp types.Fingerprint) bool {
	idx := slices.IndexFunc(it.list, func(v dataset.View) bool {
		return v.Fingerprint == fp
	})
	if idx < 0 {
		return false
	}
	it.settings.LastIdx = idx
	return true
}
