package iteration

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Built-in filter tags
const (
	FilterAll          = "all"
	FilterNonCorrupted = "non_corrupted"
	FilterNonVisited   = "non_visited"
)

// Built-in order tags
const (
	OrderAppearance = "appearance"
	OrderLabelCount = "label_count"
)

// Built-in index policy tags
const (
	IndexSequential = "sequential"
	IndexRandom     = "random"
)

// Predicate decides whether a view belongs to the working list
type Predicate func(dataset.View) bool

// SortKey maps a view to the key used for a stable ascending sort
type SortKey func(dataset.View) int

// IndexFunc computes the next cursor position from the list size and the previous position
type IndexFunc func(size, previous int) int

// Option describes one selectable policy for display
type Option struct {
	Tag         string `json:"tag"`
	DisplayName string `json:"display_name"`
}

type filterDef struct {
	Option
	pred Predicate
}

type orderDef struct {
	Option
	key SortKey // nil keeps the current list order
}

type indexDef struct {
	Option
	next IndexFunc
}

// Registry resolves persisted policy tags to behaviour.
// Custom policies can be registered next to the built-ins.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]filterDef
	orders  map[string]orderDef
	indexes map[string]indexDef
}

// NewRegistry creates a registry holding the built-in policies.
// rng drives the random index policy; nil seeds one from the clock.
func NewRegistry(rng *rand.Rand) *Registry {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	var rngMu sync.Mutex

	r := &Registry{
		filters: make(map[string]filterDef),
		orders:  make(map[string]orderDef),
		indexes: make(map[string]indexDef),
	}

	r.filters[FilterAll] = filterDef{Option{FilterAll, "All"}, func(dataset.View) bool { return true }}
	r.filters[FilterNonCorrupted] = filterDef{Option{FilterNonCorrupted, "Non Corrupted"},
		func(v dataset.View) bool { return !v.IsCorrupted }}
	r.filters[FilterNonVisited] = filterDef{Option{FilterNonVisited, "Non Visited"},
		func(v dataset.View) bool { return v.LabelCount() == 0 }}

	r.orders[OrderAppearance] = orderDef{Option{OrderAppearance, "Appearance"}, nil}
	r.orders[OrderLabelCount] = orderDef{Option{OrderLabelCount, "Label Count"},
		func(v dataset.View) int { return v.LabelCount() }}

	r.indexes[IndexSequential] = indexDef{Option{IndexSequential, "Sequential"},
		func(size, previous int) int { return (previous + 1) % size }}
	r.indexes[IndexRandom] = indexDef{Option{IndexRandom, "Random"},
		func(size, _ int) int {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.IntN(size)
		}}

	return r
}

// RegisterFilter adds or replaces a filter policy
func (r *Registry) RegisterFilter(tag, displayName string, pred Predicate) error {
	if tag == "" || pred == nil {
		return fmt.Errorf("%w: filter needs a tag and a predicate", types.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[tag] = filterDef{Option{tag, displayName}, pred}
	return nil
}

// RegisterOrder adds or replaces an ordering policy
func (r *Registry) RegisterOrder(tag, displayName string, key SortKey) error {
	if tag == "" || key == nil {
		return fmt.Errorf("%w: order needs a tag and a sort key", types.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[tag] = orderDef{Option{tag, displayName}, key}
	return nil
}

// RegisterIndex adds or replaces an index policy
func (r *Registry) RegisterIndex(tag, displayName string, next IndexFunc) error {
	if tag == "" || next == nil {
		return fmt.Errorf("%w: index policy needs a tag and a function", types.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[tag] = indexDef{Option{tag, displayName}, next}
	return nil
}

// Filter resolves a filter tag
func (r *Registry) Filter(tag string) (Predicate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.filters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter %q", types.ErrInvalidArgument, tag)
	}
	return def.pred, nil
}

// Order resolves an order tag; a nil key means "keep appearance order"
func (r *Registry) Order(tag string) (SortKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.orders[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order %q", types.ErrInvalidArgument, tag)
	}
	return def.key, nil
}

// Index resolves an index policy tag
func (r *Registry) Index(tag string) (IndexFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.indexes[tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown index policy %q", types.ErrInvalidArgument, tag)
	}
	return def.next, nil
}

// Filters lists the filter options sorted by tag
func (r *Registry) Filters() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return options(r.filters, func(d filterDef) Option { return d.Option })
}

// Orders lists the order options sorted by tag
func (r *Registry) Orders() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return options(r.orders, func(d orderDef) Option { return d.Option })
}

// Indexes lists the index policy options sorted by tag
func (r *Registry) Indexes() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return options(r.indexes, func(d indexDef) Option { return d.Option })
}

func options[D any](defs map[string]D, opt func(D) Option) []Option {
	out := make([]Option, 0, len(defs))
	for _, d := range defs {
		out = append(out, opt(d))
	}
	slices.SortFunc(out, func(a, b Option) int { return cmp.Compare(a.Tag, b.Tag) })
	return out
}

// sortViews applies a stable ascending sort by key
func sortViews(views []dataset.View, key SortKey) {
	slices.SortStableFunc(views, func(a, b dataset.View) int {
		return cmp.Compare(key(a), key(b))
	})
}
