package expander

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"iter"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("expansion provider failed")
	ErrNoProviderEnabled = errors.New("no expansion provider configured")
	ErrStreamConsumed    = errors.New("expansion stream already consumed")
)

// Expander turns a short description into a longer one, delivered as text chunks.
//
// The returned sequence is lazy and may be ranged over once; cancelling ctx ends
// it with the context error. The caller must range over it (or Collect it) to
// release the underlying stream.
type Expander interface {
	Expand(ctx context.Context, text string) (iter.Seq2[string, error], error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string
}

// Collect drains seq into a single string, stopping at the first error
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.Join(types.ErrInvalidArgument, ErrEmptyText)
	}
	return nil
}

// computeHash keys the cache by model and input text
func computeHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Cache keeps completed expansions with LRU eviction
type Cache struct {
	cache *lru.Cache[string, string]
}

// NewCache creates a cache holding up to maxLen expansions
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, string](maxLen)
	if err != nil {
		cache, _ = lru.New[string, string](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a cached expansion
func (c *Cache) Get(hash string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.cache.Get(hash)
}

// Set stores a completed expansion
func (c *Cache) Set(hash, text string) {
	if c == nil {
		return
	}
	c.cache.Add(hash, text)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.cache.Purge()
}
