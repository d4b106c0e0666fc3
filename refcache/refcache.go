// Package refcache implements the single-entry reference-base cache that
// sits in front of a FASTA backend (spec.md §4.2). Boundary record splicing
// is the only caller of this capability, and it is rare enough (only at
// shard boundaries) that a single cached (contig, pos) entry plus a mutex
// around the backend is sufficient.
package refcache

import (
	"sync"
)

// Backend is the minimal capability this module requires of a reference
// sequence provider: a single base at a 1-based (contig, pos) coordinate.
// Opening a real FASTA backend triggers index building and is expensive, so
// Cache initializes it lazily on first use (spec §4.2).
type Backend interface {
	BaseAt(contig string, pos int64) (byte, error)
}

// BackendFunc adapts a function to a Backend, the way http.HandlerFunc
// adapts a function to an http.Handler.
type BackendFunc func(contig string, pos int64) (byte, error)

// BaseAt implements Backend.
func (f BackendFunc) BaseAt(contig string, pos int64) (byte, error) {
	return f(contig, pos)
}

// BackendOpener lazily constructs the Backend on first use.
type BackendOpener func() (Backend, error)

// Cache is a single-entry cache in front of a Backend, safe to call
// concurrently from multiple workers (spec §4.2: "Must be safe to call
// from multiple workers; a single mutex around the FASTA backend is
// sufficient").
type Cache struct {
	open BackendOpener

	mu      sync.Mutex
	backend Backend

	// cachedPos is -1 when no entry is cached, or when a query is in
	// flight (spec §4.2: "set cachedPos = -1 *before* the call" so that a
	// backend exception is never recorded as cached).
	cachedContig string
	cachedPos    int64
	cachedBase   byte

	queries int64
}

// NewCache creates a Cache that lazily opens its Backend via open on first
// BaseAt call.
func NewCache(open BackendOpener) *Cache {
	return &Cache{open: open, cachedPos: -1}
}

// BaseAt returns the single ASCII base at (contig, pos), consulting the
// one-entry cache first.
func (c *Cache) BaseAt(contig string, pos int64) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries++
	if c.cachedPos == pos && c.cachedContig == contig {
		return c.cachedBase, nil
	}

	if c.backend == nil {
		backend, err := c.open()
		if err != nil {
			return 0, err
		}
		c.backend = backend
	}

	// Invalidate before calling out, so a failing query is never left
	// looking cached (spec §4.2).
	c.cachedPos = -1
	c.cachedContig = ""

	base, err := c.backend.BaseAt(contig, pos)
	if err != nil {
		return 0, err
	}
	c.cachedContig = contig
	c.cachedPos = pos
	c.cachedBase = base
	return base, nil
}

// Queries returns the number of BaseAt calls made so far (spec §6:
// "ref_queried" metric).
func (c *Cache) Queries() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}
