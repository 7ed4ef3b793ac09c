package asset

import (
	"errors"
	"sync"
)

// Resource is an in-memory decoded asset handle. Every resource placed into
// the cache is closed exactly once: either by DisposeAll at session teardown
// or by the consumer that Take's it.
type Resource interface {
	Close() error
}

// Entry pairs a decoded resource with an optional display-ready encoding
// derived from it.
type Entry struct {
	Resource Resource
	Preview  string
}

// Cache is the per-session lookup from stable asset reference to decoded
// resource. A new cache is created for every active session; entries are
// never shared across two DisposeAll scopes.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	disposed bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Put stores an entry under reference, taking ownership of its resource.
// Replacing an existing entry disposes the replaced resource. Putting into
// an already-disposed cache disposes the resource immediately: the cache
// will never get another chance and silently keeping it would leak.
func (c *Cache) Put(reference string, entry *Entry) {
	c.mu.Lock()
	var stale Resource
	if c.disposed {
		stale = entry.Resource
	} else {
		if old, ok := c.entries[reference]; ok && old.Resource != nil {
			stale = old.Resource
		}
		c.entries[reference] = entry
	}
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
}

// Get returns the entry for reference; ownership stays with the cache.
func (c *Cache) Get(reference string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[reference]
	return entry, ok
}

// Take removes and returns the entry, transferring disposal responsibility
// to the caller.
func (c *Cache) Take(reference string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[reference]
	if ok {
		delete(c.entries, reference)
	}
	return entry, ok
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DisposeAll releases every owned resource and marks the cache dead. It is
// idempotent and safe on an empty cache; close failures are joined and
// returned but the cache empties regardless.
func (c *Cache) DisposeAll() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	entries := c.entries
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if entry.Resource == nil {
			continue
		}
		if err := entry.Resource.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ByteResource is the plain decoded-bytes resource used for fetched assets.
type ByteResource struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewByteResource wraps decoded bytes as a disposable resource.
func NewByteResource(data []byte) *ByteResource {
	return &ByteResource{data: data}
}

// Bytes returns the decoded data, or nil after Close.
func (r *ByteResource) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Closed reports whether the resource was released.
func (r *ByteResource) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the decoded data. Closing twice is an error so tests can
// catch double disposal.
func (r *ByteResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("asset: resource already closed")
	}
	r.closed = true
	r.data = nil
	return nil
}
