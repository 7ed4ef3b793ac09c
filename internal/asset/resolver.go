package asset

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync/atomic"
)

// Store persists fetched bytes next to the document and returns the stable
// stored reference (a relative name inside the collection).
type Store interface {
	WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error)
}

// ReferenceRewriter is the narrow slice of the document accessor the
// resolver needs: replace a placeholder-encoded reference with its terminal
// value at its current position.
type ReferenceRewriter interface {
	ReplaceReference(old, new string) bool
}

// ResolverHooks observe terminal outcomes. Called off the caller's
// goroutine; keep them short.
type ResolverHooks struct {
	OnResolved func(reference string)
	OnFailed   func(source string, err error)
}

// Resolver drives one session's placeholders from Loading to a terminal
// state: fetch, store, rewrite the document, populate the cache, and owe an
// autosave so the terminal value gets persisted.
type Resolver struct {
	fetcher  Fetcher
	store    Store
	cache    *Cache
	doc      ReferenceRewriter
	handle   string
	schedule func()
	hooks    ResolverHooks

	pending int32
}

// NewResolver wires a resolver to one session's cache, document and
// collection handle. schedule is the autosave trigger invoked after every
// document rewrite.
func NewResolver(fetcher Fetcher, store Store, cache *Cache, doc ReferenceRewriter, handle string, schedule func(), hooks ResolverHooks) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		store:    store,
		cache:    cache,
		doc:      doc,
		handle:   handle,
		schedule: schedule,
		hooks:    hooks,
	}
}

// Pending returns the number of fetches still in flight.
func (r *Resolver) Pending() int {
	return int(atomic.LoadInt32(&r.pending))
}

// Resolve runs the single fetch attempt for ph and returns its terminal
// state. The caller has already inserted ph.Encode() into the document;
// editing is never blocked while this runs.
func (r *Resolver) Resolve(ctx context.Context, ph Placeholder, source, name string) Placeholder {
	atomic.AddInt32(&r.pending, 1)
	defer atomic.AddInt32(&r.pending, -1)

	data, err := r.fetcher.FetchBytes(ctx, source)
	if err != nil {
		return r.fail(ph, source, err)
	}

	reference, err := r.store.WriteAsset(ctx, r.handle, name, data)
	if err != nil {
		return r.fail(ph, source, err)
	}

	next, ok := TransitionPlaceholder(ph, FetchSucceeded(reference))
	if !ok {
		// Already terminal; resolution is write-once.
		return ph
	}

	r.cache.Put(reference, &Entry{
		Resource: NewByteResource(data),
		Preview:  displayPreview(data),
	})
	r.doc.ReplaceReference(ph.Encode(), next.Encode())
	r.schedule()

	if r.hooks.OnResolved != nil {
		r.hooks.OnResolved(reference)
	}
	return next
}

func (r *Resolver) fail(ph Placeholder, source string, err error) Placeholder {
	next, ok := TransitionPlaceholder(ph, FetchFailed())
	if !ok {
		return ph
	}

	// The document shows the failure marker at the insertion position; the
	// user may re-attempt the original action.
	r.doc.ReplaceReference(ph.Encode(), next.Encode())
	r.schedule()

	if r.hooks.OnFailed != nil {
		r.hooks.OnFailed(source, err)
	}
	return next
}

// displayPreview derives a display-ready encoding from the decoded bytes.
func displayPreview(data []byte) string {
	mime := http.DetectContentType(data)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
