package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, source string) ([]byte, error) {
	return f.data, f.err
}

type fakeStore struct {
	err    error
	handle string
	name   string
}

func (s *fakeStore) WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.handle = handle
	s.name = name
	return "assets/" + name, nil
}

// fakeDoc records reference rewrites like the document accessor would.
type fakeDoc struct {
	mu      sync.Mutex
	content string
}

func (d *fakeDoc) ReplaceReference(old, new string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !strings.Contains(d.content, old) {
		return false
	}
	d.content = strings.ReplaceAll(d.content, old, new)
	return true
}

func (d *fakeDoc) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

func TestResolveSuccessRewritesDocumentAndPopulatesCache(t *testing.T) {
	cache := NewCache()
	doc := &fakeDoc{}
	store := &fakeStore{}
	scheduled := 0

	r := NewResolver(
		&fakeFetcher{data: []byte("image bytes")},
		store, cache, doc, "journal",
		func() { scheduled++ },
		ResolverHooks{},
	)

	ph := NewLoadingPlaceholder()
	doc.content = fmt.Sprintf("before %s after", ph.Encode())

	final := r.Resolve(context.Background(), ph, "https://example.com/cat.png", "cat.png")

	assert.Equal(t, PlaceholderResolved, final.Kind)
	assert.Equal(t, "assets/cat.png", final.FinalRef)
	assert.Equal(t, "journal", store.handle)
	assert.Equal(t, "before assets/cat.png after", doc.String())
	assert.Equal(t, 1, scheduled, "rewrite must owe an autosave")

	entry, ok := cache.Get("assets/cat.png")
	assert.True(t, ok)
	assert.Equal(t, []byte("image bytes"), entry.Resource.(*ByteResource).Bytes())
	assert.NotEmpty(t, entry.Preview)
	assert.Equal(t, 0, r.Pending())
}

func TestResolveFetchFailureWritesFailureMarker(t *testing.T) {
	cache := NewCache()
	doc := &fakeDoc{}
	scheduled := 0
	var failedSource string
	var failedErr error

	r := NewResolver(
		&fakeFetcher{err: errors.New("connection refused")},
		&fakeStore{}, cache, doc, "journal",
		func() { scheduled++ },
		ResolverHooks{OnFailed: func(source string, err error) {
			failedSource = source
			failedErr = err
		}},
	)

	ph := NewLoadingPlaceholder()
	doc.content = ph.Encode()

	final := r.Resolve(context.Background(), ph, "https://example.com/gone.png", "gone.png")

	assert.Equal(t, PlaceholderFailed, final.Kind)
	assert.Equal(t, FailedMarker(), doc.String())
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, 0, cache.Len(), "failed fetch must not populate the cache")
	assert.Equal(t, "https://example.com/gone.png", failedSource)
	assert.Error(t, failedErr)
}

func TestResolveStoreFailureAlsoFails(t *testing.T) {
	doc := &fakeDoc{}
	r := NewResolver(
		&fakeFetcher{data: []byte("bytes")},
		&fakeStore{err: errors.New("disk full")},
		NewCache(), doc, "journal",
		func() {},
		ResolverHooks{},
	)

	ph := NewLoadingPlaceholder()
	doc.content = ph.Encode()

	final := r.Resolve(context.Background(), ph, "data:text/plain,hello", "hello.txt")
	assert.Equal(t, PlaceholderFailed, final.Kind)
	assert.Equal(t, FailedMarker(), doc.String())
}

func TestResolveOnTerminalPlaceholderIsNoOp(t *testing.T) {
	doc := &fakeDoc{content: "notes/img1.png"}
	r := NewResolver(
		&fakeFetcher{data: []byte("x")},
		&fakeStore{}, NewCache(), doc, "journal",
		func() { t.Error("terminal placeholder must not schedule saves") },
		ResolverHooks{},
	)

	resolved := Placeholder{Kind: PlaceholderResolved, FinalRef: "notes/img1.png"}
	got := r.Resolve(context.Background(), resolved, "https://example.com/x.png", "x.png")
	assert.Equal(t, resolved, got)
	assert.Equal(t, "notes/img1.png", doc.String())
}

func TestFetcherDecodesDataURLs(t *testing.T) {
	f := NewHTTPFetcher(0)

	data, err := f.FetchBytes(context.Background(), "data:text/plain;base64,aGVsbG8=")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = f.FetchBytes(context.Background(), "data:text/plain,hello")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = f.FetchBytes(context.Background(), "data:nonsense")
	assert.Error(t, err)

	_, err = f.FetchBytes(context.Background(), "ftp://example.com/x")
	assert.Error(t, err)
}
