package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"note-editor-core/internal/asset"
	"note-editor-core/internal/dto"
	"note-editor-core/internal/session"
	"note-editor-core/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 30 * time.Millisecond

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

// fakeProvider is an in-memory storage.Provider with hooks for blocking and
// failing writes.
type fakeProvider struct {
	mu     sync.Mutex
	docs   map[string][]byte
	meta   map[string]*storage.Metadata
	assets map[string][]byte

	failWrites   bool
	failReadPath string        // ReadDocument on this path fails (not ErrNotFound)
	writeGate    chan struct{} // non-nil: WriteDocument blocks until closed
	writeStarted chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		docs:         make(map[string][]byte),
		meta:         make(map[string]*storage.Metadata),
		assets:       make(map[string][]byte),
		writeStarted: make(chan struct{}, 16),
	}
}

func (p *fakeProvider) EnsureCollection(ctx context.Context, handle string) error { return nil }

func (p *fakeProvider) ReadMetadata(ctx context.Context, handle string) (*storage.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.meta[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (p *fakeProvider) WriteMetadata(ctx context.Context, handle string, meta *storage.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *meta
	p.meta[handle] = &cp
	return nil
}

func (p *fakeProvider) ReadDocument(ctx context.Context, handle, path string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failReadPath != "" && path == p.failReadPath {
		return nil, errors.New("i/o error")
	}
	raw, ok := p.docs[handle+"/"+path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (p *fakeProvider) WriteDocument(ctx context.Context, handle, path string, content []byte) error {
	p.mu.Lock()
	gate := p.writeGate
	fail := p.failWrites
	p.mu.Unlock()

	select {
	case p.writeStarted <- struct{}{}:
	default:
	}

	if gate != nil {
		<-gate
	}
	if fail {
		return errors.New("disk full")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[handle+"/"+path] = append([]byte(nil), content...)
	return nil
}

func (p *fakeProvider) ListDocuments(ctx context.Context, handle string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var paths []string
	prefix := handle + "/"
	for k := range p.docs {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			paths = append(paths, k[len(prefix):])
		}
	}
	return paths, nil
}

func (p *fakeProvider) ReadAsset(ctx context.Context, handle, name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.assets[handle+"/"+name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return raw, nil
}

func (p *fakeProvider) WriteAsset(ctx context.Context, handle, name string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref := "assets/" + name
	p.assets[handle+"/"+ref] = append([]byte(nil), data...)
	return ref, nil
}

func (p *fakeProvider) ListAssets(ctx context.Context, handle string) ([]string, error) {
	return nil, nil
}

func (p *fakeProvider) document(handle, path string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.docs[handle+"/"+path])
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, source string) ([]byte, error) {
	return f.data, f.err
}

func newTestService(p *fakeProvider, f asset.Fetcher) ISessionService {
	if f == nil {
		f = &fakeFetcher{data: []byte("bytes")}
	}
	return NewSessionService(p, f, nil, nopLogger{}, testDebounce, time.Second, "", "", "")
}

func openTestCollection(t *testing.T, svc ISessionService) dto.SessionSnapshot {
	t.Helper()
	snap, err := svc.OpenCollection(context.Background(), &dto.OpenCollectionRequest{
		Handle:       "notes",
		Name:         "My Notes",
		DocumentPath: "first.json",
	})
	require.NoError(t, err)
	require.Equal(t, session.KindActive.String(), snap.State)
	return *snap
}

func TestOpenCollectionActivatesSession(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)

	snap := openTestCollection(t, svc)
	assert.Equal(t, "notes", snap.CollectionHandle)
	assert.Equal(t, "My Notes", snap.CollectionName)
	assert.Equal(t, "first.json", snap.DocumentPath)
	assert.False(t, snap.Dirty)

	// The active path is remembered for the next open.
	meta, err := p.ReadMetadata(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "first.json", meta.LastOpenedDocumentPath)
}

func TestEditDebouncesIntoOneSave(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)
	openTestCollection(t, svc)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "draft three"}))
		time.Sleep(testDebounce / 3)
	}

	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, "draft three", p.document("notes", "first.json"))
	assert.False(t, svc.Snapshot().Dirty)
}

func TestEditRequiresActiveDocument(t *testing.T) {
	svc := newTestService(newFakeProvider(), nil)
	err := svc.Edit(context.Background(), &dto.EditRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrNoActiveDocument)

	_, err = svc.SwitchDocument(context.Background(), &dto.SwitchDocumentRequest{Path: "a.json"})
	assert.ErrorIs(t, err, ErrNoActiveDocument)
}

func TestInsertAssetResolvesAndPersists(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, &fakeFetcher{data: []byte("png-bytes")})
	openTestCollection(t, svc)

	res, err := svc.InsertAsset(context.Background(), &dto.InsertAssetRequest{
		Source: "https://example.com/img.png",
	})
	require.NoError(t, err)
	assert.True(t, asset.IsLoadingRef(res.Placeholder))

	// Resolution replaces the placeholder and owes a save.
	assert.Eventually(t, func() bool {
		snap := svc.Snapshot()
		return snap.PendingAssets == 0 && snap.CachedAssets == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Flush(context.Background()))
	stored := p.document("notes", "first.json")
	assert.Contains(t, stored, "assets/img.png")
	assert.NotContains(t, stored, "placeholder:loading-")
}

func TestInsertAssetFailureWritesFailedMarker(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, &fakeFetcher{err: errors.New("offline")})
	openTestCollection(t, svc)

	_, err := svc.InsertAsset(context.Background(), &dto.InsertAssetRequest{Source: "https://example.com/img.png"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return svc.Snapshot().PendingAssets == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Flush(context.Background()))
	stored := p.document("notes", "first.json")
	assert.Contains(t, stored, asset.FailedMarker())
	assert.Equal(t, 0, svc.Snapshot().CachedAssets)
}

func TestSwitchDocumentFlushesThenDisposes(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, &fakeFetcher{data: []byte("img")})
	openTestCollection(t, svc)

	// Populate the outgoing cache and grab its resource so disposal is
	// observable after the switch.
	_, err := svc.InsertAsset(context.Background(), &dto.InsertAssetRequest{Source: "https://example.com/a.png"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return svc.Snapshot().CachedAssets == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Make sure the asset resolution's own save has settled before gating.
	require.NoError(t, svc.Flush(context.Background()))

	// Block persistence so the save of this edit stays in flight while the
	// switch runs.
	gate := make(chan struct{})
	p.mu.Lock()
	p.writeGate = gate
	p.mu.Unlock()

	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "unsaved edit"}))

	done := make(chan *dto.SessionSnapshot, 1)
	go func() {
		snap, err := svc.SwitchDocument(context.Background(), &dto.SwitchDocumentRequest{Path: "second.json"})
		assert.NoError(t, err)
		done <- snap
	}()

	// The switch must wait for the in-flight save.
	select {
	case <-done:
		t.Fatal("switch completed while a save was still in flight")
	case <-time.After(3 * testDebounce):
	}

	p.mu.Lock()
	p.writeGate = nil
	p.mu.Unlock()
	close(gate)

	var snap *dto.SessionSnapshot
	select {
	case snap = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("switch never completed")
	}

	// Old edits were persisted before teardown, the new runtime starts with
	// an empty cache.
	assert.Equal(t, "unsaved edit", p.document("notes", "first.json"))
	assert.Equal(t, "second.json", snap.DocumentPath)
	assert.Equal(t, 0, snap.CachedAssets)
	assert.Equal(t, 0, snap.PendingAssets)
}

func TestSwitchAbortsWhenFlushFails(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)
	openTestCollection(t, svc)

	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "doomed edit"}))
	p.mu.Lock()
	p.failWrites = true
	p.mu.Unlock()

	_, err := svc.SwitchDocument(context.Background(), &dto.SwitchDocumentRequest{Path: "second.json"})
	require.Error(t, err)

	// The session is intact on the original document and nothing was lost.
	snap := svc.Snapshot()
	assert.Equal(t, session.KindActive.String(), snap.State)
	assert.Equal(t, "first.json", snap.DocumentPath)
	assert.Contains(t, snap.Content, "doomed edit")

	// Once storage recovers the same switch succeeds.
	p.mu.Lock()
	p.failWrites = false
	p.mu.Unlock()
	next, err := svc.SwitchDocument(context.Background(), &dto.SwitchDocumentRequest{Path: "second.json"})
	require.NoError(t, err)
	assert.Equal(t, "second.json", next.DocumentPath)
	assert.Equal(t, "doomed edit", p.document("notes", "first.json"))
}

func TestFlushRetriesAfterFailedAutosave(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)
	openTestCollection(t, svc)

	p.mu.Lock()
	p.failWrites = true
	p.mu.Unlock()
	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "survivor"}))
	require.Error(t, svc.Flush(context.Background()))

	// The failed save left the coalescer with nothing scheduled, but the
	// document still carries the edit; it must stay dirty and the next flush
	// must re-attempt the write rather than return against an idle machine.
	assert.True(t, svc.Snapshot().Dirty)

	p.mu.Lock()
	p.failWrites = false
	p.mu.Unlock()
	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, "survivor", p.document("notes", "first.json"))
	assert.False(t, svc.Snapshot().Dirty)
}

func TestSwitchKeepsSessionWhenLoadFails(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)
	openTestCollection(t, svc)
	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "kept edit"}))

	p.mu.Lock()
	p.failReadPath = "broken.json"
	p.mu.Unlock()

	_, err := svc.SwitchDocument(context.Background(), &dto.SwitchDocumentRequest{Path: "broken.json"})
	require.Error(t, err)

	// The outgoing runtime was not torn down: the session is still active on
	// the original document and fully editable.
	snap := svc.Snapshot()
	assert.Equal(t, session.KindActive.String(), snap.State)
	assert.Equal(t, "first.json", snap.DocumentPath)
	assert.Contains(t, snap.Content, "kept edit")

	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "still editable"}))
	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, "still editable", p.document("notes", "first.json"))
}

func TestReauthorizationFlow(t *testing.T) {
	p := newFakeProvider()
	p.docs["notes/old.json"] = []byte("remembered content")
	p.meta["notes"] = &storage.Metadata{Version: 1, LastOpenedDocumentPath: "old.json"}

	svc := NewSessionService(p, &fakeFetcher{}, nil, nopLogger{}, testDebounce, time.Second, "notes", "My Notes", "")

	snap := svc.Snapshot()
	require.Equal(t, session.KindAwaitingReauthorization.String(), snap.State)
	assert.Equal(t, "notes", snap.CollectionHandle)

	// Editing is rejected until the user confirms.
	assert.ErrorIs(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "x"}), ErrNoActiveDocument)

	active, err := svc.Reauthorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.KindActive.String(), active.State)
	assert.Equal(t, "old.json", active.DocumentPath)
	assert.Equal(t, "remembered content", active.Content)
}

func TestReauthorizeRestoresConfiguredDocumentPath(t *testing.T) {
	p := newFakeProvider()
	p.docs["notes/pinned.json"] = []byte("pinned content")
	p.docs["notes/old.json"] = []byte("remembered content")
	p.meta["notes"] = &storage.Metadata{Version: 1, LastOpenedDocumentPath: "old.json"}

	// A configured document path takes precedence over the collection's
	// remembered last-opened path.
	svc := NewSessionService(p, &fakeFetcher{}, nil, nopLogger{}, testDebounce, time.Second, "notes", "My Notes", "pinned.json")

	active, err := svc.Reauthorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pinned.json", active.DocumentPath)
	assert.Equal(t, "pinned content", active.Content)
}

func TestCancelReauthorizationReturnsToIdle(t *testing.T) {
	p := newFakeProvider()
	svc := NewSessionService(p, &fakeFetcher{}, nil, nopLogger{}, testDebounce, time.Second, "notes", "My Notes", "")

	snap, err := svc.CancelReauthorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.KindNoDocument.String(), snap.State)

	// Cancelling twice is not a legal transition.
	_, err = svc.CancelReauthorization(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCloseFlushesAndTearsDown(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(p, nil)
	openTestCollection(t, svc)

	require.NoError(t, svc.Edit(context.Background(), &dto.EditRequest{Content: "final words"}))
	require.NoError(t, svc.Close(context.Background()))

	assert.Equal(t, "final words", p.document("notes", "first.json"))
	assert.Equal(t, session.KindNoDocument.String(), svc.Snapshot().State)
}
