package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"note-editor-core/internal/asset"
	"note-editor-core/internal/autosave"
	"note-editor-core/internal/document"
	"note-editor-core/internal/dto"
	"note-editor-core/internal/entity"
	"note-editor-core/internal/pkg/logger"
	"note-editor-core/internal/session"
	"note-editor-core/internal/storage"
	"note-editor-core/pkg/events"

	"github.com/google/uuid"
)

var (
	// ErrNoActiveDocument is returned by operations that require an open
	// document while the session is not active.
	ErrNoActiveDocument = errors.New("session: no active document")
	// ErrInvalidTransition is returned when the requested operation is not
	// legal for the current session state. The session is left unchanged.
	ErrInvalidTransition = errors.New("session: invalid transition")
)

// defaultDocumentPath is opened when a collection has no documents yet.
const defaultDocumentPath = "welcome.json"

type ISessionService interface {
	Snapshot() dto.SessionSnapshot
	OpenCollection(ctx context.Context, req *dto.OpenCollectionRequest) (*dto.SessionSnapshot, error)
	Reauthorize(ctx context.Context) (*dto.SessionSnapshot, error)
	CancelReauthorization(ctx context.Context) (*dto.SessionSnapshot, error)
	SwitchDocument(ctx context.Context, req *dto.SwitchDocumentRequest) (*dto.SessionSnapshot, error)
	Edit(ctx context.Context, req *dto.EditRequest) error
	InsertAsset(ctx context.Context, req *dto.InsertAssetRequest) (*dto.InsertAssetResponse, error)
	ListDocuments(ctx context.Context) ([]string, error)
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// runtime bundles the per-active-document machinery. It is built when a
// document becomes active and replaced wholesale on every switch; the pieces
// of two runtimes are never mixed.
type runtime struct {
	doc       *document.Document
	coalescer *autosave.Coalescer
	cache     *asset.Cache
	resolver  *asset.Resolver
}

type sessionService struct {
	provider storage.Provider
	fetcher  asset.Fetcher
	notifier INotifierService
	logger   logger.ILogger

	debounce     time.Duration
	fetchTimeout time.Duration

	// lastPath is the configured document to restore on reauthorization;
	// empty falls back to the collection's remembered last-opened path.
	lastPath string

	mu          sync.Mutex
	state       session.State
	rt          *runtime
	lastSavedAt *time.Time
}

func NewSessionService(
	provider storage.Provider,
	fetcher asset.Fetcher,
	notifier INotifierService,
	log logger.ILogger,
	debounce time.Duration,
	fetchTimeout time.Duration,
	lastHandle string,
	lastName string,
	lastPath string,
) ISessionService {
	s := &sessionService{
		provider:     provider,
		fetcher:      fetcher,
		notifier:     notifier,
		logger:       log,
		debounce:     debounce,
		fetchTimeout: fetchTimeout,
		lastPath:     lastPath,
		state:        session.NoDocument(),
	}

	if lastHandle != "" {
		if next, ok := session.Transition(s.state, session.ReauthorizationNeeded(lastHandle, lastName)); ok {
			s.state = next
			s.publish(events.PermissionNeeded(lastHandle, lastName))
		}
	}

	return s
}

func (s *sessionService) Snapshot() dto.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *sessionService) snapshotLocked() dto.SessionSnapshot {
	snap := dto.SessionSnapshot{
		State:       s.state.Kind.String(),
		LastSavedAt: s.lastSavedAt,
	}

	switch s.state.Kind {
	case session.KindAwaitingReauthorization:
		snap.CollectionHandle = s.state.Handle
		snap.CollectionName = s.state.DisplayName

	case session.KindActive:
		snap.CollectionHandle = s.state.Collection.Handle
		snap.CollectionName = s.state.Collection.Name
		snap.DocumentPath = s.state.Document.Path

		if s.rt != nil {
			content, err := s.rt.doc.Serialize()
			if err == nil {
				snap.Content = content
			}
			snap.DocumentTitle = s.rt.doc.Title()
			snap.Dirty = s.rt.doc.Dirty()
			snap.AutosaveState = s.rt.coalescer.State().String()
			snap.PendingAssets = s.rt.resolver.Pending()
			snap.CachedAssets = s.rt.cache.Len()
		}
	}

	return snap
}

func (s *sessionService) OpenCollection(ctx context.Context, req *dto.OpenCollectionRequest) (*dto.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unsaved work in the outgoing document is flushed first; a flush failure
	// aborts with the session intact. The target is loaded before the
	// outgoing runtime is torn down, so a failed load aborts the same way.
	if err := s.flushActiveLocked(ctx); err != nil {
		return nil, err
	}

	col, doc, content, err := s.loadCollection(ctx, req.Handle, req.Name, req.DocumentPath)
	if err != nil {
		return nil, err
	}

	next, ok := session.Transition(s.state, session.OpenCollection(col, doc))
	if !ok {
		return nil, ErrInvalidTransition
	}

	s.disposeActiveLocked()
	s.state = next
	s.buildRuntimeLocked(col, doc, content)
	s.rememberDocument(ctx, col, doc.Path)

	s.logger.Info("SessionService", "Collection opened", map[string]interface{}{
		"handle": col.Handle,
		"path":   doc.Path,
	})

	snap := s.snapshotLocked()
	return &snap, nil
}

func (s *sessionService) Reauthorize(ctx context.Context) (*dto.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Kind != session.KindAwaitingReauthorization {
		return nil, ErrInvalidTransition
	}

	col, doc, content, err := s.loadCollection(ctx, s.state.Handle, s.state.DisplayName, s.lastPath)
	if err != nil {
		return nil, err
	}

	next, ok := session.Transition(s.state, session.Reauthorized(col, doc))
	if !ok {
		return nil, ErrInvalidTransition
	}

	s.state = next
	s.buildRuntimeLocked(col, doc, content)
	s.rememberDocument(ctx, col, doc.Path)

	s.logger.Info("SessionService", "Collection reauthorized", map[string]interface{}{"handle": col.Handle})

	snap := s.snapshotLocked()
	return &snap, nil
}

func (s *sessionService) CancelReauthorization(ctx context.Context) (*dto.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := session.Transition(s.state, session.CancelReauthorization())
	if !ok {
		return nil, ErrInvalidTransition
	}

	s.state = next
	snap := s.snapshotLocked()
	return &snap, nil
}

func (s *sessionService) SwitchDocument(ctx context.Context, req *dto.SwitchDocumentRequest) (*dto.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Kind != session.KindActive {
		return nil, ErrNoActiveDocument
	}
	col := s.state.Collection

	if err := s.flushActiveLocked(ctx); err != nil {
		return nil, err
	}

	doc, content, err := s.loadDocument(ctx, col, req.Path)
	if err != nil {
		return nil, err
	}

	next, ok := session.Transition(s.state, session.SwitchDocument(doc))
	if !ok {
		return nil, ErrInvalidTransition
	}

	s.disposeActiveLocked()
	s.state = next
	s.buildRuntimeLocked(col, doc, content)
	s.rememberDocument(ctx, col, doc.Path)

	s.logger.Info("SessionService", "Document switched", map[string]interface{}{
		"handle": col.Handle,
		"path":   doc.Path,
	})

	snap := s.snapshotLocked()
	return &snap, nil
}

func (s *sessionService) Edit(ctx context.Context, req *dto.EditRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Kind != session.KindActive || s.rt == nil {
		return ErrNoActiveDocument
	}

	s.rt.doc.ApplyEdit(req.Content)
	s.rt.coalescer.Schedule()
	return nil
}

func (s *sessionService) InsertAsset(ctx context.Context, req *dto.InsertAssetRequest) (*dto.InsertAssetResponse, error) {
	s.mu.Lock()
	if s.state.Kind != session.KindActive || s.rt == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveDocument
	}
	rt := s.rt

	ph := asset.NewLoadingPlaceholder()
	name := assetName(req.Source, req.Name, ph.Id)

	rt.doc.InsertAssetReference(ph.Encode(), name)
	rt.coalescer.Schedule()
	s.mu.Unlock()

	// Resolution runs in the background; editing is never blocked on it.
	// The request context is not reused: the fetch outlives the HTTP call.
	go func() {
		fctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		rt.resolver.Resolve(fctx, ph, req.Source, name)
	}()

	return &dto.InsertAssetResponse{Placeholder: ph.Encode()}, nil
}

func (s *sessionService) ListDocuments(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.state.Kind != session.KindActive {
		s.mu.Unlock()
		return nil, ErrNoActiveDocument
	}
	handle := s.state.Collection.Handle
	s.mu.Unlock()

	return s.provider.ListDocuments(ctx, handle)
}

func (s *sessionService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Kind != session.KindActive || s.rt == nil {
		return nil
	}
	return s.flushRuntimeLocked(ctx)
}

// Close tears the session down: flush, dispose, forget. Unlike a switch, a
// flush failure does not keep the session alive; teardown proceeds so cached
// resources cannot leak, and the error is returned afterwards.
func (s *sessionService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flushErr error
	if s.rt != nil {
		flushErr = s.flushRuntimeLocked(ctx)
		if flushErr != nil {
			s.logger.Error("SessionService", "Flush on close failed", map[string]interface{}{"error": flushErr.Error()})
		}
		s.disposeActiveLocked()
	}
	s.state = session.NoDocument()
	return flushErr
}

// flushRuntimeLocked persists the active document's unsaved work. A failed
// autosave leaves the coalescer idle while the document is still dirty; the
// save is re-armed first so the flush retries the write instead of returning
// early against an idle machine.
func (s *sessionService) flushRuntimeLocked(ctx context.Context) error {
	if s.rt.doc.Dirty() {
		s.rt.coalescer.Schedule()
	}
	return s.rt.coalescer.Flush(ctx)
}

// flushActiveLocked is the flush step of a switch: unsaved edits are
// persisted before anything is torn down, and a failure aborts with the
// current session fully usable.
func (s *sessionService) flushActiveLocked(ctx context.Context) error {
	if s.rt == nil {
		return nil
	}
	if err := s.flushRuntimeLocked(ctx); err != nil {
		return fmt.Errorf("flush before switch: %w", err)
	}
	return nil
}

// disposeActiveLocked releases the outgoing runtime once the switch can no
// longer fail: cached assets are disposed and the runtime forgotten.
func (s *sessionService) disposeActiveLocked() {
	if s.rt == nil {
		return
	}
	if err := s.rt.cache.DisposeAll(); err != nil {
		s.logger.Warn("SessionService", "Asset disposal reported errors", map[string]interface{}{"error": err.Error()})
	}
	s.rt = nil
}

// buildRuntimeLocked wires the per-document machinery: the in-memory
// document, its autosave coalescer, a fresh asset cache and the resolver
// bound to all three.
func (s *sessionService) buildRuntimeLocked(col *entity.Collection, doc *entity.Document, content string) {
	rt := &runtime{}
	rt.doc = document.Load(content)
	rt.cache = asset.NewCache()

	handle := col.Handle
	docPath := doc.Path

	save := func(ctx context.Context) error {
		serialized, err := rt.doc.SerializeForStorage()
		if err != nil {
			return err
		}
		if err := s.provider.WriteDocument(ctx, handle, docPath, []byte(serialized)); err != nil {
			return err
		}
		rt.doc.MarkSaved()
		return nil
	}

	rt.coalescer = autosave.New(s.debounce, save, autosave.Hooks{
		OnSaved: func() {
			now := time.Now()
			s.mu.Lock()
			if s.rt == rt {
				s.lastSavedAt = &now
			}
			s.mu.Unlock()
			s.publish(events.SaveSucceeded(handle, docPath))
		},
		OnError: func(err error) {
			s.logger.Error("SessionService", "Autosave failed", map[string]interface{}{
				"handle": handle,
				"path":   docPath,
				"error":  err.Error(),
			})
			s.publish(events.SaveFailed(handle, docPath, err))
		},
	})

	rt.resolver = asset.NewResolver(
		s.fetcher,
		s.provider,
		rt.cache,
		rt.doc,
		handle,
		rt.coalescer.Schedule,
		asset.ResolverHooks{
			OnResolved: func(reference string) {
				s.logger.Info("SessionService", "Asset resolved", map[string]interface{}{
					"handle":    handle,
					"reference": reference,
				})
			},
			OnFailed: func(source string, err error) {
				s.logger.Warn("SessionService", "Asset fetch failed", map[string]interface{}{
					"handle": handle,
					"source": source,
					"error":  err.Error(),
				})
				s.publish(events.AssetFetchFailed("", source, err))
			},
		},
	)

	s.rt = rt
}

// loadCollection opens or creates a collection and picks the document to
// activate: the explicit request, the remembered last-opened path, the first
// listed document, or a fresh default.
func (s *sessionService) loadCollection(ctx context.Context, handle, name, docPath string) (*entity.Collection, *entity.Document, string, error) {
	if err := s.provider.EnsureCollection(ctx, handle); err != nil {
		return nil, nil, "", err
	}

	meta, err := s.provider.ReadMetadata(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		meta = &storage.Metadata{Version: 1}
		if err := s.provider.WriteMetadata(ctx, handle, meta); err != nil {
			return nil, nil, "", err
		}
	} else if err != nil {
		return nil, nil, "", err
	}

	if docPath == "" {
		docPath = meta.LastOpenedDocumentPath
	}
	if docPath == "" {
		paths, err := s.provider.ListDocuments(ctx, handle)
		if err != nil {
			return nil, nil, "", err
		}
		if len(paths) > 0 {
			docPath = paths[0]
		} else {
			docPath = defaultDocumentPath
		}
	}

	if name == "" {
		name = handle
	}

	col := &entity.Collection{
		Id:     uuid.New(),
		Name:   name,
		Handle: handle,
		Meta: entity.CollectionMeta{
			Version:                meta.Version,
			LastOpenedDocumentPath: meta.LastOpenedDocumentPath,
		},
		CreatedAt: time.Now(),
	}

	doc, content, err := s.loadDocument(ctx, col, docPath)
	if err != nil {
		return nil, nil, "", err
	}
	return col, doc, content, nil
}

// loadDocument reads a document's content, creating it empty when absent.
func (s *sessionService) loadDocument(ctx context.Context, col *entity.Collection, docPath string) (*entity.Document, string, error) {
	raw, err := s.provider.ReadDocument(ctx, col.Handle, docPath)
	if errors.Is(err, storage.ErrNotFound) {
		raw = nil
		if err := s.provider.WriteDocument(ctx, col.Handle, docPath, nil); err != nil {
			return nil, "", err
		}
	} else if err != nil {
		return nil, "", err
	}

	content := string(raw)
	doc := &entity.Document{
		Id:           uuid.New(),
		CollectionId: col.Id,
		Path:         docPath,
		Title:        document.Load(content).Title(),
		CreatedAt:    time.Now(),
	}
	return doc, content, nil
}

// rememberDocument records the active path in collection metadata so the next
// open resumes there. Best effort; an error is logged, not surfaced.
func (s *sessionService) rememberDocument(ctx context.Context, col *entity.Collection, docPath string) {
	meta := &storage.Metadata{
		Version:                col.Meta.Version,
		LastOpenedDocumentPath: docPath,
	}
	if err := s.provider.WriteMetadata(ctx, col.Handle, meta); err != nil {
		s.logger.Warn("SessionService", "Failed to persist last-opened path", map[string]interface{}{
			"handle": col.Handle,
			"error":  err.Error(),
		})
	}
	col.Meta.LastOpenedDocumentPath = docPath
}

func (s *sessionService) publish(event events.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.Background(), event); err != nil {
		s.logger.Warn("SessionService", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

// assetName picks a stored file name: explicit name, source basename, or the
// placeholder token for unnameable sources (data blobs).
func assetName(source, name, fallback string) string {
	if name != "" {
		return name
	}
	if !strings.HasPrefix(source, "data:") {
		if base := path.Base(strings.SplitN(source, "?", 2)[0]); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return fallback
}
