// Package registry maps client tokens to their edit sessions and bounds
// their lifetime. An evicted session is closed, which flushes unsaved work
// and disposes its asset cache.
package registry

import (
	"context"
	"sync"
	"time"

	"note-editor-core/internal/pkg/logger"
	"note-editor-core/internal/service"

	"github.com/patrickmn/go-cache"
)

// Factory builds a fresh session for a new client token.
type Factory func() service.ISessionService

type SessionRegistry struct {
	cache   *cache.Cache
	factory Factory
	logger  logger.ILogger

	// mu serializes GetOrCreate so two requests with a new token cannot
	// both build a session.
	mu sync.Mutex
}

func NewSessionRegistry(idleTTL time.Duration, factory Factory, log logger.ILogger) *SessionRegistry {
	c := cache.New(idleTTL, 10*time.Minute)
	r := &SessionRegistry{
		cache:   c,
		factory: factory,
		logger:  log,
	}

	c.OnEvicted(func(token string, value interface{}) {
		svc, ok := value.(service.ISessionService)
		if !ok {
			return
		}
		if err := svc.Close(context.Background()); err != nil {
			log.Error("SessionRegistry", "Failed to close evicted session", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
			return
		}
		log.Info("SessionRegistry", "Idle session closed", map[string]interface{}{"token": token})
	})

	return r
}

// GetOrCreate returns the session for token, creating one on first use.
// Every lookup refreshes the idle TTL.
func (r *SessionRegistry) GetOrCreate(token string) service.ISessionService {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(token); found {
		svc := x.(service.ISessionService)
		r.cache.Set(token, svc, cache.DefaultExpiration)
		return svc
	}

	svc := r.factory()
	r.cache.Set(token, svc, cache.DefaultExpiration)
	return svc
}

// Get returns the session for token without creating one.
func (r *SessionRegistry) Get(token string) (service.ISessionService, bool) {
	if x, found := r.cache.Get(token); found {
		return x.(service.ISessionService), true
	}
	return nil, false
}

// Remove closes and forgets a session. The eviction hook performs the close.
func (r *SessionRegistry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(token)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.ItemCount()
}
