package usecase

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"careerlens/internal/domain"
)

type RegistryConfig struct {
	TTL         time.Duration
	MaxSessions int
}

// Registry owns live sessions by id. Sessions unused longer than the TTL,
// or pushed out by the size limit, are ended with reason session_expired.
// A session mid-conversation counts as used.
type Registry struct {
	mu sync.Mutex

	ttl         time.Duration
	maxSessions int

	lru *list.List               // front=MRU
	m   map[string]*list.Element // id -> element(Value=*entry)

	deps     Deps
	defaults func() Config
	now      func() time.Time
	logger   *slog.Logger
}

type entry struct {
	s        *Session
	lastUsed time.Time
}

// NewRegistry builds a registry. defaults is read on every Create so that
// reloaded configuration applies to new sessions only.
func NewRegistry(deps Deps, defaults func() Config, cfg RegistryConfig) *Registry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxS := cfg.MaxSessions
	if maxS <= 0 {
		maxS = 1024
	}
	if defaults == nil {
		defaults = func() Config { return Config{} }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ttl:         ttl,
		maxSessions: maxS,
		lru:         list.New(),
		m:           map[string]*list.Element{},
		deps:        deps,
		defaults:    defaults,
		now:         time.Now,
		logger:      logger,
	}
}

// Create validates cfg and registers a new idle session.
func (r *Registry) Create(cfg domain.SessionConfig, profile *domain.UserProfile) (*Session, error) {
	id := uuid.Must(uuid.NewV7()).String()
	s, err := NewSession(id, cfg, profile, r.deps, r.defaults())
	if err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	evicted := r.evictExpiredLocked(now)
	e := r.lru.PushFront(&entry{s: s, lastUsed: now})
	r.m[id] = e
	evicted = append(evicted, r.evictOverLimitLocked()...)
	r.mu.Unlock()

	r.expire(evicted)
	return s, nil
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	evicted := r.evictExpiredLocked(now)
	e := r.m[id]
	var s *Session
	if e != nil {
		it := e.Value.(*entry)
		it.lastUsed = now
		r.lru.MoveToFront(e)
		s = it.s
	}
	r.mu.Unlock()

	r.expire(evicted)
	if s == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// End ends the session. Ending a finished session is a no-op.
func (r *Registry) End(ctx context.Context, id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.End(ctx)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Sweep evicts expired sessions. Callers run it on a ticker.
func (r *Registry) Sweep() {
	r.mu.Lock()
	evicted := r.evictExpiredLocked(r.now())
	r.mu.Unlock()
	r.expire(evicted)
}

// Close ends every session and empties the registry.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	var all []*Session
	for e := r.lru.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*entry).s)
	}
	r.lru.Init()
	r.m = map[string]*list.Element{}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.End(ctx); err != nil {
				r.logger.Warn("session did not end cleanly", "session", s.ID(), "error", err)
			}
		}()
	}
	wg.Wait()
}

func (r *Registry) expire(sessions []*Session) {
	for _, s := range sessions {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.terminate(ctx, domain.SessionReasonExpired); err != nil {
				r.logger.Warn("expired session did not end cleanly", "session", s.ID(), "error", err)
			}
		}()
	}
}

func (r *Registry) evictExpiredLocked(now time.Time) []*Session {
	var out []*Session
	for e := r.lru.Back(); e != nil; {
		prev := e.Prev()
		it := e.Value.(*entry)
		if now.Sub(it.lastUsed) <= r.ttl {
			break
		}
		if it.s.inProgress() {
			// Live sessions are driven over their own socket, not through Get.
			it.lastUsed = now
			r.lru.MoveToFront(e)
		} else {
			out = append(out, r.deleteElemLocked(e))
		}
		e = prev
	}
	return out
}

func (r *Registry) evictOverLimitLocked() []*Session {
	var out []*Session
	for r.lru.Len() > r.maxSessions {
		e := r.lru.Back()
		if e == nil {
			break
		}
		out = append(out, r.deleteElemLocked(e))
	}
	return out
}

func (r *Registry) deleteElemLocked(e *list.Element) *Session {
	it := e.Value.(*entry)
	delete(r.m, it.s.id)
	r.lru.Remove(e)
	return it.s
}
