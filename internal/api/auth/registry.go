package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/vault-agents/internal/core/service"
)

// Registry maps the sid claim of a bearer token to the facade it was issued
// for. Sessions leave the registry on their own once they end; every entry
// leaves it when its bearer token would have expired.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

type entry struct {
	access  service.Access
	expires time.Time
}

func NewRegistry(ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// Put registers access under a fresh sid and returns it.
func (r *Registry) Put(access service.Access) string {
	sid := uuid.NewString()

	r.mu.Lock()
	r.entries[sid] = entry{access: access, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	if s, ok := access.(*service.Session); ok {
		go func() {
			<-s.Done()
			r.Remove(sid)
		}()
	}
	return sid
}

// Get returns the facade registered under sid, if it is still live.
func (r *Registry) Get(sid string) (service.Access, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sid]
	if !ok || !r.now().Before(e.expires) {
		return nil, false
	}
	return e.access, true
}

// Session returns the session registered under sid.
func (r *Registry) Session(sid string) (*service.Session, bool) {
	a, ok := r.Get(sid)
	if !ok {
		return nil, false
	}
	s, ok := a.(*service.Session)
	return s, ok
}

// Agent returns the restricted agent registered under sid.
func (r *Registry) Agent(sid string) (*service.LocalAgent, bool) {
	a, ok := r.Get(sid)
	if !ok {
		return nil, false
	}
	l, ok := a.(*service.LocalAgent)
	return l, ok
}

func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, sid)
}

// Len reports how many facades are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Sweep drops entries expired at now and signs their sessions out.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	var expired []service.Access
	for sid, e := range r.entries {
		if !now.Before(e.expires) {
			expired = append(expired, e.access)
			delete(r.entries, sid)
		}
	}
	r.mu.Unlock()

	for _, a := range expired {
		if s, ok := a.(*service.Session); ok {
			if _, err := s.Signout(ctx); err != nil {
				r.log.Warn().Err(err).Str("agent_id", s.AgentID()).Msg("failed to sign out expired session")
			}
		}
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(ctx, now); n > 0 {
				r.log.Debug().Int("count", n).Msg("expired sessions swept")
			}
		}
	}
}
