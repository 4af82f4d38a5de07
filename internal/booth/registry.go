package booth

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/funny-booth/internal/camera"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry tracks live sessions by ID. Sessions that stay unchanged for
// longer than the TTL are evicted by Sweep.
type Registry struct {
	device   camera.Device
	pipeline Pipeline
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions share device and pipeline.
func NewRegistry(device camera.Device, pipeline Pipeline, ttl time.Duration) *Registry {
	return &Registry{
		device:   device,
		pipeline: pipeline,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new Idle session with a random ID.
func (r *Registry) Create() *Session {
	s := NewSession(uuid.NewString(), r.device, r.pipeline)
	s.now = r.now
	s.lastActive = r.now()

	r.mu.Lock()
	r.sessions[s.id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	log.Debug().Str("session", s.id).Int("active_sessions", count).Msg("Session created")
	return s
}

// Get returns the session with id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Delete resets and forgets the session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Reset()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. A session that is generating is never evicted.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if _, busy := s.State().(Generating); busy {
			continue
		}
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Reset()
		log.Debug().Str("session", s.id).Msg("Session expired")
	}
	if len(expired) > 0 {
		log.Info().Int("evicted", len(expired)).Msg("Expired idle sessions")
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
		case <-ticker.C:
			r.Sweep()
		}
	}
}
