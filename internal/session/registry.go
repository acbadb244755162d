package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruiping-ai/ruiping/internal/observability"
)

var ErrNotFound = errors.New("session not found")

// Registry holds live sessions in insertion order, which is also creation
// order. The reaper exploits that: expired sessions form a prefix, so each
// sweep walks from the oldest and stops at the first entry still fresh.
type Registry struct {
	idleTimeout time.Duration
	metrics     *observability.Metrics
	log         zerolog.Logger
	now         func() time.Time

	mu    sync.Mutex
	order []*Session
	byID  map[string]*Session
}

func NewRegistry(idleTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &Registry{
		idleTimeout: idleTimeout,
		metrics:     metrics,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		byID:        make(map[string]*Session),
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.order = append(r.order, s)
	r.byID[s.ID] = s
	n := len(r.order)
	r.mu.Unlock()
	r.setGauge(n)
}

func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// StartReaper runs the sweep loop until ctx is cancelled. Sleeping a full
// idle timeout between sweeps is enough: an entry lives at most about twice
// the timeout, and sweeps stay rare.
func (r *Registry) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.idleTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := r.sweep(); evicted > 0 {
					r.log.Info().Int("evicted", evicted).Int("remaining", r.Len()).Msg("reaped idle sessions")
				}
			}
		}
	}()
}

func (r *Registry) sweep() int {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	i := 0
	for ; i < len(r.order); i++ {
		if !r.order[i].CreatedAt.Before(cutoff) {
			break
		}
	}
	expired := r.order[:i]
	// Copy survivors into a fresh slice so the evicted prefix is not pinned
	// by the shared backing array.
	survivors := make([]*Session, len(r.order)-i)
	copy(survivors, r.order[i:])
	r.order = survivors
	for _, s := range expired {
		delete(r.byID, s.ID)
	}
	n := len(r.order)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		if r.metrics != nil {
			r.metrics.SessionEvents.WithLabelValues("evicted").Inc()
		}
	}
	r.setGauge(n)
	return len(expired)
}

func (r *Registry) setGauge(n int) {
	if r.metrics == nil {
		return
	}
	r.metrics.ActiveSessions.Set(float64(n))
}
