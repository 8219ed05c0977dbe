// Package lock provides a process-local keyed mutual-exclusion table with
// bounded waits and periodic eviction of stale holders.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrLockTimeout is returned when a key could not be acquired in time.
var ErrLockTimeout = errors.New("lock wait timed out")

// ReleaseFunc releases a held key. Calling it more than once is a no-op.
type ReleaseFunc func()

type entry struct {
	acquiredAt time.Time
	released   chan struct{}
}

// Registry serialises work per key within one process.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	staleAfter    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry. Entries held longer than staleAfter are
// evicted by Sweep; Start runs Sweep every sweepInterval.
func NewRegistry(staleAfter, sweepInterval time.Duration, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]*entry),
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        logger.With().Str("component", "lock-registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryAcquire takes key if it is free.
func (r *Registry) TryAcquire(key string) (ReleaseFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.entries[key]; held {
		return nil, false
	}
	return r.hold(key), true
}

// Acquire waits up to timeout for key to become free and takes it.
// It returns ErrLockTimeout when the wait expires, or ctx.Err() when ctx is
// done first.
func (r *Registry) Acquire(ctx context.Context, key string, timeout time.Duration) (ReleaseFunc, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.Lock()
		current, held := r.entries[key]
		if !held {
			release := r.hold(key)
			r.mu.Unlock()
			return release, nil
		}
		r.mu.Unlock()

		select {
		case <-current.released:
		case <-timer.C:
			r.logger.Warn().Str("key", key).Dur("timeout", timeout).Msg("lock wait timed out")
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// hold registers a new entry for key. r.mu must be held.
func (r *Registry) hold(key string) ReleaseFunc {
	e := &entry{acquiredAt: r.now(), released: make(chan struct{})}
	r.entries[key] = e

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			// A swept holder must not remove its successor's entry.
			if r.entries[key] == e {
				delete(r.entries, key)
				close(e.released)
			}
		})
	}
}

// Sweep evicts entries held longer than the stale threshold and wakes their
// waiters. It returns the number of evicted entries.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.staleAfter)
	evicted := 0
	for key, e := range r.entries {
		if e.acquiredAt.Before(cutoff) {
			delete(r.entries, key)
			close(e.released)
			evicted++
			r.logger.Warn().
				Str("key", key).
				Time("acquired_at", e.acquiredAt).
				Msg("evicted stale lock")
		}
	}
	return evicted
}

// Len returns the number of held keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Start runs the periodic sweep until ctx is done or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Info().Int("evicted", n).Msg("stale lock sweep completed")
				}
			}
		}
	}()

	r.logger.Info().
		Dur("stale_after", r.staleAfter).
		Dur("sweep_interval", r.sweepInterval).
		Msg("lock sweeper started")
}

// Stop halts the sweeper and waits for it to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
		r.logger.Info().Msg("lock sweeper stopped")
	})
}
