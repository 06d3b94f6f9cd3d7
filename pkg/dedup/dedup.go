// Package dedup suppresses duplicate near-simultaneous dispatches of
// identical catalog requests.
//
// This is not a response cache: it only prevents a second network call
// for the same canonical request key within a short rolling window, such
// as the double dispatch produced by duplicate initialization effects.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for request deduplication.
var (
	dedupDispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dedup_dispatches_total",
		Help: "Total requests passed through to the network",
	})

	dedupSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dedup_suppressed_total",
		Help: "Total duplicate requests suppressed within the window",
	})
)

// DefaultWindow is the rolling suppression window.
const DefaultWindow = 1500 * time.Millisecond

// Deduplicator tracks recently dispatched request keys and short-circuits
// duplicates issued within the suppression window.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithClock injects a clock, used by tests to control time.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) {
		d.now = now
	}
}

// New creates a Deduplicator. A non-positive window falls back to
// DefaultWindow.
func New(window time.Duration, opts ...Option) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}

	d := &Deduplicator{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
		logger: log.With().Str("component", "dedup").Logger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Acquire reports whether the caller should dispatch the request. It
// returns false when an identical key was dispatched within the
// suppression window; the caller must then treat the request as having
// returned zero new items. On true, the dispatch is recorded.
func (d *Deduplicator) Acquire(key string) bool {
	now := d.now()

	d.mu.Lock()
	d.prune(now)

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		d.mu.Unlock()

		dedupSuppressedTotal.Inc()
		d.logger.Debug().
			Str("request_key", key).
			Dur("since_last", now.Sub(last)).
			Msg("Duplicate request suppressed")
		return false
	}

	d.seen[key] = now
	d.mu.Unlock()

	dedupDispatchesTotal.Inc()
	return true
}

// Release forgets a recorded dispatch, so a retry after a failed dispatch
// is not suppressed.
func (d *Deduplicator) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Execute runs dispatch unless an identical key was dispatched within the
// suppression window. The first return value reports suppression: when
// true, dispatch was not called. A failed dispatch releases the key so an
// immediate retry goes through.
func (d *Deduplicator) Execute(ctx context.Context, key string, dispatch func(context.Context) error) (bool, error) {
	if !d.Acquire(key) {
		return true, nil
	}

	if err := dispatch(ctx); err != nil {
		d.Release(key)
		return false, err
	}
	return false, nil
}

// Reset clears all tracked keys. The next request for any key dispatches.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}

// prune drops entries older than the window. Caller holds the lock.
func (d *Deduplicator) prune(now time.Time) {
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.window {
			delete(d.seen, key)
		}
	}
}
