package scrollstate

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// Store persists and restores scroll-state entries. All storage failures
// are swallowed: a failed read is a miss, a failed write is a no-op.
// Callers never see a storage error.
type Store struct {
	backend    Backend
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock, used by tests to control time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMaxAge overrides the staleness cutoff.
func WithMaxAge(maxAge time.Duration) Option {
	return func(s *Store) {
		s.maxAge = maxAge
	}
}

// WithMaxEntries overrides the per-session entry cap.
func WithMaxEntries(maxEntries int) Option {
	return func(s *Store) {
		s.maxEntries = maxEntries
	}
}

// NewStore creates a scroll-state store over the given backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		maxAge:     DefaultMaxAge,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		logger:     log.With().Str("component", "scrollstate").Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Save persists an entry for the (query, filters) fingerprint, overwriting
// any previous entry for the same fingerprint. Maintenance runs first:
// stale entries are purged, then the oldest entries are evicted until the
// session is back within its cap.
func (s *Store) Save(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	key := storageKey(entry.Query, entry.Filters)
	s.maintain(ctx, key)

	data, err := json.Marshal(entry)
	if err != nil {
		storageErrors.WithLabelValues("set").Inc()
		s.logger.Debug().Err(err).Msg("Scroll state marshal failed, dropping save")
		return
	}

	if err := s.backend.Set(ctx, key, data); err != nil {
		storageErrors.WithLabelValues("set").Inc()
		s.logger.Debug().Err(err).Str("key", key).Msg("Scroll state write failed, dropping save")
		return
	}

	s.logger.Debug().
		Str("key", key).
		Int("item_count", entry.ItemCount).
		Msg("Scroll state saved")
}

// Restore looks up the entry for the (query, filters) fingerprint. The
// second return value flags a dataVersion mismatch between the entry and
// the caller-supplied current version; the entry is still returned and the
// caller decides how to react. A stale entry is deleted and reported as a
// miss. Returns (nil, false) on any miss or storage failure.
func (s *Store) Restore(ctx context.Context, query string, f filter.Filters, dataVersion string) (*Entry, bool) {
	key := storageKey(query, f)

	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if err != ErrNotFound {
			storageErrors.WithLabelValues("get").Inc()
			s.logger.Debug().Err(err).Str("key", key).Msg("Scroll state read failed, treating as miss")
		}
		restoreMisses.Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Schema-mismatched entries are discarded rather than erroring.
		storageErrors.WithLabelValues("get").Inc()
		s.deleteQuiet(ctx, key)
		restoreMisses.Inc()
		s.logger.Debug().Err(err).Str("key", key).Msg("Unreadable scroll state discarded")
		return nil, false
	}

	if entry.isStale(s.now(), s.maxAge) {
		s.deleteQuiet(ctx, key)
		evictions.WithLabelValues("stale").Inc()
		restoreMisses.Inc()
		s.logger.Debug().Str("key", key).Msg("Stale scroll state discarded")
		return nil, false
	}

	mismatch := dataVersion != "" && entry.DataVersion != "" && entry.DataVersion != dataVersion
	if mismatch {
		s.logger.Debug().
			Str("key", key).
			Str("saved_version", entry.DataVersion).
			Str("current_version", dataVersion).
			Msg("Scroll state data version mismatch")
	}

	restoreHits.Inc()
	return &entry, mismatch
}

// Clear removes all scroll-state entries for the session.
func (s *Store) Clear(ctx context.Context) {
	keys, err := s.backend.List(ctx, KeyPrefix)
	if err != nil {
		storageErrors.WithLabelValues("list").Inc()
		s.logger.Debug().Err(err).Msg("Scroll state list failed during clear")
		return
	}

	for _, key := range keys {
		s.deleteQuiet(ctx, key)
	}
}

// maintain purges stale entries and enforces the capacity cap, evicting
// strictly the oldest-by-timestamp entries first. savingKey is the key
// about to be written; overwriting it does not grow the session, so it is
// exempt from capacity counting.
func (s *Store) maintain(ctx context.Context, savingKey string) {
	keys, err := s.backend.List(ctx, KeyPrefix)
	if err != nil {
		storageErrors.WithLabelValues("list").Inc()
		return
	}

	type liveEntry struct {
		key       string
		timestamp time.Time
	}

	now := s.now()
	var live []liveEntry

	for _, key := range keys {
		if key == savingKey {
			continue
		}

		data, err := s.backend.Get(ctx, key)
		if err != nil {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.deleteQuiet(ctx, key)
			continue
		}

		if entry.isStale(now, s.maxAge) {
			s.deleteQuiet(ctx, key)
			evictions.WithLabelValues("stale").Inc()
			continue
		}

		live = append(live, liveEntry{key: key, timestamp: entry.Timestamp})
	}

	// The save that follows adds one entry, so make room for it.
	overflow := len(live) - (s.maxEntries - 1)
	if overflow <= 0 {
		return
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].timestamp.Before(live[j].timestamp)
	})

	for _, victim := range live[:overflow] {
		s.deleteQuiet(ctx, victim.key)
		evictions.WithLabelValues("capacity").Inc()
		s.logger.Debug().Str("key", victim.key).Msg("Scroll state evicted at capacity")
	}
}

func (s *Store) deleteQuiet(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil {
		storageErrors.WithLabelValues("delete").Inc()
	}
}
