package paginate

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/levipshemish/jewgo-catalog/pkg/client"
	"github.com/levipshemish/jewgo-catalog/pkg/dedup"
	"github.com/levipshemish/jewgo-catalog/pkg/filter"
	"github.com/levipshemish/jewgo-catalog/pkg/scrollstate"
)

// Prometheus metrics for the coordinator.
var (
	modeSwitchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pagination_mode_switches_total",
		Help: "Total number of cursor-to-offset fallback switches",
	})

	cursorFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pagination_cursor_failures_total",
		Help: "Total number of cursor fetch failures counted toward fallback",
	})
)

// Mode identifies the active pagination strategy.
type Mode string

const (
	// ModeCursor is keyset pagination, stable under concurrent dataset
	// mutation.
	ModeCursor Mode = "cursor"

	// ModeOffset is page/offset pagination, the degraded fallback.
	ModeOffset Mode = "offset"
)

// coordState is the composed fallback state machine's state.
type coordState struct {
	mode     Mode
	failures int
}

// transition is the fallback state machine's transition table, applied on
// each cursor fetch failure:
//
//	(cursor, n) -> (cursor, n+1)        n+1 <  threshold or fallback off
//	(cursor, n) -> (offset, 0)          n+1 >= threshold and fallback on
//	(offset, n) -> (offset, n)          offset failures do not transition
func transition(s coordState, threshold int, fallbackEnabled bool) coordState {
	if s.mode != ModeCursor {
		return s
	}

	failures := s.failures + 1
	if fallbackEnabled && failures >= threshold {
		return coordState{mode: ModeOffset, failures: 0}
	}
	return coordState{mode: ModeCursor, failures: failures}
}

// Config configures a Coordinator.
type Config struct {
	// PreferredMode is the starting strategy. Default: ModeCursor.
	PreferredMode Mode

	// FallbackEnabled allows automatic cursor-to-offset fallback.
	FallbackEnabled bool

	// FailureThreshold is the number of consecutive cursor failures that
	// triggers fallback. Default: 3.
	FailureThreshold int

	// PageSize is the items-per-page limit. Default: 24.
	PageSize int

	// SortKey and Direction control cursor-mode ordering.
	SortKey   string
	Direction string

	// DedupWindow is the duplicate-suppression window shared by both
	// strategies. Default: dedup.DefaultWindow.
	DedupWindow time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		PreferredMode:    ModeCursor,
		FallbackEnabled:  true,
		FailureThreshold: 3,
		PageSize:         24,
		SortKey:          "created_at",
		Direction:        "desc",
	}
}

// Fetcher combines both strategy interfaces. *client.Client satisfies it.
type Fetcher interface {
	CursorFetcher
	OffsetFetcher
}

// Coordinator abstracts over the two pagination strategies behind a
// single fetch API, handling automatic fallback and scroll-state
// persistence.
type Coordinator struct {
	cfg      Config
	cursor   *CursorPaginator
	offset   *OffsetPaginator
	states   *scrollstate.Store
	notifier *Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	state   coordState
	query   string
	filters filter.Filters
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithScrollStateStore attaches a scroll-state store for save/restore.
func WithScrollStateStore(store *scrollstate.Store) CoordinatorOption {
	return func(c *Coordinator) {
		c.states = store
	}
}

// WithNotifier attaches a throttled state-change notifier.
func WithNotifier(n *Notifier) CoordinatorOption {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// NewCoordinator creates a hybrid pagination coordinator. Both strategies
// share one deduplicator sized by cfg.DedupWindow.
func NewCoordinator(fetcher Fetcher, cfg Config, opts ...CoordinatorOption) *Coordinator {
	if cfg.PreferredMode == "" {
		cfg.PreferredMode = ModeCursor
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = dedup.DefaultWindow
	}

	deduper := dedup.New(cfg.DedupWindow)

	c := &Coordinator{
		cfg: cfg,
		cursor: NewCursorPaginator(fetcher, deduper, CursorConfig{
			SortKey:   cfg.SortKey,
			Direction: cfg.Direction,
			Limit:     cfg.PageSize,
		}),
		offset: NewOffsetPaginator(fetcher, deduper),
		logger: log.With().Str("component", "pagination-coordinator").Logger(),
		state:  coordState{mode: cfg.PreferredMode},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Mode returns the currently active strategy, observable for diagnostics.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.mode
}

// FailureCount returns the consecutive cursor failure count.
func (c *Coordinator) FailureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.failures
}

// FetchData fetches the first page for a (query, filters) context,
// replacing any displayed items. Interrupted fetches (superseded or
// canceled) are swallowed and return an empty result with no error.
func (c *Coordinator) FetchData(ctx context.Context, query string, rawFilters map[string]any, appendMode bool) (FetchResult, error) {
	f := filter.Normalize(rawFilters)

	c.mu.Lock()
	c.query = query
	c.filters = f
	mode := c.state.mode
	c.mu.Unlock()

	if mode == ModeOffset {
		page := 1
		if appendMode {
			page = c.offset.Page() + 1
		}
		res, err := c.offset.Fetch(ctx, page, query, f, c.cfg.PageSize, appendMode)
		return c.finish(res, err)
	}

	cursor := ""
	if appendMode {
		cursor = c.cursor.Cursor()
	}
	res, err := c.cursor.Fetch(ctx, cursor, query, f, appendMode)
	if err == nil || IsInterrupted(err) {
		return c.finish(res, err)
	}

	return c.handleCursorFailure(ctx, err)
}

// FetchNextPage fetches the next page under the active strategy,
// appending to the displayed items.
func (c *Coordinator) FetchNextPage(ctx context.Context) (FetchResult, error) {
	c.mu.Lock()
	mode := c.state.mode
	c.mu.Unlock()

	if mode == ModeOffset {
		res, err := c.offset.FetchNextPage(ctx)
		return c.finish(res, err)
	}

	res, err := c.cursor.FetchNextPage(ctx)
	if err == nil || IsInterrupted(err) {
		return c.finish(res, err)
	}

	return c.handleCursorFailure(ctx, err)
}

// handleCursorFailure advances the fallback state machine and, when the
// threshold trips, atomically switches to offset mode and retries so the
// next page continues seamlessly from the items already displayed.
func (c *Coordinator) handleCursorFailure(ctx context.Context, cause error) (FetchResult, error) {
	cursorFailuresTotal.Inc()

	c.mu.Lock()
	prev := c.state
	c.state = transition(prev, c.cfg.FailureThreshold, c.cfg.FallbackEnabled)
	switched := c.state.mode != prev.mode
	query := c.query
	f := c.filters
	c.mu.Unlock()

	if !switched {
		c.logger.Warn().
			Err(cause).
			Int("failures", prev.failures+1).
			Int("threshold", c.cfg.FailureThreshold).
			Msg("Cursor fetch failed")
		return FetchResult{}, cause
	}

	modeSwitchesTotal.Inc()
	c.logger.Warn().
		Err(cause).
		Int("failures", prev.failures+1).
		Msg("Cursor pagination degraded, falling back to offset mode")

	// A mode switch cancels in-flight work of the previous mode before
	// the retry is issued.
	c.cursor.CancelInFlight()

	// Seed offset state from the displayed items so the retry appends
	// contiguously instead of restarting.
	displayed := c.cursor.Items()
	c.offset.Adopt(displayed, query, f, c.cfg.PageSize)

	page := len(displayed)/c.cfg.PageSize + 1
	res, err := c.offset.Fetch(ctx, page, query, f, c.cfg.PageSize, true)
	return c.finish(res, err)
}

// finish swallows interruption errors and publishes the throttled state
// update.
func (c *Coordinator) finish(res FetchResult, err error) (FetchResult, error) {
	if err != nil {
		if IsInterrupted(err) {
			return FetchResult{}, nil
		}
		return res, err
	}

	// A successful cursor fetch resets the consecutive failure counter.
	c.mu.Lock()
	if c.state.mode == ModeCursor {
		c.state.failures = 0
	}
	mode := c.state.mode
	query := c.query
	f := c.filters
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.Publish(Update{
			Query:     query,
			Filters:   f,
			Mode:      mode,
			ItemCount: c.ItemCount(),
		})
	}

	return res, nil
}

// Items returns the displayed items of the active strategy.
func (c *Coordinator) Items() []client.Restaurant {
	if c.Mode() == ModeOffset {
		return c.offset.Items()
	}
	return c.cursor.Items()
}

// ItemCount returns the number of displayed items.
func (c *Coordinator) ItemCount() int {
	if c.Mode() == ModeOffset {
		return c.offset.ItemCount()
	}
	return c.cursor.ItemCount()
}

// HasMore reports whether the active strategy has another page.
func (c *Coordinator) HasMore() bool {
	if c.Mode() == ModeOffset {
		return c.offset.HasMore()
	}
	return c.cursor.HasMore()
}

// Reset clears both strategies and returns to the preferred mode.
func (c *Coordinator) Reset() {
	c.cursor.Reset()
	c.offset.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = coordState{mode: c.cfg.PreferredMode}
}

// SaveScrollState persists the current pagination position with the given
// scroll anchor. No-op without an attached store.
func (c *Coordinator) SaveScrollState(ctx context.Context, anchorID string, scrollY float64) {
	if c.states == nil {
		return
	}

	c.mu.Lock()
	mode := c.state.mode
	query := c.query
	f := c.filters
	c.mu.Unlock()

	entry := scrollstate.Entry{
		AnchorID:  anchorID,
		ScrollY:   scrollY,
		Query:     query,
		Filters:   f,
		ItemCount: c.ItemCount(),
	}

	if mode == ModeOffset {
		entry.CursorOrOffset = strconv.Itoa(c.offset.Page())
	} else {
		entry.CursorOrOffset = c.cursor.Cursor()
		entry.DataVersion = c.cursor.DataVersion()
	}

	c.states.Save(ctx, entry)
}

// RestoreScrollState looks up a saved position for the current (query,
// filters) context and primes the active strategy to continue from it.
// The returned flag reports a dataVersion mismatch; the caller decides
// whether to trust the restored position or reset.
func (c *Coordinator) RestoreScrollState(ctx context.Context, query string, rawFilters map[string]any) (*scrollstate.Entry, bool) {
	if c.states == nil {
		return nil, false
	}

	f := filter.Normalize(rawFilters)

	c.mu.Lock()
	c.query = query
	c.filters = f
	mode := c.state.mode
	c.mu.Unlock()

	currentVersion := ""
	if mode == ModeCursor {
		currentVersion = c.cursor.DataVersion()
	}

	entry, mismatch := c.states.Restore(ctx, query, f, currentVersion)
	if entry == nil {
		return nil, false
	}

	if mode == ModeOffset {
		if page, err := strconv.Atoi(entry.CursorOrOffset); err == nil {
			c.offset.Prime(page, query, f, c.cfg.PageSize)
		}
	} else {
		c.cursor.Prime(entry.CursorOrOffset, query, f)
	}

	return entry, mismatch
}

// ClearScrollState drops all persisted positions for the session.
func (c *Coordinator) ClearScrollState(ctx context.Context) {
	if c.states != nil {
		c.states.Clear(ctx)
	}
}
