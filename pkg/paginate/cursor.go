package paginate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/levipshemish/jewgo-catalog/pkg/client"
	"github.com/levipshemish/jewgo-catalog/pkg/dedup"
	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// CursorPaginator fetches catalog pages with server-issued keyset cursors.
// Cursors are opaque: the paginator passes them through unmodified and
// never inspects or constructs one.
type CursorPaginator struct {
	fetcher CursorFetcher
	dedup   *dedup.Deduplicator
	logger  zerolog.Logger

	sortKey   string
	direction string
	limit     int

	mu          sync.Mutex
	items       []client.Restaurant
	seen        map[string]struct{}
	query       string
	filters     filter.Filters
	cursor      string
	hasMore     bool
	dataVersion string
	epoch       uint64
	cancelPrev  context.CancelFunc
}

// CursorConfig configures a CursorPaginator.
type CursorConfig struct {
	SortKey   string
	Direction string
	Limit     int
}

// NewCursorPaginator creates a cursor paginator. Zero config fields get
// catalog defaults (created_at desc, 24 per page).
func NewCursorPaginator(fetcher CursorFetcher, deduper *dedup.Deduplicator, cfg CursorConfig) *CursorPaginator {
	if cfg.SortKey == "" {
		cfg.SortKey = "created_at"
	}
	if cfg.Direction == "" {
		cfg.Direction = "desc"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 24
	}
	if deduper == nil {
		deduper = dedup.New(dedup.DefaultWindow)
	}

	return &CursorPaginator{
		fetcher:   fetcher,
		dedup:     deduper,
		logger:    log.With().Str("component", "cursor-paginator").Logger(),
		sortKey:   cfg.SortKey,
		direction: cfg.Direction,
		limit:     cfg.Limit,
		seen:      make(map[string]struct{}),
	}
}

// Fetch issues a cursor request and merges the response into paginator
// state. A nil-equivalent (empty) cursor starts from the beginning. Any
// still-in-flight previous fetch is canceled, and a fetch whose result
// arrives after a newer fetch started returns ErrSuperseded without
// touching state.
//
// Cursor expiry is handled entirely locally: the stored cursor is cleared
// and hasMore set false with no error surfaced, so the next pagination
// action restarts cleanly.
func (p *CursorPaginator) Fetch(ctx context.Context, cursor, query string, f filter.Filters, appendMode bool) (FetchResult, error) {
	q := client.CursorQuery{
		Cursor:    cursor,
		Limit:     p.limit,
		SortKey:   p.sortKey,
		Direction: p.direction,
		Search:    query,
		Filters:   f,
	}

	// The suppression check runs before the generation bump so a
	// suppressed duplicate does not invalidate the fetch it duplicates.
	key := p.fetcher.CursorRequestKey(q)
	if !p.dedup.Acquire(key) {
		return FetchResult{Deduplicated: true, HasMore: p.HasMore()}, nil
	}

	p.mu.Lock()
	p.epoch++
	myEpoch := p.epoch
	if p.cancelPrev != nil {
		p.cancelPrev()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	p.cancelPrev = cancel
	p.query = query
	p.filters = f
	p.mu.Unlock()

	defer cancel()

	page, err := p.fetcher.FetchCursorPage(fetchCtx, q)
	if err != nil {
		p.dedup.Release(key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The generation check is the authoritative discard mechanism;
	// cancellation is best-effort.
	if p.epoch != myEpoch {
		return FetchResult{}, ErrSuperseded
	}

	if err != nil {
		if client.IsCanceled(err) {
			return FetchResult{}, ErrSuperseded
		}
		if client.IsCursorExpired(err) {
			p.cursor = ""
			p.hasMore = false
			p.logger.Debug().Msg("Cursor expired, pagination will restart from the beginning")
			return FetchResult{}, nil
		}
		if !appendMode {
			p.resetLocked()
		}
		return FetchResult{}, err
	}

	if !appendMode {
		p.resetLocked()
	}

	added := p.mergeLocked(page.Restaurants)
	p.cursor = page.NextCursor
	p.hasMore = page.HasMore && page.NextCursor != ""

	if page.DataVersion != "" {
		if p.dataVersion != "" && p.dataVersion != page.DataVersion {
			p.logger.Warn().
				Str("previous", p.dataVersion).
				Str("current", page.DataVersion).
				Msg("Dataset version changed between requests")
		}
		p.dataVersion = page.DataVersion
	}

	p.logger.Debug().
		Int("added", added).
		Int("total_items", len(p.items)).
		Bool("has_more", p.hasMore).
		Msg("Cursor fetch applied")

	return FetchResult{ReceivedCount: added, HasMore: p.hasMore}, nil
}

// FetchNextPage re-invokes Fetch in append mode using the stored cursor.
// It is a zero-result no-op when no further page is available.
func (p *CursorPaginator) FetchNextPage(ctx context.Context) (FetchResult, error) {
	p.mu.Lock()
	cursor := p.cursor
	hasMore := p.hasMore
	query := p.query
	f := p.filters
	p.mu.Unlock()

	if !hasMore || cursor == "" {
		return FetchResult{}, nil
	}

	return p.Fetch(ctx, cursor, query, f, true)
}

// CancelInFlight cancels any pending fetch and invalidates its result.
func (p *CursorPaginator) CancelInFlight() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	if p.cancelPrev != nil {
		p.cancelPrev()
		p.cancelPrev = nil
	}
}

// Prime seeds the paginator with a restored cursor so the next
// FetchNextPage continues from a saved position.
func (p *CursorPaginator) Prime(cursor, query string, f filter.Filters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = cursor
	p.query = query
	p.filters = f
	p.hasMore = cursor != ""
}

// Reset clears all paginator state.
func (p *CursorPaginator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.resetLocked()
	p.cursor = ""
	p.hasMore = false
	p.dataVersion = ""
}

// Items returns a copy of the merged result list.
func (p *CursorPaginator) Items() []client.Restaurant {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]client.Restaurant, len(p.items))
	copy(out, p.items)
	return out
}

// ItemCount returns the number of displayed items.
func (p *CursorPaginator) ItemCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// HasMore reports whether another page is available.
func (p *CursorPaginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Cursor returns the stored next-page cursor.
func (p *CursorPaginator) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// DataVersion returns the dataset version of the last response.
func (p *CursorPaginator) DataVersion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataVersion
}

// mergeLocked appends items whose normalized id is not yet displayed.
// Caller holds the lock.
func (p *CursorPaginator) mergeLocked(restaurants []client.Restaurant) int {
	added := 0
	for _, r := range restaurants {
		id := r.ID.String()
		if _, dup := p.seen[id]; dup {
			continue
		}
		p.seen[id] = struct{}{}
		p.items = append(p.items, r)
		added++
	}
	return added
}

// resetLocked clears the displayed list. Caller holds the lock.
func (p *CursorPaginator) resetLocked() {
	p.items = nil
	p.seen = make(map[string]struct{})
}
