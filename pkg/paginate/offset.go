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

// OffsetPaginator fetches catalog pages by numeric page and offset.
type OffsetPaginator struct {
	fetcher OffsetFetcher
	dedup   *dedup.Deduplicator
	logger  zerolog.Logger

	mu         sync.Mutex
	items      []client.Restaurant
	seen       map[string]struct{}
	query      string
	filters    filter.Filters
	page       int
	perPage    int
	total      int
	hasMore    bool
	epoch      uint64
	cancelPrev context.CancelFunc
}

// NewOffsetPaginator creates an offset paginator.
func NewOffsetPaginator(fetcher OffsetFetcher, deduper *dedup.Deduplicator) *OffsetPaginator {
	if deduper == nil {
		deduper = dedup.New(dedup.DefaultWindow)
	}

	return &OffsetPaginator{
		fetcher: fetcher,
		dedup:   deduper,
		logger:  log.With().Str("component", "offset-paginator").Logger(),
		seen:    make(map[string]struct{}),
	}
}

// Fetch requests the given 1-based page. On a non-append call the entire
// result list and total are replaced; on append, new items merge in with
// ids already present excluded (ids compared after normalization, so
// numeric and string forms of the same id are equal).
//
// On a non-append error the paginator resets to an empty, consistent
// state; an append error preserves the already-displayed items, since the
// merge is applied only after a fully successful response.
func (p *OffsetPaginator) Fetch(ctx context.Context, page int, query string, f filter.Filters, perPage int, appendMode bool) (FetchResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 24
	}
	offset := (page - 1) * perPage

	q := client.OffsetQuery{
		Limit:   perPage,
		Offset:  offset,
		Search:  query,
		Filters: f,
	}

	key := p.fetcher.OffsetRequestKey(q)
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

	resp, err := p.fetcher.FetchOffsetPage(fetchCtx, q)
	if err != nil {
		p.dedup.Release(key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.epoch != myEpoch {
		return FetchResult{}, ErrSuperseded
	}

	if err != nil {
		if client.IsCanceled(err) {
			return FetchResult{}, ErrSuperseded
		}
		if !appendMode {
			p.resetLocked()
			p.total = 0
			p.hasMore = false
		}
		return FetchResult{}, err
	}

	if !appendMode {
		p.resetLocked()
	}

	added := p.mergeLocked(resp.Restaurants)
	returned := len(resp.Restaurants)

	p.page = page
	p.perPage = perPage
	p.total = resp.Total

	// Prefer the explicit server flag, then infer from the known total,
	// then fall back to a page-fullness heuristic.
	switch {
	case resp.HasMore != nil:
		p.hasMore = *resp.HasMore
	case resp.Total > 0:
		p.hasMore = offset+returned < resp.Total
	default:
		p.hasMore = returned >= perPage
	}

	p.logger.Debug().
		Int("page", page).
		Int("offset", offset).
		Int("added", added).
		Int("total", p.total).
		Bool("has_more", p.hasMore).
		Msg("Offset fetch applied")

	return FetchResult{ReceivedCount: added, HasMore: p.hasMore}, nil
}

// FetchNextPage fetches the page after the last successful one in append
// mode. It is a zero-result no-op when no further page is available.
func (p *OffsetPaginator) FetchNextPage(ctx context.Context) (FetchResult, error) {
	p.mu.Lock()
	hasMore := p.hasMore
	page := p.page
	perPage := p.perPage
	query := p.query
	f := p.filters
	p.mu.Unlock()

	if !hasMore || page < 1 {
		return FetchResult{}, nil
	}

	return p.Fetch(ctx, page+1, query, f, perPage, true)
}

// Adopt seeds the paginator with items already displayed under another
// strategy, so a subsequent append fetch continues without duplicating
// them. The page counter is set as if those items had been fetched under
// offset semantics.
func (p *OffsetPaginator) Adopt(items []client.Restaurant, query string, f filter.Filters, perPage int) {
	if perPage <= 0 {
		perPage = 24
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetLocked()
	p.mergeLocked(items)
	p.query = query
	p.filters = f
	p.perPage = perPage
	p.page = len(p.items) / perPage
	p.hasMore = true
}

// CancelInFlight cancels any pending fetch and invalidates its result.
func (p *OffsetPaginator) CancelInFlight() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	if p.cancelPrev != nil {
		p.cancelPrev()
		p.cancelPrev = nil
	}
}

// Prime seeds the paginator so the next FetchNextPage continues from a
// restored page position.
func (p *OffsetPaginator) Prime(page int, query string, f filter.Filters, perPage int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
	p.perPage = perPage
	p.query = query
	p.filters = f
	p.hasMore = page > 0
}

// Reset clears all paginator state.
func (p *OffsetPaginator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.resetLocked()
	p.page = 0
	p.total = 0
	p.hasMore = false
}

// Items returns a copy of the merged result list.
func (p *OffsetPaginator) Items() []client.Restaurant {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]client.Restaurant, len(p.items))
	copy(out, p.items)
	return out
}

// ItemCount returns the number of displayed items.
func (p *OffsetPaginator) ItemCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// HasMore reports whether another page is available.
func (p *OffsetPaginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Total returns the total count reported by the last response.
func (p *OffsetPaginator) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Page returns the last successfully fetched 1-based page.
func (p *OffsetPaginator) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

func (p *OffsetPaginator) mergeLocked(restaurants []client.Restaurant) int {
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

func (p *OffsetPaginator) resetLocked() {
	p.items = nil
	p.seen = make(map[string]struct{})
}
