package paginate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/levipshemish/jewgo-catalog/pkg/client"
	"github.com/levipshemish/jewgo-catalog/pkg/dedup"
	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// stubFetcher is a scriptable Fetcher for strategy tests.
type stubFetcher struct {
	mu            sync.Mutex
	cursorCalls   int
	offsetCalls   int
	cursorQueries []client.CursorQuery
	offsetQueries []client.OffsetQuery
	cursorFn      func(client.CursorQuery) (*client.CursorPage, error)
	offsetFn      func(client.OffsetQuery) (*client.OffsetPage, error)
}

func (s *stubFetcher) FetchCursorPage(_ context.Context, q client.CursorQuery) (*client.CursorPage, error) {
	s.mu.Lock()
	s.cursorCalls++
	s.cursorQueries = append(s.cursorQueries, q)
	fn := s.cursorFn
	s.mu.Unlock()

	if fn == nil {
		return &client.CursorPage{}, nil
	}
	return fn(q)
}

func (s *stubFetcher) FetchOffsetPage(_ context.Context, q client.OffsetQuery) (*client.OffsetPage, error) {
	s.mu.Lock()
	s.offsetCalls++
	s.offsetQueries = append(s.offsetQueries, q)
	fn := s.offsetFn
	s.mu.Unlock()

	if fn == nil {
		return &client.OffsetPage{}, nil
	}
	return fn(q)
}

func (s *stubFetcher) CursorRequestKey(q client.CursorQuery) string {
	return fmt.Sprintf("cursor|%s|%d|%s", q.Cursor, q.Limit, filter.Fingerprint(q.Search, q.Filters))
}

func (s *stubFetcher) OffsetRequestKey(q client.OffsetQuery) string {
	return fmt.Sprintf("offset|%d|%d|%s", q.Offset, q.Limit, filter.Fingerprint(q.Search, q.Filters))
}

func (s *stubFetcher) CursorCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorCalls
}

func (s *stubFetcher) OffsetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetCalls
}

func (s *stubFetcher) LastOffsetQuery() client.OffsetQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.offsetQueries) == 0 {
		return client.OffsetQuery{}
	}
	return s.offsetQueries[len(s.offsetQueries)-1]
}

func (s *stubFetcher) LastCursorQuery() client.CursorQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cursorQueries) == 0 {
		return client.CursorQuery{}
	}
	return s.cursorQueries[len(s.cursorQueries)-1]
}

// noDedup returns a deduplicator whose window is too short to ever
// suppress sequential calls, for tests that exercise repeat fetches.
func noDedup() *dedup.Deduplicator {
	return dedup.New(time.Nanosecond)
}

// makeRestaurants returns count records with sequential string ids
// starting at first.
func makeRestaurants(first, count int) []client.Restaurant {
	out := make([]client.Restaurant, 0, count)
	for i := 0; i < count; i++ {
		id := first + i
		out = append(out, client.Restaurant{
			ID:   client.ID(strconv.Itoa(id)),
			Name: fmt.Sprintf("Restaurant %d", id),
		})
	}
	return out
}

func networkErr() error {
	return &client.APIError{
		Class:   client.ErrorClassNetwork,
		Message: "connection refused",
	}
}

func expiredCursorErr() error {
	return &client.APIError{
		StatusCode: 410,
		Class:      client.ErrorClassCursorExpired,
		Message:    "cursor expired",
		Err:        client.ErrCursorExpired,
	}
}

func cursorPage(first, count int, nextCursor string, hasMore bool) *client.CursorPage {
	items := makeRestaurants(first, count)
	return &client.CursorPage{
		Restaurants:   items,
		HasMore:       hasMore,
		NextCursor:    nextCursor,
		ReturnedCount: len(items),
	}
}

func offsetPage(first, count, total int) *client.OffsetPage {
	return &client.OffsetPage{
		Restaurants: makeRestaurants(first, count),
		Total:       total,
	}
}

// checkIDs verifies the displayed list is exactly ids first..first+count-1
// in order, with no duplicates.
func checkIDs(items []client.Restaurant, first, count int) error {
	if len(items) != count {
		return fmt.Errorf("item count = %d, want %d", len(items), count)
	}
	seen := make(map[string]struct{}, len(items))
	for i, r := range items {
		id := r.ID.String()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate id %s at index %d", id, i)
		}
		seen[id] = struct{}{}
		if want := strconv.Itoa(first + i); id != want {
			return fmt.Errorf("items[%d].ID = %s, want %s", i, id, want)
		}
	}
	return nil
}
