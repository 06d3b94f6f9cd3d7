package paginate

import (
	"context"
	"testing"
	"time"

	"github.com/levipshemish/jewgo-catalog/pkg/client"
	"github.com/levipshemish/jewgo-catalog/pkg/scrollstate"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name     string
		state    coordState
		fallback bool
		want     coordState
	}{
		{
			name:     "first failure increments",
			state:    coordState{mode: ModeCursor, failures: 0},
			fallback: true,
			want:     coordState{mode: ModeCursor, failures: 1},
		},
		{
			name:     "second failure increments",
			state:    coordState{mode: ModeCursor, failures: 1},
			fallback: true,
			want:     coordState{mode: ModeCursor, failures: 2},
		},
		{
			name:     "third failure switches",
			state:    coordState{mode: ModeCursor, failures: 2},
			fallback: true,
			want:     coordState{mode: ModeOffset, failures: 0},
		},
		{
			name:     "fallback disabled keeps counting",
			state:    coordState{mode: ModeCursor, failures: 5},
			fallback: false,
			want:     coordState{mode: ModeCursor, failures: 6},
		},
		{
			name:     "offset failures do not transition",
			state:    coordState{mode: ModeOffset, failures: 0},
			fallback: true,
			want:     coordState{mode: ModeOffset, failures: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transition(tt.state, 3, tt.fallback); got != tt.want {
				t.Errorf("transition(%+v) = %+v, want %+v", tt.state, got, tt.want)
			}
		})
	}
}

func TestCoordinator_FallsBackAfterThreeFailures(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(client.CursorQuery) (*client.CursorPage, error) {
			return nil, networkErr()
		},
		offsetFn: func(q client.OffsetQuery) (*client.OffsetPage, error) {
			return offsetPage(q.Offset+1, q.Limit, 100), nil
		},
	}

	c := NewCoordinator(fetcher, DefaultConfig())

	for i := 1; i <= 2; i++ {
		if _, err := c.FetchData(context.Background(), "bagel", nil, false); err == nil {
			t.Fatalf("Failure %d should surface an error", i)
		}
		if c.Mode() != ModeCursor {
			t.Fatalf("Mode after failure %d = %v, want cursor", i, c.Mode())
		}
		if c.FailureCount() != i {
			t.Fatalf("FailureCount = %d, want %d", c.FailureCount(), i)
		}
	}

	// The third failure trips the threshold and the retry happens in
	// offset mode within the same call.
	res, err := c.FetchData(context.Background(), "bagel", nil, false)
	if err != nil {
		t.Fatalf("Fallback fetch failed: %v", err)
	}
	if c.Mode() != ModeOffset {
		t.Errorf("Mode = %v, want offset", c.Mode())
	}
	if res.ReceivedCount != 24 {
		t.Errorf("ReceivedCount = %d, want 24 from the offset retry", res.ReceivedCount)
	}
	if fetcher.CursorCalls() != 3 || fetcher.OffsetCalls() != 1 {
		t.Errorf("Calls cursor=%d offset=%d, want 3/1", fetcher.CursorCalls(), fetcher.OffsetCalls())
	}
}

func TestCoordinator_ContiguousItemsAcrossSwitch(t *testing.T) {
	cursorCalls := 0
	fetcher := &stubFetcher{}
	fetcher.cursorFn = func(q client.CursorQuery) (*client.CursorPage, error) {
		cursorCalls++
		if cursorCalls == 1 {
			return cursorPage(1, 24, "abc123", true), nil
		}
		return nil, networkErr()
	}
	fetcher.offsetFn = func(q client.OffsetQuery) (*client.OffsetPage, error) {
		return offsetPage(q.Offset+1, q.Limit, 100), nil
	}

	c := NewCoordinator(fetcher, DefaultConfig())

	if _, err := c.FetchData(context.Background(), "bagel", nil, false); err != nil {
		t.Fatalf("Initial fetch failed: %v", err)
	}

	// Two failed next-page attempts stay in cursor mode with the 24
	// loaded items untouched.
	for i := 0; i < 2; i++ {
		if _, err := c.FetchNextPage(context.Background()); err == nil {
			t.Fatal("Expected error")
		}
	}
	if c.Mode() != ModeCursor || c.ItemCount() != 24 {
		t.Fatalf("Mode=%v items=%d, want cursor/24", c.Mode(), c.ItemCount())
	}

	// The third failure switches modes and continues from item 25.
	res, err := c.FetchNextPage(context.Background())
	if err != nil {
		t.Fatalf("Fallback next page failed: %v", err)
	}
	if c.Mode() != ModeOffset {
		t.Errorf("Mode = %v, want offset", c.Mode())
	}
	if res.ReceivedCount != 24 {
		t.Errorf("ReceivedCount = %d, want 24", res.ReceivedCount)
	}
	if q := fetcher.LastOffsetQuery(); q.Offset != 24 {
		t.Errorf("Continuation offset = %d, want 24", q.Offset)
	}
	if err := checkIDs(c.Items(), 1, 48); err != nil {
		t.Error(err)
	}

	// Later pages keep extending the same duplicate-free list.
	if _, err := c.FetchNextPage(context.Background()); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if err := checkIDs(c.Items(), 1, 72); err != nil {
		t.Error(err)
	}
}

func TestCoordinator_NoFallbackWhenDisabled(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(client.CursorQuery) (*client.CursorPage, error) {
			return nil, networkErr()
		},
	}

	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	c := NewCoordinator(fetcher, cfg)

	for i := 1; i <= 5; i++ {
		if _, err := c.FetchData(context.Background(), "bagel", nil, false); err == nil {
			t.Fatal("Expected error")
		}
	}

	if c.Mode() != ModeCursor {
		t.Errorf("Mode = %v, want cursor with fallback disabled", c.Mode())
	}
	if c.FailureCount() != 5 {
		t.Errorf("FailureCount = %d, want 5", c.FailureCount())
	}
	if fetcher.OffsetCalls() != 0 {
		t.Errorf("Offset calls = %d, want 0", fetcher.OffsetCalls())
	}
}

func TestCoordinator_SuccessResetsFailureCount(t *testing.T) {
	calls := 0
	fetcher := &stubFetcher{
		cursorFn: func(q client.CursorQuery) (*client.CursorPage, error) {
			calls++
			if calls <= 2 {
				return nil, networkErr()
			}
			return cursorPage(1, 5, "", false), nil
		},
	}

	c := NewCoordinator(fetcher, DefaultConfig())

	c.FetchData(context.Background(), "bagel", nil, false)
	c.FetchData(context.Background(), "bagel", nil, false)
	if c.FailureCount() != 2 {
		t.Fatalf("FailureCount = %d, want 2", c.FailureCount())
	}

	if _, err := c.FetchData(context.Background(), "bagel", nil, false); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if c.FailureCount() != 0 {
		t.Errorf("FailureCount = %d, want 0 after success", c.FailureCount())
	}
	if c.Mode() != ModeCursor {
		t.Errorf("Mode = %v, want cursor", c.Mode())
	}
}

func TestCoordinator_OffsetModePreferred(t *testing.T) {
	fetcher := &stubFetcher{
		offsetFn: func(q client.OffsetQuery) (*client.OffsetPage, error) {
			return offsetPage(q.Offset+1, q.Limit, 48), nil
		},
	}

	cfg := DefaultConfig()
	cfg.PreferredMode = ModeOffset
	c := NewCoordinator(fetcher, cfg)

	if _, err := c.FetchData(context.Background(), "", nil, false); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetcher.CursorCalls() != 0 {
		t.Errorf("Cursor calls = %d, want 0", fetcher.CursorCalls())
	}
	if _, err := c.FetchNextPage(context.Background()); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if err := checkIDs(c.Items(), 1, 48); err != nil {
		t.Error(err)
	}
}

func TestCoordinator_ResetReturnsToPreferredMode(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(client.CursorQuery) (*client.CursorPage, error) {
			return nil, networkErr()
		},
		offsetFn: func(q client.OffsetQuery) (*client.OffsetPage, error) {
			return offsetPage(q.Offset+1, q.Limit, 100), nil
		},
	}

	c := NewCoordinator(fetcher, DefaultConfig())
	for i := 0; i < 3; i++ {
		c.FetchData(context.Background(), "bagel", nil, false)
	}
	if c.Mode() != ModeOffset {
		t.Fatalf("Mode = %v, want offset before reset", c.Mode())
	}

	c.Reset()

	if c.Mode() != ModeCursor {
		t.Errorf("Mode = %v, want cursor after reset", c.Mode())
	}
	if c.ItemCount() != 0 || c.FailureCount() != 0 {
		t.Errorf("State after reset: items=%d failures=%d, want 0/0",
			c.ItemCount(), c.FailureCount())
	}
}

func TestCoordinator_ScrollStateRoundTrip(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(q client.CursorQuery) (*client.CursorPage, error) {
			if q.Cursor == "" {
				return cursorPage(1, 24, "abc123", true), nil
			}
			return cursorPage(25, 24, "", false), nil
		},
	}

	store := scrollstate.NewStore(scrollstate.NewMemoryBackend())
	filters := map[string]any{"kosherCategory": "dairy"}

	c := NewCoordinator(fetcher, DefaultConfig(), WithScrollStateStore(store))
	if _, err := c.FetchData(context.Background(), "bagel", filters, false); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	c.SaveScrollState(context.Background(), "restaurant-17", 1840)

	// A fresh coordinator for the same session restores and continues.
	restored := NewCoordinator(fetcher, DefaultConfig(), WithScrollStateStore(store))
	entry, mismatch := restored.RestoreScrollState(context.Background(), "bagel", filters)
	if entry == nil {
		t.Fatal("Expected a restored entry")
	}
	if mismatch {
		t.Error("Unexpected data version mismatch")
	}
	if entry.AnchorID != "restaurant-17" || entry.ScrollY != 1840 {
		t.Errorf("Entry = %+v, want anchor restaurant-17 at 1840", entry)
	}
	if entry.ItemCount != 24 {
		t.Errorf("ItemCount = %d, want 24", entry.ItemCount)
	}

	if _, err := restored.FetchNextPage(context.Background()); err != nil {
		t.Fatalf("Continuation fetch failed: %v", err)
	}
	if q := fetcher.LastCursorQuery(); q.Cursor != "abc123" {
		t.Errorf("Continuation cursor = %q, want abc123", q.Cursor)
	}
}

func TestCoordinator_RestoreMissForDifferentFilters(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(client.CursorQuery) (*client.CursorPage, error) {
			return cursorPage(1, 5, "tok", true), nil
		},
	}

	store := scrollstate.NewStore(scrollstate.NewMemoryBackend())
	c := NewCoordinator(fetcher, DefaultConfig(), WithScrollStateStore(store))

	c.FetchData(context.Background(), "bagel", map[string]any{"kosherCategory": "dairy"}, false)
	c.SaveScrollState(context.Background(), "anchor", 100)

	entry, _ := c.RestoreScrollState(context.Background(), "bagel", map[string]any{"kosherCategory": "meat"})
	if entry != nil {
		t.Errorf("Restore for different filters returned %+v, want miss", entry)
	}
}

func TestCoordinator_RestoreFlagsDataVersionMismatch(t *testing.T) {
	version := "v1"
	fetcher := &stubFetcher{}
	fetcher.cursorFn = func(q client.CursorQuery) (*client.CursorPage, error) {
		p := cursorPage(1, 5, "tok", true)
		p.DataVersion = version
		return p, nil
	}

	store := scrollstate.NewStore(scrollstate.NewMemoryBackend())

	saver := NewCoordinator(fetcher, DefaultConfig(), WithScrollStateStore(store))
	saver.FetchData(context.Background(), "bagel", nil, false)
	saver.SaveScrollState(context.Background(), "anchor", 250)

	// The dataset was republished before the user came back.
	version = "v2"
	restorer := NewCoordinator(fetcher, DefaultConfig(), WithScrollStateStore(store))
	restorer.FetchData(context.Background(), "bagel", nil, false)

	entry, mismatch := restorer.RestoreScrollState(context.Background(), "bagel", nil)
	if entry == nil {
		t.Fatal("Mismatched entry must still be returned, the caller decides")
	}
	if !mismatch {
		t.Error("Expected a data version mismatch flag")
	}
}

func TestCoordinator_NotifierReceivesUpdates(t *testing.T) {
	fetcher := &stubFetcher{
		cursorFn: func(client.CursorQuery) (*client.CursorPage, error) {
			return cursorPage(1, 5, "", false), nil
		},
	}

	updates := make(chan Update, 1)
	n := NewNotifier(10*time.Millisecond, func(u Update) {
		select {
		case updates <- u:
		default:
		}
	})
	defer n.Stop()

	c := NewCoordinator(fetcher, DefaultConfig(), WithNotifier(n))
	if _, err := c.FetchData(context.Background(), "bagel", map[string]any{"kosherCategory": "dairy"}, false); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	select {
	case u := <-updates:
		if u.Query != "bagel" || u.Mode != ModeCursor || u.ItemCount != 5 {
			t.Errorf("Update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("No update published")
	}
}

func TestCoordinator_DedupWindowConfigurable(t *testing.T) {
	newFetcher := func() *stubFetcher {
		return &stubFetcher{
			cursorFn: func(q client.CursorQuery) (*client.CursorPage, error) {
				return cursorPage(1, 24, "abc123", true), nil
			},
		}
	}

	// Default window: a back-to-back duplicate is suppressed.
	fetcher := newFetcher()
	c := NewCoordinator(fetcher, DefaultConfig())
	c.FetchData(context.Background(), "bagel", nil, false)
	c.FetchData(context.Background(), "bagel", nil, false)
	if got := fetcher.CursorCalls(); got != 1 {
		t.Errorf("Cursor calls = %d, want 1 with default window", got)
	}

	// A near-zero window lets the same request through again.
	cfg := DefaultConfig()
	cfg.DedupWindow = time.Nanosecond
	fetcher = newFetcher()
	c = NewCoordinator(fetcher, cfg)
	c.FetchData(context.Background(), "bagel", nil, false)
	c.FetchData(context.Background(), "bagel", nil, false)
	if got := fetcher.CursorCalls(); got != 2 {
		t.Errorf("Cursor calls = %d, want 2 with nanosecond window", got)
	}
}
