package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

func floatPtr(v float64) *float64 { return &v }

// newTestClient creates a client pointed at a test server.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(server.URL)
	cfg.Retry.MaxAttempts = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, server
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://api.jewgo.app"),
		},
		{
			name:        "missing base URL",
			config:      Config{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestCursorRequestKey_Deterministic(t *testing.T) {
	c, err := New(DefaultConfig("https://api.jewgo.app"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := CursorQuery{
		Cursor:  "abc123",
		Limit:   24,
		SortKey: "created_at",
		Search:  "bagel",
		Filters: filter.Filters{
			KosherCategory: "dairy",
			MinRating:      floatPtr(4),
			BusinessTypes:  []string{"restaurant", "bakery"},
		},
	}

	first := c.CursorRequestKey(q)
	second := c.CursorRequestKey(q)
	if first != second {
		t.Errorf("Keys differ: %q vs %q", first, second)
	}

	other := q
	other.Cursor = "def456"
	if c.CursorRequestKey(other) == first {
		t.Error("Different cursors should produce different keys")
	}
}

func TestFetchCursorPage_Success(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"data": {
				"restaurants": [
					{"id": 1, "name": "Bagel Palace"},
					{"id": "2", "name": "Kosher Deli"}
				],
				"has_more": true
			},
			"pagination": {"next_cursor": "abc123", "returned_count": 2},
			"metadata": {"data_version": "v42"}
		}`)
	})

	page, err := c.FetchCursorPage(context.Background(), CursorQuery{
		Limit:   24,
		Search:  "bagel",
		Filters: filter.Filters{KosherCategory: "dairy"},
	})
	if err != nil {
		t.Fatalf("FetchCursorPage: %v", err)
	}

	if len(page.Restaurants) != 2 {
		t.Fatalf("Restaurants = %d, want 2", len(page.Restaurants))
	}
	// Numeric and string ids normalize to the same representation.
	if page.Restaurants[0].ID.String() != "1" || page.Restaurants[1].ID.String() != "2" {
		t.Errorf("IDs = %q, %q", page.Restaurants[0].ID, page.Restaurants[1].ID)
	}
	if !page.HasMore {
		t.Error("HasMore should be true")
	}
	if page.NextCursor != "abc123" {
		t.Errorf("NextCursor = %q, want abc123", page.NextCursor)
	}
	if page.DataVersion != "v42" {
		t.Errorf("DataVersion = %q, want v42", page.DataVersion)
	}

	for _, want := range []string{"search=bagel", "kosher_category=dairy", "limit=24"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("Query %q missing %q", gotQuery, want)
		}
	}
}

func TestFetchCursorPage_GoneStatusSignalsExpiry(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	_, err := c.FetchCursorPage(context.Background(), CursorQuery{Cursor: "stale", Limit: 24})
	if !IsCursorExpired(err) {
		t.Errorf("Expected cursor expiry, got %v", err)
	}
}

func TestFetchCursorPage_InvalidCursorMessageSignalsExpiry(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": "Invalid cursor: token not recognized"}`)
	})

	_, err := c.FetchCursorPage(context.Background(), CursorQuery{Cursor: "bad", Limit: 24})
	if !IsCursorExpired(err) {
		t.Errorf("Expected cursor expiry, got %v", err)
	}
}

func TestFetchCursorPage_ProtocolError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": "search backend unavailable"}`)
	})

	_, err := c.FetchCursorPage(context.Background(), CursorQuery{Limit: 24})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Class != ErrorClassProtocol {
		t.Errorf("Class = %q, want %q", apiErr.Class, ErrorClassProtocol)
	}
}

func TestFetchCursorPage_MalformedBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": tru`)
	})

	_, err := c.FetchCursorPage(context.Background(), CursorQuery{Limit: 24})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Class != ErrorClassProtocol {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestFetchCursorPage_CanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "data": {"restaurants": []}}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchCursorPage(ctx, CursorQuery{Limit: 24})
	if !IsCanceled(err) {
		t.Errorf("Expected cancellation, got %v", err)
	}
}

func TestFetchOffsetPage_Success(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{
			"success": true,
			"data": {"restaurants": [{"id": 7, "name": "Falafel Spot"}], "total": 209},
			"pagination": {"limit": 24, "offset": 192, "page": 9, "totalPages": 9, "hasMore": false}
		}`)
	})

	page, err := c.FetchOffsetPage(context.Background(), OffsetQuery{
		Limit:  24,
		Offset: 192,
		Filters: filter.Filters{
			Dietary: []string{"gluten_free", "vegan"},
		},
	})
	if err != nil {
		t.Fatalf("FetchOffsetPage: %v", err)
	}

	if page.Total != 209 {
		t.Errorf("Total = %d, want 209", page.Total)
	}
	if page.HasMore == nil || *page.HasMore {
		t.Error("HasMore should be explicit false")
	}
	// Dietary repeats rather than joining.
	for _, want := range []string{"dietary=gluten_free", "dietary=vegan", "offset=192"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("Query %q missing %q", gotQuery, want)
		}
	}
}

func TestFetchOffsetPage_ServerErrorRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"success": true, "data": {"restaurants": [], "total": 0}, "pagination": {}}`)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialBackoff = 1 // effectively immediate

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.FetchOffsetPage(context.Background(), OffsetQuery{Limit: 24}); err != nil {
		t.Fatalf("FetchOffsetPage: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Attempts = %d, want 2", attempts)
	}
}

func TestFetchOffsetPage_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialBackoff = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.FetchOffsetPage(context.Background(), OffsetQuery{Limit: 24}); err == nil {
		t.Fatal("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Attempts = %d, want 1", attempts)
	}
}

