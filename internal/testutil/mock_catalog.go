// Package testutil provides testing utilities for the catalog client.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockRestaurant is a dataset record served by the mock catalog.
type MockRestaurant struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	KosherCategory string `json:"kosher_category,omitempty"`
}

// MockCatalog is a configurable mock catalog backend implementing both the
// cursor and the offset endpoints over an in-memory dataset.
type MockCatalog struct {
	server *httptest.Server

	mu          sync.Mutex
	restaurants []MockRestaurant
	dataVersion string

	// Failure injection.
	failCursorRequests int
	failStatus         int
	expireCursors      bool

	// Tracking.
	CursorRequests int
	OffsetRequests int
	LastRawQuery   string
}

// NewMockCatalog creates a mock catalog with the given dataset size.
// Restaurant ids are 1..n.
func NewMockCatalog(n int) *MockCatalog {
	restaurants := make([]MockRestaurant, n)
	for i := range restaurants {
		restaurants[i] = MockRestaurant{
			ID:   i + 1,
			Name: fmt.Sprintf("Restaurant %d", i+1),
		}
	}

	m := &MockCatalog{
		restaurants: restaurants,
		dataVersion: "v1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/restaurants", m.handleCursor)
	mux.HandleFunc("/api/restaurants", m.handleOffset)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetDataVersion changes the advertised dataset version.
func (m *MockCatalog) SetDataVersion(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataVersion = version
}

// FailCursorRequests makes the next n cursor requests fail with status.
func (m *MockCatalog) FailCursorRequests(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCursorRequests = n
	m.failStatus = status
}

// ExpireCursors makes every non-empty cursor be rejected with 410 Gone.
func (m *MockCatalog) ExpireCursors(expire bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCursors = expire
}

// cursorToken encodes a dataset position. Clients must treat it as
// opaque; only the mock server reads it back.
func cursorToken(index int) string {
	return base64.StdEncoding.EncodeToString([]byte("pos:" + strconv.Itoa(index)))
}

func parseCursorToken(token string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	var index int
	if _, err := fmt.Sscanf(string(raw), "pos:%d", &index); err != nil {
		return 0, err
	}
	return index, nil
}

func (m *MockCatalog) handleCursor(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.CursorRequests++
	m.LastRawQuery = r.URL.RawQuery

	if m.failCursorRequests > 0 {
		m.failCursorRequests--
		status := m.failStatus
		m.mu.Unlock()
		w.WriteHeader(status)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	if m.expireCursors && cursor != "" {
		m.mu.Unlock()
		w.WriteHeader(http.StatusGone)
		return
	}

	limit := queryInt(r, "limit", 24)

	start := 0
	if cursor != "" {
		index, err := parseCursorToken(cursor)
		if err != nil {
			m.mu.Unlock()
			writeJSON(w, map[string]any{
				"success": false,
				"error":   "invalid cursor",
			})
			return
		}
		start = index
	}

	end := start + limit
	if end > len(m.restaurants) {
		end = len(m.restaurants)
	}
	page := m.restaurants[start:end]
	hasMore := end < len(m.restaurants)
	version := m.dataVersion
	total := len(m.restaurants)
	m.mu.Unlock()

	nextCursor := ""
	if hasMore {
		nextCursor = cursorToken(end)
	}

	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"restaurants": page,
			"total":       total,
			"has_more":    hasMore,
		},
		"pagination": map[string]any{
			"cursor":         cursor,
			"next_cursor":    nextCursor,
			"limit":          limit,
			"sort_key":       r.URL.Query().Get("sort"),
			"direction":      r.URL.Query().Get("direction"),
			"returned_count": len(page),
		},
		"metadata": map[string]any{
			"data_version":    version,
			"query_timestamp": "2024-01-01T00:00:00Z",
		},
	})
}

func (m *MockCatalog) handleOffset(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.OffsetRequests++
	m.LastRawQuery = r.URL.RawQuery

	limit := queryInt(r, "limit", 24)
	offset := queryInt(r, "offset", 0)

	start := offset
	if start > len(m.restaurants) {
		start = len(m.restaurants)
	}
	end := start + limit
	if end > len(m.restaurants) {
		end = len(m.restaurants)
	}
	page := m.restaurants[start:end]
	total := len(m.restaurants)
	m.mu.Unlock()

	hasMore := end < total
	totalPages := (total + limit - 1) / limit

	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"restaurants": page,
			"total":       total,
		},
		"pagination": map[string]any{
			"limit":      limit,
			"offset":     offset,
			"page":       offset/limit + 1,
			"totalPages": totalPages,
			"hasMore":    hasMore,
		},
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
