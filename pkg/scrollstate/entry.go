// Package scrollstate persists pagination position and scroll anchors
// across navigation, scoped to a session, with time- and capacity-based
// eviction.
package scrollstate

import (
	"time"

	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// Defaults for entry lifecycle management.
const (
	// DefaultMaxAge is the staleness cutoff; entries older than this are
	// unreadable and purged on the next access.
	DefaultMaxAge = 2 * time.Hour

	// DefaultMaxEntries caps live entries per session. When exceeded the
	// oldest-by-timestamp entries are evicted first.
	DefaultMaxEntries = 10

	// KeyPrefix namespaces scroll-state entries in the backing store.
	KeyPrefix = "cursor_scroll_state_"
)

// Entry is a saved scroll/pagination position for one (query, filters)
// fingerprint. At most one live entry exists per fingerprint.
type Entry struct {
	// CursorOrOffset is the pagination resume token: an opaque cursor for
	// keyset mode or a numeric page offset rendered as a string.
	CursorOrOffset string `json:"cursor_or_offset"`

	// AnchorID is the id of the item to anchor the viewport to.
	AnchorID string `json:"anchor_id"`

	// ScrollY is the vertical scroll position in pixels.
	ScrollY float64 `json:"scroll_y"`

	// ItemCount is how many items were displayed when saved.
	ItemCount int `json:"item_count"`

	Query   string         `json:"query"`
	Filters filter.Filters `json:"filters"`

	// Timestamp is when the entry was saved; drives staleness and
	// eviction ordering.
	Timestamp time.Time `json:"timestamp"`

	// DataVersion is the dataset snapshot the saved position belongs to.
	DataVersion string `json:"data_version"`
}

// isStale reports whether the entry is past the cutoff at the given time.
func (e *Entry) isStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.Timestamp) > maxAge
}

// storageKey returns the backing-store key for the entry's fingerprint.
func storageKey(query string, f filter.Filters) string {
	return KeyPrefix + filter.Fingerprint(query, f)
}
