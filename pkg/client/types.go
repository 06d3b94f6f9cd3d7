package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/levipshemish/jewgo-catalog/pkg/filter"
)

// ID is a restaurant identifier. The backend is inconsistent about
// emitting numeric vs. string ids, so both forms decode to the same
// normalized string representation and compare equal.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unmarshal id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the normalized id representation.
func (id ID) String() string {
	return string(id)
}

// Location is a restaurant's physical position and address.
type Location struct {
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Restaurant is a single catalog record. The backend owns these; the
// client holds read-only, possibly stale copies.
type Restaurant struct {
	ID               ID             `json:"id"`
	Name             string         `json:"name"`
	Location         Location       `json:"location"`
	CertifyingAgency string         `json:"certifying_agency,omitempty"`
	KosherCategory   string         `json:"kosher_category,omitempty"`
	PriceRange       string         `json:"price_range,omitempty"`
	Rating           float64        `json:"rating,omitempty"`
	BusinessTypes    []string       `json:"business_types,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	DistanceMiles    *float64       `json:"distance,omitempty"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// CursorQuery describes a keyset-paginated catalog request.
type CursorQuery struct {
	// Cursor is the opaque server-issued position token. Empty means
	// start from the beginning. The client never inspects or constructs
	// cursor contents.
	Cursor    string
	Limit     int
	SortKey   string
	Direction string
	Search    string
	Filters   filter.Filters
}

// OffsetQuery describes an offset-paginated catalog request.
type OffsetQuery struct {
	Limit   int
	Offset  int
	Search  string
	Filters filter.Filters
}

// CursorPage is the decoded result of a cursor endpoint call.
type CursorPage struct {
	Restaurants   []Restaurant
	Total         *int
	HasMore       bool
	NextCursor    string
	ReturnedCount int

	// DataVersion identifies the dataset snapshot the server answered
	// from; a change between requests means the underlying data moved.
	DataVersion        string
	CursorVersionMatch *bool
	QueryTimestamp     string
}

// OffsetPage is the decoded result of an offset endpoint call.
type OffsetPage struct {
	Restaurants []Restaurant
	Total       int
	Page        int
	TotalPages  int

	// HasMore is the explicit server flag when present; nil means the
	// caller must infer it from offset, returned count and total.
	HasMore *bool
	Cached  bool
}

// Wire envelopes. These mirror the backend response shapes exactly and
// stay private to the package.

type cursorEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Restaurants []Restaurant `json:"restaurants"`
		Total       *int         `json:"total,omitempty"`
		HasMore     bool         `json:"has_more"`
	} `json:"data"`
	Pagination struct {
		Cursor        string `json:"cursor"`
		NextCursor    string `json:"next_cursor"`
		Limit         int    `json:"limit"`
		SortKey       string `json:"sort_key"`
		Direction     string `json:"direction"`
		ReturnedCount int    `json:"returned_count"`
	} `json:"pagination"`
	Metadata struct {
		DataVersion        string `json:"data_version"`
		CursorVersionMatch *bool  `json:"cursor_version_match,omitempty"`
		QueryTimestamp     string `json:"query_timestamp"`
	} `json:"metadata"`
	Error string `json:"error,omitempty"`
}

type offsetEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Restaurants   []Restaurant    `json:"restaurants"`
		Total         int             `json:"total"`
		FilterOptions json.RawMessage `json:"filterOptions,omitempty"`
	} `json:"data"`
	Pagination struct {
		Limit      int   `json:"limit"`
		Offset     int   `json:"offset"`
		Page       int   `json:"page"`
		TotalPages int   `json:"totalPages"`
		HasMore    *bool `json:"hasMore,omitempty"`
	} `json:"pagination"`
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}
