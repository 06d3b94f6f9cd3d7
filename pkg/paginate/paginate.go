// Package paginate implements the hybrid pagination core: a keyset
// (cursor) strategy, an offset strategy, and a coordinator that starts in
// the preferred mode and falls back automatically when cursor pagination
// degrades.
//
// Both strategies guarantee that, absent an explicit reset, the set of
// displayed item ids is monotonically non-decreasing and duplicate-free
// across any sequence of next-page fetches, including across a mode
// switch. Superseded in-flight fetches are detected with a generation
// token captured at dispatch time and their results are discarded,
// whether or not the underlying request was actually canceled.
package paginate

import (
	"context"
	"errors"

	"github.com/levipshemish/jewgo-catalog/pkg/client"
)

// ErrSuperseded is returned when a fetch's result arrives after a newer
// fetch has taken over. It is a cancellation signal, not a failure, and
// must not be surfaced to users.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// FetchResult summarizes one fetch operation.
type FetchResult struct {
	// ReceivedCount is the number of unique new items applied.
	ReceivedCount int

	// HasMore reports whether another page is available.
	HasMore bool

	// Deduplicated is true when the request was suppressed as a
	// near-simultaneous duplicate and no network call was made.
	Deduplicated bool
}

// CursorFetcher issues keyset-paginated catalog requests.
// *client.Client satisfies it.
type CursorFetcher interface {
	FetchCursorPage(ctx context.Context, q client.CursorQuery) (*client.CursorPage, error)
	CursorRequestKey(q client.CursorQuery) string
}

// OffsetFetcher issues offset-paginated catalog requests.
// *client.Client satisfies it.
type OffsetFetcher interface {
	FetchOffsetPage(ctx context.Context, q client.OffsetQuery) (*client.OffsetPage, error)
	OffsetRequestKey(q client.OffsetQuery) string
}

// IsInterrupted reports whether err stems from supersession or
// cancellation rather than a genuine failure. Such errors are swallowed,
// not reported.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrSuperseded) || client.IsCanceled(err)
}
