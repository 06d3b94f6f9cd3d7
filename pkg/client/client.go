// Package client provides the catalog HTTP client with canonical request
// construction, retry logic and error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoint paths on the catalog backend.
const (
	cursorPath = "/api/v2/restaurants"
	offsetPath = "/api/restaurants"
)

// maxBodyBytes bounds response body reads.
const maxBodyBytes = 8 << 20

// Prometheus metrics for catalog client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the catalog backend root, e.g. "https://api.jewgo.app".
	BaseURL string

	// UserAgent identifies the client to the backend.
	UserAgent string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Retry controls backoff for retriable failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "jewgo-catalog/1.0",
		Timeout:   15 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client talks to the catalog backend.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "catalog-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// CursorRequestKey returns the canonical request identity for a cursor
// query. Identical queries produce identical keys; the deduplicator uses
// this to detect near-simultaneous duplicate dispatches.
func (c *Client) CursorRequestKey(q CursorQuery) string {
	return cursorPath + "?" + cursorParams(q).Encode()
}

// OffsetRequestKey returns the canonical request identity for an offset
// query.
func (c *Client) OffsetRequestKey(q OffsetQuery) string {
	return offsetPath + "?" + offsetParams(q).Encode()
}

// FetchCursorPage issues a keyset-paginated request. Cursor expiry is
// returned as an error wrapping ErrCursorExpired and is never retried.
func (c *Client) FetchCursorPage(ctx context.Context, q CursorQuery) (*CursorPage, error) {
	requestURL := c.config.BaseURL + c.CursorRequestKey(q)

	var page *CursorPage
	err := retryWithBackoff(ctx, c.logger, c.config.Retry, func() error {
		p, reqErr := c.doCursorRequest(ctx, requestURL)
		if reqErr != nil {
			return reqErr
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// FetchOffsetPage issues an offset-paginated request.
func (c *Client) FetchOffsetPage(ctx context.Context, q OffsetQuery) (*OffsetPage, error) {
	requestURL := c.config.BaseURL + c.OffsetRequestKey(q)

	var page *OffsetPage
	err := retryWithBackoff(ctx, c.logger, c.config.Retry, func() error {
		p, reqErr := c.doOffsetRequest(ctx, requestURL)
		if reqErr != nil {
			return reqErr
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

func (c *Client) doCursorRequest(ctx context.Context, requestURL string) (*CursorPage, error) {
	body, err := c.execute(ctx, cursorPath, requestURL)
	if err != nil {
		return nil, err
	}

	var envelope cursorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassProtocol)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassProtocol,
			Message:    "malformed response body",
			Err:        err,
		}
	}

	if !envelope.Success {
		return nil, c.envelopeError(envelope.Error)
	}

	page := &CursorPage{
		Restaurants:        envelope.Data.Restaurants,
		Total:              envelope.Data.Total,
		HasMore:            envelope.Data.HasMore,
		NextCursor:         envelope.Pagination.NextCursor,
		ReturnedCount:      envelope.Pagination.ReturnedCount,
		DataVersion:        envelope.Metadata.DataVersion,
		CursorVersionMatch: envelope.Metadata.CursorVersionMatch,
		QueryTimestamp:     envelope.Metadata.QueryTimestamp,
	}
	if page.ReturnedCount == 0 {
		page.ReturnedCount = len(page.Restaurants)
	}

	c.logger.Debug().
		Int("returned", page.ReturnedCount).
		Bool("has_more", page.HasMore).
		Str("data_version", page.DataVersion).
		Msg("Cursor page fetched")

	return page, nil
}

func (c *Client) doOffsetRequest(ctx context.Context, requestURL string) (*OffsetPage, error) {
	body, err := c.execute(ctx, offsetPath, requestURL)
	if err != nil {
		return nil, err
	}

	var envelope offsetEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassProtocol)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassProtocol,
			Message:    "malformed response body",
			Err:        err,
		}
	}

	if !envelope.Success {
		return nil, c.envelopeError(envelope.Error)
	}

	page := &OffsetPage{
		Restaurants: envelope.Data.Restaurants,
		Total:       envelope.Data.Total,
		Page:        envelope.Pagination.Page,
		TotalPages:  envelope.Pagination.TotalPages,
		HasMore:     envelope.Pagination.HasMore,
		Cached:      envelope.Cached,
	}

	c.logger.Debug().
		Int("returned", len(page.Restaurants)).
		Int("total", page.Total).
		Int("page", page.Page).
		Msg("Offset page fetched")

	return page, nil
}

// execute performs a single GET and returns the raw body for decoding.
// HTTP-level failures are classified here.
func (c *Client) execute(ctx context.Context, endpoint, requestURL string) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestCanceled, ctx.Err())
		}

		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	if resp.StatusCode == http.StatusGone {
		errorsTotal.WithLabelValues(string(ErrorClassCursorExpired)).Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("Cursor rejected as gone")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassCursorExpired,
			Message:    "cursor gone",
			Err:        ErrCursorExpired,
		}
	}

	if resp.StatusCode >= 400 {
		errorsTotal.WithLabelValues(string(ErrorClassProtocol)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Catalog request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassProtocol,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// envelopeError converts a success:false envelope into a classified error.
func (c *Client) envelopeError(msg string) error {
	if cursorExpiryMessage(msg) {
		errorsTotal.WithLabelValues(string(ErrorClassCursorExpired)).Inc()
		return &APIError{
			StatusCode: http.StatusOK,
			Class:      ErrorClassCursorExpired,
			Message:    msg,
			Err:        ErrCursorExpired,
		}
	}

	errorsTotal.WithLabelValues(string(ErrorClassProtocol)).Inc()
	return &APIError{
		StatusCode: http.StatusOK,
		Class:      ErrorClassProtocol,
		Message:    msg,
	}
}

// cursorParams builds the cursor endpoint query parameters. url.Values
// encoding sorts keys, which keeps the canonical form deterministic.
func cursorParams(q CursorQuery) url.Values {
	params := url.Values{}

	setIfPresent(params, "cursor", q.Cursor)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	setIfPresent(params, "sort", q.SortKey)
	setIfPresent(params, "direction", q.Direction)
	setIfPresent(params, "search", q.Search)

	f := q.Filters
	setIfPresent(params, "certifying_agency", f.Agency)
	setIfPresent(params, "kosher_category", f.KosherCategory)
	setFloat(params, "price_min", f.PriceMin)
	setFloat(params, "price_max", f.PriceMax)
	setFloat(params, "min_rating", f.MinRating)
	setFloat(params, "latitude", f.Latitude)
	setFloat(params, "longitude", f.Longitude)
	setFloat(params, "radius", f.RadiusMiles)
	if len(f.BusinessTypes) > 0 {
		params.Set("business_types", strings.Join(f.BusinessTypes, ","))
	}

	return params
}

// offsetParams builds the offset endpoint query parameters. The offset
// endpoint uses legacy parameter names (lat/lng/max_distance_mi) and
// repeats the dietary parameter rather than joining it.
func offsetParams(q OffsetQuery) url.Values {
	params := url.Values{}

	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	params.Set("offset", strconv.Itoa(q.Offset))
	setIfPresent(params, "search", q.Search)

	f := q.Filters
	setIfPresent(params, "certifying_agency", f.Agency)
	setIfPresent(params, "kosher_category", f.KosherCategory)
	setFloat(params, "price_min", f.PriceMin)
	setFloat(params, "price_max", f.PriceMax)
	setFloat(params, "min_rating", f.MinRating)
	setFloat(params, "lat", f.Latitude)
	setFloat(params, "lng", f.Longitude)
	setFloat(params, "max_distance_mi", f.RadiusMiles)
	for _, d := range f.Dietary {
		params.Add("dietary", d)
	}

	return params
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func setFloat(params url.Values, key string, value *float64) {
	if value != nil {
		params.Set(key, strconv.FormatFloat(*value, 'f', -1, 64))
	}
}
