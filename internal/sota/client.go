// Package sota talks to the SOTA (Summits On The Air) public API: the spot feed and the
// summit lookup. See https://api2.sota.org.uk/docs/index.html.
package sota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public SOTA API root.
const DefaultBaseURL = "https://api2.sota.org.uk/api"

const defaultTimeout = 20 * time.Second

var (
	// ErrFeedUnavailable wraps a transport failure, an error status, or a payload that is
	// not a list of spots. A single malformed record is skipped instead.
	ErrFeedUnavailable = errors.New("sota: spot feed unavailable")
	// ErrLocationUnavailable wraps any failure to resolve a summit, including unknown keys.
	ErrLocationUnavailable = errors.New("sota: summit location unavailable")
)

// Scope selects which spots the feed returns: the latest N, or everything within H hours.
type Scope struct {
	count int
	hours float64
}

// Latest asks for the n most recent spots.
func Latest(n int) Scope {
	if n < 1 {
		n = 1
	}
	return Scope{count: n}
}

// Within asks for all spots posted in the last hours.
func Within(hours float64) Scope {
	if hours <= 0 {
		hours = 1
	}
	return Scope{hours: hours}
}

// LookbackHours covers at least one poll interval, and never less than an hour.
func LookbackHours(interval time.Duration) float64 {
	h := interval.Hours()
	if h < 1 {
		return 1
	}
	return h
}

// segment renders the scope as the API expects it: a positive count or negative hours.
func (s Scope) segment() string {
	if s.count > 0 {
		return strconv.Itoa(s.count)
	}
	return strconv.FormatFloat(-s.hours, 'f', -1, 64)
}

func (s Scope) String() string {
	if s.count > 0 {
		return fmt.Sprintf("latest %d", s.count)
	}
	return fmt.Sprintf("last %sh", strconv.FormatFloat(s.hours, 'f', -1, 64))
}

// Client fetches spots and summits over HTTP.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// NewClient builds a client. A nil httpClient gets a private client with a 20s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: base, http: httpClient, userAgent: "sota-notifier/1.0 (Go)"}
}

// FetchSpots returns spots newest-first. Records that fail to decode are logged and dropped.
func (c *Client) FetchSpots(ctx context.Context, scope Scope) ([]Spot, error) {
	u := fmt.Sprintf("%s/spots/%s/all", c.baseURL, scope.segment())
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: http %d GET %s: %s", ErrFeedUnavailable, status, u, snippet(body))
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: decode spots: %v", ErrFeedUnavailable, err)
	}
	spots := make([]Spot, 0, len(records))
	for i, raw := range records {
		var w wireSpot
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Printf("sota: skipping spot record=%d: %v", i, err)
			continue
		}
		s, err := w.toSpot()
		if err != nil {
			log.Printf("sota: skipping spot id=%d: %v", w.ID, err)
			continue
		}
		spots = append(spots, s)
	}
	return spots, nil
}

// FetchSummit looks a summit up by key.
func (c *Client) FetchSummit(ctx context.Context, key SummitKey) (Summit, error) {
	if !key.Valid() {
		return Summit{}, fmt.Errorf("%w: invalid key %q", ErrLocationUnavailable, key.String())
	}
	u := fmt.Sprintf("%s/summits/%s/%s", c.baseURL, url.PathEscape(key.Association), url.PathEscape(key.Code))
	body, status, err := c.get(ctx, u)
	if err != nil {
		return Summit{}, fmt.Errorf("%w: %s: %v", ErrLocationUnavailable, key, err)
	}
	if status == http.StatusNotFound || status == http.StatusNoContent {
		return Summit{}, fmt.Errorf("%w: %s: unknown summit", ErrLocationUnavailable, key)
	}
	if status >= 400 {
		return Summit{}, fmt.Errorf("%w: %s: http %d: %s", ErrLocationUnavailable, key, status, snippet(body))
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return Summit{}, fmt.Errorf("%w: %s: unknown summit", ErrLocationUnavailable, key)
	}
	var wire wireSummit
	if err := json.Unmarshal(body, &wire); err != nil {
		return Summit{}, fmt.Errorf("%w: %s: decode: %v", ErrLocationUnavailable, key, err)
	}
	summit, err := wire.toSummit(key)
	if err != nil {
		return Summit{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return summit, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
