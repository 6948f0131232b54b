// Package spotify provides a minimal client for the Spotify Web API
// recently-played endpoint. It deliberately returns the decoded response
// body without validating its shape: the transformer owns validation, and an
// expired token must surface there, not here.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	userAgent      = "spotify-history/1.0"

	// recentlyPlayedLimit is the maximum page size the endpoint accepts.
	recentlyPlayedLimit = 50
)

// ErrUpstream is returned for transport failures and undecodable responses.
var ErrUpstream = errors.New("spotify API request failed")

// Client fetches recently-played events with a bearer access token.
type Client struct {
	accessToken string
	httpClient  *http.Client
	baseURL     string
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (for tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithClock overrides the clock used to compute "today" (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client using the given access token.
func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecentlyPlayedToday fetches the user's plays since local midnight, capped
// at 50 items, and returns the decoded body verbatim. Auth failures come back
// as an error-shaped JSON body and are passed through so the transformer can
// reject them; only transport failures and undecodable bodies error here.
func (c *Client) RecentlyPlayedToday(ctx context.Context) (*RawPayload, error) {
	after := MidnightEpochMs(c.now())

	params := url.Values{
		"limit": {strconv.Itoa(recentlyPlayedLimit)},
		"after": {strconv.FormatInt(after, 10)},
	}
	reqURL := c.baseURL + "/me/player/recently-played?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrUpstream, err)
	}

	var payload RawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response (status %d): %v", ErrUpstream, resp.StatusCode, err)
	}

	return &payload, nil
}

// MidnightEpochMs returns the most recent local midnight before t as a Unix
// millisecond timestamp, the lower bound for "today's" plays.
func MidnightEpochMs(t time.Time) int64 {
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return midnight.UnixMilli()
}
