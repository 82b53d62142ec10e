// Package alias resolves informal song names through the unipjsk lookup API.
package alias

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franz/pjsk-record/internal/util"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the alias lookup base URL; the alias is appended as a path segment
	DefaultEndpoint = "https://api.unipjsk.com/getsongid/"

	// UserAgent identifies this application to the lookup service
	UserAgent = "pjsk-record/1.0 (https://github.com/franz/pjsk-record)"

	// DefaultTimeout bounds a single lookup
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is the minimum spacing between outbound lookups
	DefaultInterval = 200 * time.Millisecond

	statusSuccess = "success"
)

// Client resolves aliases against the remote lookup service
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	limiter    *rate.Limiter
}

// Config holds client configuration. Zero values fall back to the defaults above.
type Config struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	Interval  time.Duration
}

// NewClient creates a new alias lookup client
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:  strings.TrimRight(cfg.Endpoint, "/") + "/",
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// Match is a resolved alias
type Match struct {
	Title   string  `json:"title"`
	MusicID int     `json:"musicId"`
	Score   float64 `json:"match"`
}

// lookupResponse is the service's payload; title/musicId/match are only
// meaningful when status is "success"
type lookupResponse struct {
	Status string `json:"status"`
	Match
}

// Resolve translates a free-text alias into the canonical song. It returns an
// error wrapping util.ErrNotFound when the service knows no such alias,
// util.ErrUpstreamUnavailable when the service cannot be reached, and
// util.ErrMalformedResponse when the reply cannot be decoded. Ties are
// whatever the service picks.
func (c *Client) Resolve(ctx context.Context, alias string) (*Match, error) {
	alias = norm.NFC.String(strings.TrimSpace(alias))
	if alias == "" {
		return nil, fmt.Errorf("alias cannot be empty: %w", util.ErrInvalidInput)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	urlStr := c.endpoint + url.PathEscape(alias)
	util.DebugLog("Alias API: resolving '%s'", alias)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.WarnLog("Alias API unreachable: %v", err)
		return nil, fmt.Errorf("failed to execute request: %w: %v", util.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		util.WarnLog("Alias API status code: %d", resp.StatusCode)
		return nil, fmt.Errorf("unexpected status code %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), util.ErrUpstreamUnavailable)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		util.ErrorLog("Error when decoding alias response as json: %v", err)
		return nil, fmt.Errorf("failed to decode response: %w: %v", util.ErrMalformedResponse, err)
	}

	if result.Status != statusSuccess {
		util.DebugLog("Alias API: no match for '%s' (status %q)", alias, result.Status)
		return nil, fmt.Errorf("alias %q: %w", alias, util.ErrNotFound)
	}

	util.DebugLog("Alias API: '%s' -> '%s' (musicId: %d, match: %g)", alias, result.Title, result.MusicID, result.Score)

	match := result.Match
	return &match, nil
}
