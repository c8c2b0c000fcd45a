// ABOUTME: HTTP client for the remote branding API
// ABOUTME: Cursor-based record fetch with API path fallback probing and bearer auth
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harperreed/callsign/models"
)

// FetchResult is one page of branding records plus the cursor to resume from.
type FetchResult struct {
	Records    []models.BrandingRecord `json:"records"`
	NextCursor string                  `json:"next_cursor"`
}

// ClientOptions configures a branding API client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger

	// RecordPaths are candidate API paths for the records endpoint, probed
	// in order. Older deployments serve the endpoint under a different
	// prefix; the first path that answers is remembered for the session.
	RecordPaths []string
}

// Client talks to the remote branding API.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	userAgent   string
	log         *slog.Logger
	recordPaths []string
	activePath  string
}

// NewClient creates a branding API client.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := opts.RecordPaths
	if len(paths) == 0 {
		paths = []string{"/v2/branding/records", "/v1/branding/records"}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "callsign-sdk"
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		httpClient:  httpClient,
		userAgent:   userAgent,
		log:         logger,
		recordPaths: paths,
	}
}

// Fetch returns branding records changed since the cursor. An empty cursor
// requests the full set. A fetch failure is returned as-is: the caller must
// not build a snapshot from a partial fetch.
func (c *Client) Fetch(ctx context.Context, sinceCursor string) (*FetchResult, error) {
	if c.activePath != "" {
		return c.fetchPath(ctx, c.activePath, sinceCursor)
	}

	var lastErr error
	for _, path := range c.recordPaths {
		result, err := c.fetchPath(ctx, path, sinceCursor)
		if err == nil {
			c.activePath = path
			return result, nil
		}
		lastErr = err
		if !isPathProbeError(err) {
			return nil, err
		}
		c.log.Debug("branding records path rejected, trying next", "path", path, "err", err)
	}
	return nil, fmt.Errorf("no branding records endpoint answered: %w", lastErr)
}

// ReportEvents posts telemetry events best effort. Payload is an opaque JSON
// array assembled by the telemetry reporter.
func (c *Client) ReportEvents(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/events", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("event report rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchPath(ctx context.Context, path, sinceCursor string) (*FetchResult, error) {
	endpoint := c.baseURL + path
	if sinceCursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(sinceCursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("branding fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &pathProbeError{path: path, status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("branding fetch returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode branding response: %w", err)
	}
	return &result, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type pathProbeError struct {
	path   string
	status int
}

func (e *pathProbeError) Error() string {
	return fmt.Sprintf("path %s returned status %d", e.path, e.status)
}

func isPathProbeError(err error) bool {
	var probe *pathProbeError
	return errors.As(err, &probe)
}
