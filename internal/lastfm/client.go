package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scrobbled/scrobbled/internal/report"
	"github.com/scrobbled/scrobbled/internal/util"
)

const (
	// LastFMBaseURL is the Last.fm API base URL
	LastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// LibreFMBaseURL is the Libre.fm API base URL (same protocol)
	LibreFMBaseURL = "https://libre.fm/2.0/"

	// UserAgent identifies this application to the API
	UserAgent = "scrobbled/1.0 (https://github.com/scrobbled/scrobbled)"

	// RateLimit is the minimum interval between requests
	RateLimit = 250 * time.Millisecond
)

// API error codes that indicate a transient server-side condition
// (https://www.last.fm/api/errorcodes)
const (
	codeOperationFailed        = 8
	codeServiceOffline         = 11
	codeTemporarilyUnavailable = 16
	codeRateLimitExceeded      = 29
)

// APIError is an error response from the Last.fm API
type APIError struct {
	StatusCode int    // HTTP status, 0 when the body carried the error
	Code       int    // Last.fm error code, 0 when only HTTP-level
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("lastfm api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("lastfm http error %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the error is expected to resolve on retry:
// HTTP 5xx responses and the API's own overload/outage codes. Everything
// else (bad parameters, authentication failures, 4xx) is fatal.
func (e *APIError) Transient() bool {
	if e.StatusCode >= 500 {
		return true
	}
	switch e.Code {
	case codeOperationFailed, codeServiceOffline, codeTemporarilyUnavailable, codeRateLimitExceeded:
		return true
	}
	return false
}

// IsTransient classifies an error for the retry loop: API errors by their
// status/code, everything else (network failures) by the generic classifier
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return util.IsRetryableError(err)
}

// Client handles Last.fm/Libre.fm API requests with rate limiting and
// bounded retry on transient failures
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	user        string
	userAgent   string
	retry       *util.RetryConfig
	rateLimiter *time.Ticker
	logger      *report.EventLogger
}

// ClientConfig holds client construction options
type ClientConfig struct {
	BaseURL string // Defaults to LastFMBaseURL
	APIKey  string
	User    string
	Retry   *util.RetryConfig // Defaults to util.DefaultRetryConfig()
	Logger  *report.EventLogger
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", util.ErrInvalidConfig)
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("%w: user is required", util.ErrInvalidConfig)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = LastFMBaseURL
	}

	retry := cfg.Retry
	if retry == nil {
		retry = util.DefaultRetryConfig()
	}
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		user:        cfg.User,
		userAgent:   UserAgent,
		retry:       retry,
		rateLimiter: time.NewTicker(RateLimit),
		logger:      cfg.Logger,
	}, nil
}

// Close releases resources used by the client
func (c *Client) Close() {
	if c.rateLimiter != nil {
		c.rateLimiter.Stop()
	}
}

// request performs one API method call, retrying transient failures with
// exponential backoff. The decoded JSON body is returned on success; on
// exhaustion the last transient error is returned wrapped with the attempt
// count.
func (c *Client) request(ctx context.Context, method string, params url.Values, out interface{}) error {
	query := url.Values{}
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("method", method)
	query.Set("api_key", c.apiKey)
	query.Set("format", "json")

	urlStr := c.baseURL + "?" + query.Encode()

	start := time.Now()
	attempts := 0

	body, err := util.RetryWithBackoff(c.retry, func() ([]byte, error) {
		attempts++
		b, attemptErr := c.doRequest(ctx, urlStr)
		if attemptErr != nil {
			c.logger.LogRetry(method, attempts, time.Since(start), attemptErr)
		}
		return b, attemptErr
	}, method)

	c.logger.LogFetch(method, 0, attempts, time.Since(start), err)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	return nil
}

// doRequest executes a single HTTP attempt
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	// Wait for rate limit
	select {
	case <-c.rateLimiter.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		// Error details ride in the body when the API produced them
		var errBody struct {
			Error   int    `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errBody) == nil && errBody.Error != 0 {
			apiErr.Code = errBody.Error
			apiErr.Message = errBody.Message
		}
		return nil, apiErr
	}

	// A 200 can still carry an API-level error
	var errBody struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errBody) == nil && errBody.Error != 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: errBody.Error, Message: errBody.Message}
	}

	return body, nil
}
