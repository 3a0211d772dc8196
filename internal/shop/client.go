package shop

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// ClientOptions parameterise the shared HTTP fetcher.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// Client retrieves shop pages with the transport error taxonomy the
// adapters rely on: ErrGone for delisted pages, FetchError for anything
// transient, plain body text otherwise.
type Client struct {
	opts   ClientOptions
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "shop_client").Logger(),
	}
}

// GetHTML fetches url and returns the response body.
func (c *Client) GetHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", fmt.Errorf("%w: %s", ErrGone, url)
	default:
		// Includes 429 and anti-bot 4xx responses; all treated as
		// transient so the retry policy gets another attempt.
		io.Copy(io.Discard, resp.Body)
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		return "", &ParseError{URL: url, Reason: "empty response body"}
	}
	return text, nil
}
