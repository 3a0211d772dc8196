package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source fetches a fresh rate snapshot from an external provider.
type Source interface {
	FetchRates(ctx context.Context, base string, symbols []string) (Snapshot, error)
}

// SourceOptions parameterise the HTTP rate source.
type SourceOptions struct {
	BaseURL string
	Timeout time.Duration
	TTL     time.Duration
}

// HTTPSource talks to an exchangerate.host-compatible /latest endpoint.
type HTTPSource struct {
	opts    SourceOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewHTTPSource constructs an HTTP rate source.
func NewHTTPSource(opts SourceOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.exchangerate.host"
	}

	return &HTTPSource{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "fx_source").Logger(),
	}
}

type ratesResponse struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

// FetchRates retrieves base-relative rates for the requested symbols.
func (s *HTTPSource) FetchRates(ctx context.Context, base string, symbols []string) (Snapshot, error) {
	query := url.Values{}
	query.Set("base", strings.ToUpper(base))
	if len(symbols) > 0 {
		query.Set("symbols", strings.ToUpper(strings.Join(symbols, ",")))
	}

	endpoint := s.baseURL + "/latest?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read rates response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("rates api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed ratesResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Snapshot{}, fmt.Errorf("decode rates response: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(parsed.Rates))
	for code, value := range parsed.Rates {
		rate, convErr := decimal.NewFromString(value.String())
		if convErr != nil {
			s.logger.Warn().Str("currency", code).Str("value", value.String()).Msg("unparsable rate; dropping")
			continue
		}
		rates[strings.ToUpper(code)] = rate
	}
	if len(rates) == 0 {
		return Snapshot{}, fmt.Errorf("rates api returned no usable rates")
	}

	snap := Snapshot{
		Base:      strings.ToUpper(base),
		Rates:     rates,
		FetchedAt: time.Now().UTC(),
		TTL:       s.opts.TTL,
	}
	return snap.withIdentity(), nil
}

var _ Source = (*HTTPSource)(nil)
