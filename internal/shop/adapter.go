package shop

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Adapter is the per-shop capability set: discover candidate product URLs,
// then resolve one URL into an Offer. Implementations are stateless across
// calls; all per-shop knowledge lives in Settings.
type Adapter interface {
	Slug() string
	DiscoverURLs(ctx context.Context) ([]string, error)
	FetchOffer(ctx context.Context, productURL string) (*Offer, error)
}

// Settings carries one shop's configuration into an adapter.
type Settings struct {
	Slug         string
	Name         string
	ListingURLs  []string
	Currency     string
	SiteBase     string
	AbsoluteURLs bool
	Selectors    map[string]string
	SampleLimit  int
}

func (s Settings) selector(key string) string {
	if s.Selectors == nil {
		return ""
	}
	return s.Selectors[key]
}

func (s Settings) fallbackCurrency() string {
	if s.Currency != "" {
		return strings.ToUpper(s.Currency)
	}
	return "EUR"
}

// New builds the adapter variant named by kind. Adding a shop type means
// adding a case here; the orchestrator never changes.
func New(kind string, settings Settings, client *Client, logger zerolog.Logger) (Adapter, error) {
	switch kind {
	case "asos":
		return NewAsos(settings, client, logger), nil
	case "static":
		return NewStatic(settings, client, logger), nil
	case "rendered":
		return NewRendered(settings, client.opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown shop adapter %q", kind)
	}
}

// resolveHref turns a listing href into an absolute product URL with query
// and fragment stripped.
func resolveHref(settings Settings, pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(href, "//"):
		href = "https:" + href
	case settings.AbsoluteURLs || strings.Contains(href, "://"):
	case settings.SiteBase != "":
		href = joinURL(settings.SiteBase, href)
	default:
		href = joinURL(pageURL, href)
	}

	return CanonicalURL(href)
}

func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// dedupLimit preserves first-seen order, drops duplicates, and caps the
// result at limit (0 means unlimited).
func dedupLimit(urls []string, limit int) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
