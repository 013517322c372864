package pokeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/dexview/internal/catalog"
)

// DefaultBaseURL is the public PokeAPI v2 root.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// DefaultPageSize matches the fixed first page the catalog is built from.
const DefaultPageSize = 150

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseSize       = 4 << 20 // 4MB
)

// Client reads the list and detail endpoints of a PokeAPI-compatible
// service. It holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL        string
	pageSize       int
	requestTimeout time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageSize sets the limit passed to the list endpoint.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRequestTimeout bounds each individual request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Client targeting the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		pageSize:       DefaultPageSize,
		requestTimeout: defaultRequestTimeout,
		httpClient:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listResponse mirrors the JSON returned by GET /pokemon?limit=N.
type listResponse struct {
	Results *[]listEntry `json:"results"`
}

type listEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FetchSummaryPage returns the first page of summary references in
// response order.
func (c *Client) FetchSummaryPage(ctx context.Context) ([]catalog.Summary, error) {
	u := fmt.Sprintf("%s/pokemon?limit=%d", c.baseURL, c.pageSize)

	var list listResponse
	if err := c.getJSON(ctx, u, &list); err != nil {
		return nil, err
	}
	if list.Results == nil {
		return nil, &catalog.MalformedResponseError{URL: u, Field: "results"}
	}

	out := make([]catalog.Summary, len(*list.Results))
	for i, e := range *list.Results {
		if strings.TrimSpace(e.URL) == "" {
			return nil, &catalog.MalformedResponseError{URL: u, Field: fmt.Sprintf("results[%d].url", i)}
		}
		out[i] = catalog.Summary{Name: e.Name, Locator: e.URL}
	}
	return out, nil
}

// detailResponse mirrors the subset of GET /pokemon/{id} the catalog uses.
type detailResponse struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Height  int    `json:"height"`
	Weight  int    `json:"weight"`
	Sprites struct {
		FrontDefault *string `json:"front_default"`
	} `json:"sprites"`
	Types []struct {
		Slot int `json:"slot"`
		Type struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"types"`
	Abilities []struct {
		Slot    int `json:"slot"`
		Ability struct {
			Name string `json:"name"`
		} `json:"ability"`
	} `json:"abilities"`
}

// FetchDetail resolves one summary locator into a full Item. An item with
// no categories is returned as-is; the caller owns that policy.
func (c *Client) FetchDetail(ctx context.Context, locator string) (catalog.Item, error) {
	u, err := c.resolve(locator)
	if err != nil {
		return catalog.Item{}, &catalog.MalformedResponseError{URL: locator, Field: "url", Err: err}
	}

	var d detailResponse
	if err := c.getJSON(ctx, u, &d); err != nil {
		return catalog.Item{}, err
	}

	switch {
	case d.ID <= 0:
		return catalog.Item{}, &catalog.MalformedResponseError{URL: u, Field: "id"}
	case strings.TrimSpace(d.Name) == "":
		return catalog.Item{}, &catalog.MalformedResponseError{URL: u, Field: "name"}
	case d.Height < 0:
		return catalog.Item{}, &catalog.MalformedResponseError{URL: u, Field: "height"}
	case d.Weight < 0:
		return catalog.Item{}, &catalog.MalformedResponseError{URL: u, Field: "weight"}
	}

	sort.SliceStable(d.Types, func(i, j int) bool { return d.Types[i].Slot < d.Types[j].Slot })
	sort.SliceStable(d.Abilities, func(i, j int) bool { return d.Abilities[i].Slot < d.Abilities[j].Slot })

	item := catalog.Item{
		ID:         d.ID,
		Name:       d.Name,
		Height:     d.Height,
		Weight:     d.Weight,
		Categories: make([]string, 0, len(d.Types)),
		Abilities:  make([]string, 0, len(d.Abilities)),
	}
	if d.Sprites.FrontDefault != nil {
		item.ImageRef = *d.Sprites.FrontDefault
	}

	seen := make(map[string]bool, len(d.Types))
	for _, t := range d.Types {
		name := t.Type.Name
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		item.Categories = append(item.Categories, name)
	}
	for _, a := range d.Abilities {
		if a.Ability.Name != "" {
			item.Abilities = append(item.Abilities, a.Ability.Name)
		}
	}
	return item, nil
}

// resolve turns a locator into an absolute URL. Relative locators are taken
// relative to the base URL.
func (c *Client) resolve(locator string) (string, error) {
	loc, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", err
	}
	if loc.IsAbs() {
		return loc.String(), nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	if strings.HasPrefix(loc.Path, "/") {
		return base.ResolveReference(loc).String(), nil
	}
	return c.baseURL + "/" + loc.String(), nil
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &catalog.NetworkError{Op: http.MethodGet, URL: u, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &catalog.NetworkError{Op: http.MethodGet, URL: u, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &catalog.NetworkError{Op: http.MethodGet, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &catalog.NetworkError{Op: http.MethodGet, URL: u, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(v); err != nil {
		if ctx.Err() != nil {
			return &catalog.NetworkError{Op: http.MethodGet, URL: u, Err: ctx.Err()}
		}
		return &catalog.MalformedResponseError{URL: u, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
