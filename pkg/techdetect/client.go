// Package techdetect detects a company's web technology stack by fetching
// its homepage and matching known fingerprints. No API key required.
package techdetect

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the technology detection operations.
type Client interface {
	// Detect fetches the site at domain and returns matched technologies.
	Detect(ctx context.Context, domain string) (*Result, error)
}

// Result holds the detected technologies for a site.
type Result struct {
	Technologies []string `json:"technologies"`
	Categories   []string `json:"categories"`
	CMS          string   `json:"cms,omitempty"`
	Analytics    []string `json:"analytics,omitempty"`
}

// fingerprint matches an HTML substring to a technology.
type fingerprint struct {
	Needle   string
	Tech     string
	Category string
	CMS      bool
	Tracker  bool
}

var fingerprints = []fingerprint{
	{"wp-content", "WordPress", "CMS", true, false},
	{"wordpress", "WordPress", "CMS", true, false},
	{"cdn.shopify.com", "Shopify", "E-commerce", true, false},
	{"shopify", "Shopify", "E-commerce", true, false},
	{"google-analytics.com", "Google Analytics", "Analytics", false, true},
	{"gtag(", "Google Analytics", "Analytics", false, true},
	{"googletagmanager.com", "Google Tag Manager", "Analytics", false, true},
	{"__react", "React", "JavaScript Framework", false, false},
	{"data-reactroot", "React", "JavaScript Framework", false, false},
	{"ng-version", "Angular", "JavaScript Framework", false, false},
	{"__nuxt", "Nuxt.js", "JavaScript Framework", false, false},
	{"__next", "Next.js", "JavaScript Framework", false, false},
	{"hs-script-loader", "HubSpot", "Marketing Automation", false, false},
	{"intercom", "Intercom", "Live Chat", false, false},
	{"stripe.com/v3", "Stripe", "Payments", false, false},
	{"cloudflare", "Cloudflare", "CDN", false, false},
}

// maxBodyBytes bounds how much of the homepage we read for matching.
const maxBodyBytes = 1 << 20

// Option configures the techdetect client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	http *http.Client
}

// NewClient creates a technology detection client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Detect(ctx context.Context, domain string) (*Result, error) {
	target := domain
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "techdetect: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "techdetect: fetch site")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("techdetect: unexpected status %d for %s", resp.StatusCode, domain)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "techdetect: read body")
	}

	return Match(string(body)), nil
}

// Match runs the fingerprint table against raw HTML. Exported so tests and
// cached page content can reuse the matcher without a network fetch.
func Match(html string) *Result {
	html = strings.ToLower(html)

	result := &Result{}
	seenTech := make(map[string]bool)
	seenCat := make(map[string]bool)

	for _, fp := range fingerprints {
		if !strings.Contains(html, fp.Needle) {
			continue
		}
		if !seenTech[fp.Tech] {
			seenTech[fp.Tech] = true
			result.Technologies = append(result.Technologies, fp.Tech)
			if fp.Tracker {
				result.Analytics = append(result.Analytics, fp.Tech)
			}
		}
		if fp.Category != "" && !seenCat[fp.Category] {
			seenCat[fp.Category] = true
			result.Categories = append(result.Categories, fp.Category)
		}
		if fp.CMS && result.CMS == "" {
			result.CMS = fp.Tech
		}
	}

	return result
}
