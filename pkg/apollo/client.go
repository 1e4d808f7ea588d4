// Package apollo provides a client for the Apollo.io enrichment API.
// Apollo calls are quota-limited, so the client carries its own rate
// limiter and callers should treat it as the provider of last resort.
package apollo

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Apollo enrichment operations.
type Client interface {
	// EnrichOrganization looks up a company by domain, returning nil when
	// Apollo has no record of it.
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
}

// Organization is the subset of Apollo's organization record the
// pipeline consumes.
type Organization struct {
	Name              string `json:"name"`
	WebsiteURL        string `json:"website_url"`
	Industry          string `json:"industry"`
	EstimatedEmployees int   `json:"estimated_num_employees"`
	Country           string `json:"country"`
	ShortDescription  string `json:"short_description"`
}

type enrichResponse struct {
	Organization *Organization `json:"organization"`
}

// Option configures the Apollo client.
type Option func(*restyClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *restyClient) {
		c.http.SetBaseURL(url)
	}
}

// WithRateLimit overrides the calls-per-minute quota.
func WithRateLimit(callsPerMin int) Option {
	return func(c *restyClient) {
		if callsPerMin > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMin)), 1)
		}
	}
}

type restyClient struct {
	apiKey  string
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient creates an Apollo API client with a default quota of 50
// calls per minute.
func NewClient(apiKey string, opts ...Option) Client {
	http := resty.New()
	http.SetBaseURL("https://api.apollo.io/v1")
	http.SetTimeout(15 * time.Second)

	c := &restyClient{
		apiKey:  apiKey,
		http:    http,
		limiter: rate.NewLimiter(rate.Every(time.Minute/50), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restyClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "apollo: rate limit wait")
	}

	var result enrichResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", c.apiKey).
		SetQueryParam("domain", domain).
		SetResult(&result).
		Get("/organizations/enrich")
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich request")
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, eris.Errorf("apollo: enrich status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Organization, nil
}
