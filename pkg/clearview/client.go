// Package clearview provides a client for the SerpApi Google search API,
// used to pull company firmographics out of the knowledge graph panel.
package clearview

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Client defines the company search operations.
type Client interface {
	// SearchCompany looks up a company by name and returns its knowledge
	// graph panel, or nil when the search produced none.
	SearchCompany(ctx context.Context, name string) (*KnowledgeGraph, error)
}

// KnowledgeGraph is the firmographic panel from a search result.
type KnowledgeGraph struct {
	Title        string `json:"title"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Founded      string `json:"founded"`
	Headquarters string `json:"headquarters"`
	Website      string `json:"website"`
}

type searchResponse struct {
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph"`
}

// Option configures the clearview client.
type Option func(*restyClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *restyClient) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *restyClient) {
		c.http.SetTimeout(d)
	}
}

type restyClient struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

// NewClient creates a company search client.
func NewClient(apiKey string, opts ...Option) Client {
	http := resty.New()
	http.SetTimeout(10 * time.Second)

	c := &restyClient{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com/search",
		http:    http,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restyClient) SearchCompany(ctx context.Context, name string) (*KnowledgeGraph, error) {
	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": c.apiKey,
			"q":       name + " company",
			"num":     "1",
			"engine":  "google",
		}).
		SetResult(&result).
		Get(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "clearview: search request")
	}
	if resp.IsError() {
		return nil, eris.Errorf("clearview: search status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.KnowledgeGraph, nil
}
