// Package kgraph provides a client for the Google Knowledge Graph search
// API, used as a free fallback for company descriptions and headcounts.
package kgraph

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Client defines the knowledge graph operations.
type Client interface {
	// LookupCompany searches the knowledge graph for a corporation,
	// returning nil when nothing matched.
	LookupCompany(ctx context.Context, name, domain string) (*Entity, error)
}

// Entity is one knowledge graph result.
type Entity struct {
	Name        string `json:"name"`
	Description string `json:"description"` // short industry-like blurb
	Article     string `json:"article"`     // detailed description body
	ArticleURL  string `json:"article_url"`
}

type searchResponse struct {
	ItemListElement []struct {
		Result struct {
			Name                string `json:"name"`
			Description         string `json:"description"`
			DetailedDescription struct {
				ArticleBody string `json:"articleBody"`
				URL         string `json:"url"`
			} `json:"detailedDescription"`
		} `json:"result"`
	} `json:"itemListElement"`
}

// Option configures the kgraph client.
type Option func(*restyClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *restyClient) {
		c.baseURL = url
	}
}

type restyClient struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

// NewClient creates a knowledge graph client.
func NewClient(apiKey string, opts ...Option) Client {
	http := resty.New()
	http.SetTimeout(10 * time.Second)

	c := &restyClient{
		apiKey:  apiKey,
		baseURL: "https://kgsearch.googleapis.com/v1/entities:search",
		http:    http,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restyClient) LookupCompany(ctx context.Context, name, domain string) (*Entity, error) {
	query := name
	if domain != "" {
		query = name + " " + domain
	}

	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": query,
			"key":   c.apiKey,
			"limit": "1",
			"types": "Corporation",
		}).
		SetResult(&result).
		Get(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "kgraph: search request")
	}
	if resp.IsError() {
		return nil, eris.Errorf("kgraph: search status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(result.ItemListElement) == 0 {
		return nil, nil
	}
	r := result.ItemListElement[0].Result
	return &Entity{
		Name:        r.Name,
		Description: r.Description,
		Article:     r.DetailedDescription.ArticleBody,
		ArticleURL:  r.DetailedDescription.URL,
	}, nil
}

var employeeRe = regexp.MustCompile(`(?i)([\d,]+)\+?\s+employees`)

// ExtractEmployeeCount pulls an employee count out of a description body.
// Returns 0 when no count is present.
func ExtractEmployeeCount(article string) int {
	m := employeeRe.FindStringSubmatch(article)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

var foundedRe = regexp.MustCompile(`(?i)founded\s+(?:in\s+)?(\d{4})`)

// ExtractFoundedYear pulls a founding year out of a description body.
// Returns 0 when no year is present.
func ExtractFoundedYear(article string) int {
	m := foundedRe.FindStringSubmatch(article)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
