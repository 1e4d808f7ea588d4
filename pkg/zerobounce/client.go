// Package zerobounce provides a client for the ZeroBounce email
// validation API.
package zerobounce

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

// Client defines the ZeroBounce validation operations.
type Client interface {
	// Validate checks a single email address for deliverability.
	Validate(ctx context.Context, email string) (*ValidateResponse, error)
}

// ValidateResponse is the parsed ZeroBounce /validate response.
type ValidateResponse struct {
	Address      string `json:"address"`
	Status       string `json:"status"` // valid, invalid, catch-all, unknown, spamtrap, abuse, do_not_mail
	SubStatus    string `json:"sub_status"`
	FreeEmail    bool   `json:"free_email"`
	Disposable   bool   `json:"disposable"`
	Role         bool   `json:"role"`
	CatchAll     bool   `json:"catch_all"`
	MXFound      bool   `json:"mx_found"`
	SMTPProvider string `json:"smtp_provider"`
}

// Option configures the ZeroBounce client.
type Option func(*restyClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *restyClient) {
		c.http.SetBaseURL(url)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *restyClient) {
		c.http.SetTimeout(d)
	}
}

type restyClient struct {
	apiKey string
	http   *resty.Client
}

// NewClient creates a ZeroBounce API client.
func NewClient(apiKey string, opts ...Option) Client {
	http := resty.New()
	http.SetBaseURL("https://api.zerobounce.net/v2")
	http.SetTimeout(10 * time.Second)
	http.SetRetryCount(2)
	http.SetRetryWaitTime(500 * time.Millisecond)

	c := &restyClient{apiKey: apiKey, http: http}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *restyClient) Validate(ctx context.Context, email string) (*ValidateResponse, error) {
	var result ValidateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key": c.apiKey,
			"email":   email,
		}).
		SetResult(&result).
		Get("/validate")
	if err != nil {
		return nil, eris.Wrap(err, "zerobounce: validate request")
	}
	if resp.IsError() {
		return nil, eris.Errorf("zerobounce: validate status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}
