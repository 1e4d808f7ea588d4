// Package verify classifies email deliverability. Syntax validation is
// always local; provider verification is fail-open, degrading to a
// neutral classification when the provider is disabled or unreachable.
package verify

import (
	"context"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/zerobounce"
)

// Status is the internal deliverability classification.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusRisky   Status = "risky"
	StatusUnknown Status = "unknown"
)

// Result is the outcome of verifying one email address.
type Result struct {
	Email               string  `json:"email"`
	Verified            bool    `json:"verified"`
	Status              Status  `json:"status"`
	DeliverabilityScore float64 `json:"deliverability_score"`
	IsDisposable        bool    `json:"is_disposable"`
	IsRoleBased         bool    `json:"is_role_based"`
	IsCatchAll          bool    `json:"is_catch_all"`
}

var emailSyntaxRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// disposableDomains lists common throwaway email domains.
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"mailinator.com":    true,
	"throwaway.email":   true,
	"temp-mail.org":     true,
	"fakeinbox.com":     true,
	"trashmail.com":     true,
}

// rolePrefixes lists local parts that address a function, not a person.
var rolePrefixes = map[string]bool{
	"info":      true,
	"admin":     true,
	"support":   true,
	"sales":     true,
	"marketing": true,
	"contact":   true,
	"hello":     true,
	"help":      true,
	"noreply":   true,
	"no-reply":  true,
}

// providerStatus maps a ZeroBounce status to our classification and its
// base deliverability score.
var providerStatus = map[string]struct {
	status Status
	score  float64
}{
	"valid":       {StatusValid, 100},
	"invalid":     {StatusInvalid, 0},
	"catch-all":   {StatusRisky, 70},
	"unknown":     {StatusUnknown, 50},
	"spamtrap":    {StatusInvalid, 0},
	"abuse":       {StatusInvalid, 0},
	"do_not_mail": {StatusInvalid, 0},
}

// ValidSyntax reports whether the address is structurally a valid email.
func ValidSyntax(email string) bool {
	return emailSyntaxRe.MatchString(email)
}

// IsDisposable reports whether the address uses a known throwaway domain.
func IsDisposable(email string) bool {
	at := strings.Index(email, "@")
	if at < 0 {
		return false
	}
	return disposableDomains[strings.ToLower(email[at+1:])]
}

// IsRoleBased reports whether the address targets a function mailbox.
func IsRoleBased(email string) bool {
	at := strings.Index(email, "@")
	if at < 0 {
		return false
	}
	return rolePrefixes[strings.ToLower(email[:at])]
}

// Adapter verifies emails through an optional external provider.
// A nil provider means local heuristics only. Provider calls go through a
// circuit breaker so a dead verifier degrades to fail-open quickly instead
// of timing out on every record.
type Adapter struct {
	provider zerobounce.Client
	breaker  *resilience.CircuitBreaker
}

// New builds an Adapter with default breaker settings. Pass a nil provider
// to run syntax-only.
func New(provider zerobounce.Client) *Adapter {
	return NewWithBreaker(provider, resilience.DefaultCircuitBreakerConfig())
}

// NewWithBreaker builds an Adapter with explicit circuit breaker settings.
func NewWithBreaker(provider zerobounce.Client, cb resilience.CircuitBreakerConfig) *Adapter {
	return &Adapter{
		provider: provider,
		breaker:  resilience.NewCircuitBreaker(cb),
	}
}

// Verify classifies one email address. Syntactically invalid input
// short-circuits to invalid without any external call.
func (a *Adapter) Verify(ctx context.Context, email string) Result {
	result := Result{
		Email:        email,
		Status:       StatusUnknown,
		IsDisposable: IsDisposable(email),
		IsRoleBased:  IsRoleBased(email),
	}

	if !ValidSyntax(email) {
		result.Status = StatusInvalid
		return result
	}

	if a.provider == nil {
		result.Verified = true
		result.DeliverabilityScore = 50
		return result
	}

	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*zerobounce.ValidateResponse, error) {
		return a.provider.Validate(ctx, email)
	})
	if err != nil {
		zap.L().Warn("email verification provider failed, treating as unknown",
			zap.String("email", email), zap.Error(err))
		result.Verified = true
		result.DeliverabilityScore = 50
		return result
	}

	mapped, ok := providerStatus[strings.ToLower(resp.Status)]
	if !ok {
		mapped.status = StatusUnknown
		mapped.score = 50
	}

	result.Verified = true
	result.Status = mapped.status
	result.DeliverabilityScore = mapped.score
	result.IsDisposable = resp.Disposable || result.IsDisposable
	result.IsRoleBased = resp.Role || result.IsRoleBased
	result.IsCatchAll = resp.CatchAll

	if result.IsDisposable {
		result.DeliverabilityScore *= 0.5
	}
	if result.IsRoleBased {
		result.DeliverabilityScore *= 0.8
	}
	result.DeliverabilityScore = math.Round(result.DeliverabilityScore*100) / 100

	return result
}
