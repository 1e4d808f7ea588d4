package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/resilience"
)

// Result is the merged outcome of one waterfall run.
type Result struct {
	Fields        Fields   `json:"fields"`
	ProvidersUsed []string `json:"providers_used"`
	TotalCostUSD  float64  `json:"total_cost_usd"`
}

// step pairs a provider with its waterfall policy.
type step struct {
	provider     Provider
	fallbackOnly bool
	costUSD      float64 // step-level override; 0 defers to the provider
}

func (s step) cost() float64 {
	if s.costUSD > 0 {
		return s.costUSD
	}
	return s.provider.CostPerCall()
}

// Waterfall runs providers in priority order, merging their fields with
// first-writer-wins semantics.
type Waterfall struct {
	steps      []step
	timeout    time.Duration
	maxCostUSD float64

	// breakers holds one circuit breaker per provider so a dead upstream
	// is skipped instead of eating the timeout on every record.
	breakers *resilience.ServiceBreakers
}

// New builds a waterfall from a config and the available providers.
// Providers named in config steps but not supplied are skipped.
func New(cfg *Config, providers ...Provider) *Waterfall {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	w := &Waterfall{
		timeout:    cfg.Timeout(),
		maxCostUSD: cfg.Defaults.MaxCostUSD,
		breakers:   resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, sc := range cfg.Steps {
		if !sc.Enabled {
			continue
		}
		p, ok := byName[sc.Name]
		if !ok {
			zap.L().Warn("enrich: configured provider not registered", zap.String("provider", sc.Name))
			continue
		}
		w.steps = append(w.steps, step{provider: p, fallbackOnly: sc.FallbackOnly, costUSD: sc.CostPerCall})
	}
	return w
}

// Run executes the waterfall for one company. Provider failures are
// logged and skipped; the run always returns a merged result. Cost is the
// sum of per-call costs of providers actually invoked.
func (w *Waterfall) Run(ctx context.Context, id Identifier) Result {
	result := Result{Fields: Fields{}}

	for _, s := range w.steps {
		p := s.provider
		if !p.CanEnrich(id) {
			continue
		}
		if s.fallbackOnly && !missingCritical(result.Fields) {
			continue
		}
		if w.maxCostUSD > 0 && result.TotalCostUSD+s.cost() > w.maxCostUSD {
			zap.L().Info("enrich: cost budget exhausted, skipping provider",
				zap.String("provider", p.Name()),
				zap.Float64("spent_usd", result.TotalCostUSD),
				zap.Float64("budget_usd", w.maxCostUSD),
			)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, w.timeout)
		fields, err := resilience.ExecuteVal(callCtx, w.breakers.Get(p.Name()), func(ctx context.Context) (Fields, error) {
			return p.Enrich(ctx, id)
		})
		cancel()

		if errors.Is(err, resilience.ErrCircuitOpen) {
			// Rejected before the call was made, so no cost accrues.
			zap.L().Warn("enrich: provider circuit open, skipping",
				zap.String("provider", p.Name()))
			continue
		}

		result.TotalCostUSD += s.cost()

		if err != nil {
			zap.L().Warn("enrich: provider failed, continuing waterfall",
				zap.String("provider", p.Name()),
				zap.String("domain", id.Domain),
				zap.Error(err),
			)
			continue
		}

		result.ProvidersUsed = append(result.ProvidersUsed, p.Name())

		// First writer wins: never overwrite a field set by an earlier
		// provider. The fallback tier additionally fills critical
		// fields only.
		for key, val := range fields {
			if _, exists := result.Fields[key]; exists {
				continue
			}
			if s.fallbackOnly && !isCritical(key) {
				continue
			}
			result.Fields[key] = val
		}
	}

	return result
}

func missingCritical(f Fields) bool {
	for _, key := range criticalFields {
		if _, ok := f[key]; !ok {
			return true
		}
	}
	return false
}

func isCritical(key string) bool {
	for _, c := range criticalFields {
		if key == c {
			return true
		}
	}
	return false
}
