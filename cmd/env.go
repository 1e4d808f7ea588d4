package main

import (
	"context"
	"os"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/cache"
	"github.com/sells-group/leadpipe/internal/dedupe"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/notify"
	"github.com/sells-group/leadpipe/internal/pipeline"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/internal/verify"
	"github.com/sells-group/leadpipe/pkg/apollo"
	"github.com/sells-group/leadpipe/pkg/clearview"
	"github.com/sells-group/leadpipe/pkg/kgraph"
	sfpkg "github.com/sells-group/leadpipe/pkg/salesforce"
	"github.com/sells-group/leadpipe/pkg/techdetect"
	"github.com/sells-group/leadpipe/pkg/zerobounce"
)

// pipelineEnv holds the initialized store, cache, and pipeline shared by
// the process/serve/export commands.
type pipelineEnv struct {
	Store    store.Store
	Cache    cache.Cache
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, cache, provider clients, and the
// pipeline for the given run mode. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	c, err := initCache(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	idx := dedupe.New(c, st, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	waterfall := initWaterfall()
	verifier := initVerifier()
	notifier := notify.New(cfg.Notify)

	p := pipeline.New(cfg, st, idx, waterfall, verifier, notifier)

	return &pipelineEnv{Store: st, Cache: c, Pipeline: p}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadpipe.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(ctx, cfg.Cache.RedisAddr)
	case "memory":
		return cache.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

// initWaterfall assembles the enrichment waterfall from the provider
// config. A YAML config file overrides the built-in step order.
func initWaterfall() *enrich.Waterfall {
	var wfCfg *enrich.Config
	if cfg.Enrichment.ConfigPath != "" {
		loaded, err := enrich.LoadConfig(cfg.Enrichment.ConfigPath)
		if err != nil {
			zap.L().Warn("waterfall config not loaded, using defaults", zap.Error(err))
		} else {
			wfCfg = loaded
		}
	}
	if wfCfg == nil {
		wfCfg = &enrich.Config{
			Defaults: enrich.DefaultConfig{TimeoutSecs: cfg.Enrichment.TimeoutSecs},
			Steps:    enrich.DefaultSteps(),
		}
	}

	var providers []enrich.Provider
	if cfg.Providers.TechDetect.Enabled {
		providers = append(providers, &enrich.TechProvider{Client: techdetect.NewClient()})
	}
	if cfg.Providers.ClearView.Enabled && cfg.Providers.ClearView.Key != "" {
		providers = append(providers, &enrich.CompanyInfoProvider{
			Client:  clearview.NewClient(cfg.Providers.ClearView.Key, clearview.WithBaseURL(cfg.Providers.ClearView.BaseURL)),
			CostUSD: cfg.Providers.ClearView.CostPerCall,
		})
	}
	if cfg.Providers.KGraph.Enabled && cfg.Providers.KGraph.Key != "" {
		providers = append(providers, &enrich.KGraphProvider{
			Client: kgraph.NewClient(cfg.Providers.KGraph.Key, kgraph.WithBaseURL(cfg.Providers.KGraph.BaseURL)),
		})
	}
	if cfg.Providers.Apollo.Enabled && cfg.Providers.Apollo.Key != "" {
		providers = append(providers, &enrich.ApolloProvider{
			Client: apollo.NewClient(cfg.Providers.Apollo.Key,
				apollo.WithBaseURL(cfg.Providers.Apollo.BaseURL),
				apollo.WithRateLimit(cfg.Providers.Apollo.CallsPerMin)),
			CostUSD: cfg.Providers.Apollo.CostPerCall,
		})
	}
	zap.L().Info("enrichment waterfall assembled", zap.Int("providers", len(providers)))

	return enrich.New(wfCfg, providers...)
}

// initVerifier builds the email verification adapter. Without an API key
// verification runs on local heuristics only.
func initVerifier() *verify.Adapter {
	if cfg.Verification.Key == "" {
		zap.L().Warn("verification key not set, using local heuristics only")
		return verify.New(nil)
	}
	client := zerobounce.NewClient(cfg.Verification.Key,
		zerobounce.WithBaseURL(cfg.Verification.BaseURL),
		zerobounce.WithTimeout(time.Duration(cfg.Verification.TimeoutSecs)*time.Second))
	cb := resilience.FromCircuitConfig(cfg.Verification.CircuitFailures, cfg.Verification.CircuitResetSecs)
	return verify.NewWithBreaker(client, cb)
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := gosf.Init(gosf.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
