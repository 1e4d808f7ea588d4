package enrich

import (
	"context"

	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/apollo"
	"github.com/sells-group/leadpipe/pkg/clearview"
	"github.com/sells-group/leadpipe/pkg/kgraph"
	"github.com/sells-group/leadpipe/pkg/techdetect"
)

// retryCfg wraps every provider call; transient upstream failures get a
// bounded retry before the waterfall gives up on the step.
func retryCfg(provider string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger(provider, "enrich")
	return cfg
}

// TechProvider contributes tech-stack fields from homepage fingerprints.
// Free.
type TechProvider struct {
	Client techdetect.Client
}

func (p *TechProvider) Name() string { return "techdetect" }
func (p *TechProvider) CostPerCall() float64 { return 0 }
func (p *TechProvider) CanEnrich(id Identifier) bool { return id.Domain != "" }

func (p *TechProvider) Enrich(ctx context.Context, id Identifier) (Fields, error) {
	r, err := resilience.DoVal(ctx, retryCfg(p.Name()), func(ctx context.Context) (*techdetect.Result, error) {
		return p.Client.Detect(ctx, id.Domain)
	})
	if err != nil {
		return nil, err
	}

	f := Fields{}
	if len(r.Technologies) > 0 {
		f[FieldTechStack] = r.Technologies
	}
	if len(r.Categories) > 0 {
		f[FieldTechCategories] = r.Categories
	}
	if r.CMS != "" {
		f[FieldCMS] = r.CMS
	}
	return f, nil
}

// CompanyInfoProvider contributes firmographics from the search knowledge
// graph panel. Paid per call.
type CompanyInfoProvider struct {
	Client  clearview.Client
	CostUSD float64
}

func (p *CompanyInfoProvider) Name() string { return "clearview" }
func (p *CompanyInfoProvider) CostPerCall() float64 { return p.CostUSD }
func (p *CompanyInfoProvider) CanEnrich(id Identifier) bool { return id.Name != "" }

func (p *CompanyInfoProvider) Enrich(ctx context.Context, id Identifier) (Fields, error) {
	kg, err := resilience.DoVal(ctx, retryCfg(p.Name()), func(ctx context.Context) (*clearview.KnowledgeGraph, error) {
		return p.Client.SearchCompany(ctx, id.Name)
	})
	if err != nil {
		return nil, err
	}
	if kg == nil {
		return Fields{}, nil
	}

	f := Fields{}
	if kg.Description != "" {
		f[FieldDescription] = kg.Description
	}
	if kg.Type != "" {
		f[FieldType] = kg.Type
	}
	if kg.Founded != "" {
		f[FieldFounded] = kg.Founded
	}
	if kg.Headquarters != "" {
		f[FieldHeadquarters] = kg.Headquarters
	}
	if kg.Website != "" {
		f[FieldWebsite] = kg.Website
	}
	return f, nil
}

// KGraphProvider contributes descriptions, industry, and headcounts from
// the knowledge graph API. Free.
type KGraphProvider struct {
	Client kgraph.Client
}

func (p *KGraphProvider) Name() string { return "kgraph" }
func (p *KGraphProvider) CostPerCall() float64 { return 0 }
func (p *KGraphProvider) CanEnrich(id Identifier) bool { return id.Name != "" }

func (p *KGraphProvider) Enrich(ctx context.Context, id Identifier) (Fields, error) {
	e, err := resilience.DoVal(ctx, retryCfg(p.Name()), func(ctx context.Context) (*kgraph.Entity, error) {
		return p.Client.LookupCompany(ctx, id.Name, id.Domain)
	})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return Fields{}, nil
	}

	f := Fields{}
	if e.Article != "" {
		f[FieldDescription] = e.Article
		if n := kgraph.ExtractEmployeeCount(e.Article); n > 0 {
			f[FieldEmployeeCount] = n
		}
		if y := kgraph.ExtractFoundedYear(e.Article); y > 0 {
			f[FieldFounded] = y
		}
	}
	if e.Description != "" {
		f[FieldIndustry] = e.Description
	}
	return f, nil
}

// ApolloProvider is the quota-limited last resort, contributing only the
// critical firmographic fields.
type ApolloProvider struct {
	Client  apollo.Client
	CostUSD float64
}

func (p *ApolloProvider) Name() string { return "apollo" }
func (p *ApolloProvider) CostPerCall() float64 { return p.CostUSD }
func (p *ApolloProvider) CanEnrich(id Identifier) bool { return id.Domain != "" }

func (p *ApolloProvider) Enrich(ctx context.Context, id Identifier) (Fields, error) {
	org, err := resilience.DoVal(ctx, retryCfg(p.Name()), func(ctx context.Context) (*apollo.Organization, error) {
		return p.Client.EnrichOrganization(ctx, id.Domain)
	})
	if err != nil {
		return nil, err
	}
	if org == nil {
		return Fields{}, nil
	}

	f := Fields{}
	if org.EstimatedEmployees > 0 {
		f[FieldEmployeeCount] = org.EstimatedEmployees
	}
	if org.Industry != "" {
		f[FieldIndustry] = org.Industry
	}
	if org.Country != "" {
		f[FieldCountry] = org.Country
	}
	if org.ShortDescription != "" {
		f[FieldDescription] = org.ShortDescription
	}
	return f, nil
}
