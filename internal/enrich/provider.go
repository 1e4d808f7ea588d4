// Package enrich orchestrates external data-enrichment providers in a
// fixed priority order with first-writer-wins merging and per-call cost
// accounting.
package enrich

import (
	"context"
)

// Field keys contributed by enrichment providers.
const (
	FieldTechStack      = "company_tech_stack"
	FieldTechCategories = "company_tech_categories"
	FieldCMS            = "company_cms"
	FieldDescription    = "company_description"
	FieldIndustry       = "company_industry"
	FieldEmployeeCount  = "company_employee_count"
	FieldFounded        = "company_founded"
	FieldHeadquarters   = "company_headquarters"
	FieldType           = "company_type"
	FieldWebsite        = "company_website"
	FieldCountry        = "country"
)

// criticalFields gate the quota-limited fallback provider: it is only
// invoked when one of these is still missing after the free/cheap tiers.
var criticalFields = []string{FieldEmployeeCount, FieldIndustry}

// Identifier holds what we know about the company being enriched.
type Identifier struct {
	Domain string
	Name   string
}

// Fields is one provider's contribution, keyed by field name. Values are
// strings, ints, or string slices depending on the field.
type Fields map[string]any

// Provider is one step in the enrichment waterfall.
type Provider interface {
	// Name returns the provider identifier used in logs and cost rows.
	Name() string
	// CostPerCall returns the fixed USD cost of one invocation.
	CostPerCall() float64
	// CanEnrich reports whether the identifier carries enough
	// information for this provider to be worth calling.
	CanEnrich(id Identifier) bool
	// Enrich fetches fields for the company. An empty map with nil
	// error means the provider had nothing.
	Enrich(ctx context.Context, id Identifier) (Fields, error)
}
