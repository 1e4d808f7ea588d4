package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Weights configures the relative contribution of each scoring component.
// Values are percentages; they are normalized by their sum at scoring time,
// so {30,25,20,15,10} and {6,5,4,3,2} behave identically.
type Weights struct {
	Seniority    float64 `json:"seniority" yaml:"seniority" mapstructure:"seniority"`
	Email        float64 `json:"email" yaml:"email" mapstructure:"email"`
	Completeness float64 `json:"completeness" yaml:"completeness" mapstructure:"completeness"`
	Source       float64 `json:"source" yaml:"source" mapstructure:"source"`
	CompanyFit   float64 `json:"company_fit" yaml:"company_fit" mapstructure:"company_fit"`
}

// DefaultWeights returns the standard 30/25/20/15/10 split.
func DefaultWeights() Weights {
	return Weights{Seniority: 30, Email: 25, Completeness: 20, Source: 15, CompanyFit: 10}
}

// Sum returns the total weight, used as the normalization denominator.
func (w Weights) Sum() float64 {
	return w.Seniority + w.Email + w.Completeness + w.Source + w.CompanyFit
}

// EmployeeRange is the company-size band an ICP considers a fit.
type EmployeeRange struct {
	Min int `json:"min" yaml:"min" mapstructure:"min"`
	Max int `json:"max" yaml:"max" mapstructure:"max"`
}

// Contains reports whether n falls inside the range. A zero range never matches.
func (r EmployeeRange) Contains(n int) bool {
	return r.Max > 0 && n >= r.Min && n <= r.Max
}

// ICP is a tenant-scoped Ideal Customer Profile: scoring weights, the
// three-way decision thresholds, and the enrichment/verification toggles.
// An ICP is immutable for the duration of a pipeline run.
type ICP struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Weights              Weights       `json:"weights"`
	AutoRejectThreshold  float64       `json:"auto_reject_threshold"`
	ReviewThreshold      float64       `json:"review_threshold"`
	AutoApproveThreshold float64       `json:"auto_approve_threshold"`
	TargetEmployees      EmployeeRange `json:"target_employees"`

	EnrichmentEnabled   bool     `json:"enrichment_enabled"`
	VerificationEnabled bool     `json:"verification_enabled"`
	EnrichmentCostEst   float64  `json:"enrichment_cost_estimate"`
	VerificationCostEst float64  `json:"verification_cost_estimate"`
	PreferredProviders  []string `json:"preferred_providers,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the threshold ordering invariant. A violated ordering is a
// configuration error: processing for this ICP must not proceed, and no
// attempt is made to guess a fix.
func (i *ICP) Validate() error {
	if !(i.AutoRejectThreshold < i.ReviewThreshold && i.ReviewThreshold < i.AutoApproveThreshold) {
		return eris.Errorf(
			"icp %s: thresholds must satisfy auto_reject < review < auto_approve, got (%.1f, %.1f, %.1f)",
			i.ID, i.AutoRejectThreshold, i.ReviewThreshold, i.AutoApproveThreshold,
		)
	}
	if i.Weights.Sum() <= 0 {
		return eris.Errorf("icp %s: scoring weights sum to zero", i.ID)
	}
	return nil
}
