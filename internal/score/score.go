// Package score computes lead fit scores against ICP weight configurations.
// Scoring is deterministic: identical inputs always yield the identical score.
package score

import (
	"math"
	"strings"

	"github.com/sells-group/leadpipe/internal/model"
)

// criteriaPassThreshold is the component score at or above which a
// criterion counts as passed.
const criteriaPassThreshold = 50.0

// Criterion names reported in pass/fail lists and rejection rows.
const (
	CriterionSeniority    = "seniority"
	CriterionEmailQuality = "email_quality"
	CriterionCompleteness = "completeness"
	CriterionSource       = "source_quality"
	CriterionCompanyFit   = "company_fit"
)

// seniorityTier maps job-title keywords to a fixed seniority score.
// Tiers are checked in order; the first matching tier wins.
type seniorityTier struct {
	Level    string
	Score    float64
	Keywords []string
}

var seniorityTiers = []seniorityTier{
	{"c-level", 100, []string{"ceo", "cto", "cfo", "cmo", "coo", "chief", "president", "founder", "owner"}},
	{"vp", 90, []string{"vp", "vice president", "v.p."}},
	{"director", 80, []string{"director", "head of"}},
	{"manager", 70, []string{"manager", "mgr"}},
	{"lead", 60, []string{"lead", "principal"}},
	{"senior", 50, []string{"senior", "sr.", "sr "}},
	{"junior", 30, []string{"junior", "jr.", "jr ", "associate"}},
	{"intern", 20, []string{"intern", "trainee", "apprentice"}},
}

const (
	midScore     = 40 // title present but no keyword matched
	unknownScore = 10 // no title at all
)

// Input carries everything the engine needs; it holds no references to
// the store or any clock.
type Input struct {
	Fields model.RawFields

	EmailVerified       bool
	DeliverabilityScore *float64 // nil when the provider gave none

	// SourceQuality is the caller-supplied trust score in [0,1].
	SourceQuality float64

	CompanyEmployeeCount int
	TargetEmployees      model.EmployeeRange
}

// Breakdown holds each component's normalized [0,100] score, the final
// weighted total, and the pass/fail split.
type Breakdown struct {
	Seniority    float64  `json:"seniority"`
	EmailQuality float64  `json:"email_quality"`
	Completeness float64  `json:"completeness"`
	Source       float64  `json:"source_quality"`
	CompanyFit   float64  `json:"company_fit"`
	Total        float64  `json:"total"`
	Passed       []string `json:"passed_criteria"`
	Failed       []string `json:"failed_criteria"`
}

// completenessFields is the fixed checklist scored for data completeness.
var completenessFields = []func(model.RawFields) string{
	func(f model.RawFields) string { return f.FirstName },
	func(f model.RawFields) string { return f.LastName },
	func(f model.RawFields) string { return f.Phone },
	func(f model.RawFields) string { return f.JobTitle },
	func(f model.RawFields) string { return f.LinkedInURL },
	func(f model.RawFields) string { return f.CompanyName },
	func(f model.RawFields) string { return f.CompanyWebsite },
	func(f model.RawFields) string { return f.CompanyIndustry },
}

// DetectSeniority classifies a job title into a seniority level.
func DetectSeniority(jobTitle string) string {
	if strings.TrimSpace(jobTitle) == "" {
		return "unknown"
	}
	title := strings.ToLower(jobTitle)
	for _, tier := range seniorityTiers {
		for _, kw := range tier.Keywords {
			if strings.Contains(title, kw) {
				return tier.Level
			}
		}
	}
	return "mid"
}

func seniorityScore(jobTitle string) float64 {
	if strings.TrimSpace(jobTitle) == "" {
		return unknownScore
	}
	title := strings.ToLower(jobTitle)
	for _, tier := range seniorityTiers {
		for _, kw := range tier.Keywords {
			if strings.Contains(title, kw) {
				return tier.Score
			}
		}
	}
	return midScore
}

func emailScore(verified bool, deliverability *float64) float64 {
	if !verified {
		return 0
	}
	if deliverability != nil {
		return clamp(*deliverability, 0, 100)
	}
	return 50 // verified but no provider score
}

func completenessScore(f model.RawFields) float64 {
	filled := 0
	for _, get := range completenessFields {
		if strings.TrimSpace(get(f)) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(completenessFields)) * 100
}

func companyFitScore(f model.RawFields, employeeCount int, target model.EmployeeRange) float64 {
	var s float64
	if strings.TrimSpace(f.CompanyName) != "" {
		s += 50
	}
	if target.Contains(employeeCount) {
		s += 50
	}
	return s
}

// Compute produces the weighted fit score for one lead against one set of
// ICP weights. Each component is normalized to [0,100] before weighting;
// the total is clamped to [0,100] and rounded to 2 decimal places.
func Compute(in Input, weights model.Weights) Breakdown {
	b := Breakdown{
		Seniority:    seniorityScore(in.Fields.JobTitle),
		EmailQuality: emailScore(in.EmailVerified, in.DeliverabilityScore),
		Completeness: completenessScore(in.Fields),
		Source:       clamp(in.SourceQuality, 0, 1) * 100,
		CompanyFit:   companyFitScore(in.Fields, in.CompanyEmployeeCount, in.TargetEmployees),
	}

	// Weights are relative, not percentages: {30,25,20,15,10} and
	// {6,5,4,3,2} must score identically. Validate guarantees Sum() > 0.
	weighted := b.Seniority*weights.Seniority +
		b.EmailQuality*weights.Email +
		b.Completeness*weights.Completeness +
		b.Source*weights.Source +
		b.CompanyFit*weights.CompanyFit

	b.Total = round2(clamp(weighted/weights.Sum(), 0, 100))

	for _, c := range []struct {
		name  string
		score float64
	}{
		{CriterionSeniority, b.Seniority},
		{CriterionEmailQuality, b.EmailQuality},
		{CriterionCompleteness, b.Completeness},
		{CriterionSource, b.Source},
		{CriterionCompanyFit, b.CompanyFit},
	} {
		if c.score >= criteriaPassThreshold {
			b.Passed = append(b.Passed, c.name)
		} else {
			b.Failed = append(b.Failed, c.name)
		}
	}

	return b
}

// Disposition maps a final score onto the ICP's three thresholds.
// Scores in the ambiguous band between auto-reject and review go to
// pending review rather than silently rejecting.
func Disposition(total float64, icp *model.ICP) model.Bucket {
	switch {
	case total >= icp.AutoApproveThreshold:
		return model.BucketQualified
	case total >= icp.AutoRejectThreshold:
		return model.BucketPendingReview
	default:
		return model.BucketRejected
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
