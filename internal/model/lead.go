package model

import "time"

// Bucket is the pipeline stage / disposition of a Lead-ICP assignment.
type Bucket string

const (
	BucketRaw           Bucket = "raw"
	BucketScored        Bucket = "scored"
	BucketEnriched      Bucket = "enriched"
	BucketVerified      Bucket = "verified"
	BucketQualified     Bucket = "qualified"
	BucketPendingReview Bucket = "pending_review"
	BucketRejected      Bucket = "rejected"
	BucketExported      Bucket = "exported"
)

// EnrichmentStatus tracks whether the waterfall ran for a lead.
type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentCompleted EnrichmentStatus = "completed"
	EnrichmentSkipped   EnrichmentStatus = "skipped"
)

// Lead is the canonical, deduplicated-by-email prospect for a tenant.
// The (TenantID, Email) pair is unique; the authoritative store enforces it.
// Leads are created on the first dedup miss and updated on later matches;
// the pipeline never merges or deletes them.
type Lead struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`

	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`

	CompanyName      string   `json:"company_name,omitempty"`
	CompanyDomain    string   `json:"company_domain,omitempty"`
	CompanyWebsite   string   `json:"company_website,omitempty"`
	CompanyIndustry  string   `json:"company_industry,omitempty"`
	CompanyCountry   string   `json:"company_country,omitempty"`
	CompanyEmployees int      `json:"company_employees,omitempty"`
	TechStack        []string `json:"tech_stack,omitempty"`

	SourceName string `json:"source_name,omitempty"`

	EnrichmentStatus    EnrichmentStatus `json:"enrichment_status,omitempty"`
	EnrichmentProviders []string         `json:"enrichment_providers,omitempty"`
	EnrichmentCost      float64          `json:"enrichment_cost,omitempty"`
	EnrichmentSkipped   string           `json:"enrichment_skipped_reason,omitempty"`
	EnrichedAt          *time.Time       `json:"enriched_at,omitempty"`

	EmailVerified       bool    `json:"email_verified"`
	EmailStatus         string  `json:"email_status,omitempty"`
	DeliverabilityScore float64 `json:"deliverability_score,omitempty"`
	IsDisposable        bool    `json:"is_disposable,omitempty"`
	IsRoleBased         bool    `json:"is_role_based,omitempty"`

	FitScore  float64   `json:"fit_score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignmentStatus is the review-facing status of a Lead-ICP assignment.
type AssignmentStatus string

const (
	AssignmentNew           AssignmentStatus = "new"
	AssignmentQualified     AssignmentStatus = "qualified"
	AssignmentPendingReview AssignmentStatus = "pending_review"
	AssignmentRejected      AssignmentStatus = "rejected"
	AssignmentExported      AssignmentStatus = "exported"
)

// BucketStatus maps a disposition bucket to its assignment status.
func BucketStatus(b Bucket) AssignmentStatus {
	switch b {
	case BucketQualified:
		return AssignmentQualified
	case BucketPendingReview:
		return AssignmentPendingReview
	case BucketRejected:
		return AssignmentRejected
	case BucketExported:
		return AssignmentExported
	default:
		return AssignmentNew
	}
}

// Assignment is the per-(Lead, ICP) evaluation result. Exactly one exists
// per pair; the store enforces uniqueness on (lead_id, icp_id).
type Assignment struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	LeadID   string `json:"lead_id"`
	ICPID    string `json:"icp_id"`

	Status          AssignmentStatus `json:"status"`
	Bucket          Bucket           `json:"bucket"`
	Score           float64          `json:"score"`
	PassedCriteria  []string         `json:"passed_criteria,omitempty"`
	FailedCriteria  []string         `json:"failed_criteria,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`

	EnrichmentDone   bool `json:"enrichment_done"`
	VerificationDone bool `json:"verification_done"`

	BucketEnteredAt time.Time `json:"bucket_entered_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EnterBucket moves the assignment into a bucket and stamps the entry time.
func (a *Assignment) EnterBucket(b Bucket, at time.Time) {
	a.Bucket = b
	a.Status = BucketStatus(b)
	a.BucketEnteredAt = at
}
