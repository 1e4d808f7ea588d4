package model

import "time"

// ProcessingStatus tracks where a raw record sits in its lifecycle.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingDone       ProcessingStatus = "processed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// SourceType classifies how a raw record entered the system.
type SourceType string

const (
	SourceScraper   SourceType = "scraper"
	SourceCSVUpload SourceType = "csv_upload"
	SourceWebhook   SourceType = "webhook"
	SourceManual    SourceType = "manual"
)

// RawFields holds the prospect field values as submitted, before
// canonicalization. Every field is optional; the normalizer produces a
// best-effort canonical copy.
type RawFields struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	FullName        string `json:"full_name,omitempty"`
	Phone           string `json:"phone,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDomain   string `json:"company_domain,omitempty"`
	CompanyWebsite  string `json:"company_website,omitempty"`
	CompanyIndustry string `json:"company_industry,omitempty"`
}

// RawRecord is one scraped or uploaded prospect. It is created by ingestion
// and mutated only by the pipeline (status, processed-ICP set, lead link).
// Raw records are never deleted; they are the audit trail of what came in.
type RawRecord struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	ExternalID    string           `json:"external_id,omitempty"`
	SourceName    string           `json:"source_name"`
	SourceType    SourceType       `json:"source_type"`
	Fields        RawFields        `json:"fields"`
	ScrapedData   map[string]any   `json:"scraped_data,omitempty"`
	Status        ProcessingStatus `json:"status"`
	RetryCount    int              `json:"retry_count"`
	ProcessedICPs []string         `json:"processed_icps,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	LeadID        string           `json:"lead_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ProcessedFor reports whether this record has already been evaluated
// against the given ICP.
func (r *RawRecord) ProcessedFor(icpID string) bool {
	for _, id := range r.ProcessedICPs {
		if id == icpID {
			return true
		}
	}
	return false
}

// MarkProcessedFor adds the ICP to the processed set, once.
func (r *RawRecord) MarkProcessedFor(icpID string) {
	if !r.ProcessedFor(icpID) {
		r.ProcessedICPs = append(r.ProcessedICPs, icpID)
	}
}
