package model

import "time"

// StageActivity is one append-only audit record of a stage transition for a
// Lead-ICP assignment. Activities are never mutated or deleted.
type StageActivity struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	LeadID       string         `json:"lead_id"`
	AssignmentID string         `json:"assignment_id"`
	FromStage    Bucket         `json:"from_stage,omitempty"`
	ToStage      Bucket         `json:"to_stage"`
	Actor        string         `json:"actor"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ActorPipeline is the actor recorded for transitions the pipeline makes on
// its own; human reviewers are recorded by user id.
const ActorPipeline = "pipeline"

// RejectionTracking is the append-only record of why an assignment was
// rejected at an ICP. A reviewer may override it, reopening the assignment.
type RejectionTracking struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	LeadID       string `json:"lead_id"`
	ICPID        string `json:"icp_id"`
	AssignmentID string `json:"assignment_id"`

	Stage          Bucket   `json:"stage"`
	Reason         string   `json:"reason"`
	Category       string   `json:"category"`
	FailedCriteria []string `json:"failed_criteria,omitempty"`
	CanOverride    bool     `json:"can_override"`

	OverriddenBy string     `json:"overridden_by,omitempty"`
	OverriddenAt *time.Time `json:"overridden_at,omitempty"`
	RejectedAt   time.Time  `json:"rejected_at"`
}
