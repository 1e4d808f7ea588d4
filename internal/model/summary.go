package model

// Outcome is the result of processing one (raw record, ICP) pair.
type Outcome struct {
	RawRecordID  string  `json:"raw_record_id"`
	ICPID        string  `json:"icp_id"`
	LeadID       string  `json:"lead_id,omitempty"`
	AssignmentID string  `json:"assignment_id,omitempty"`
	Bucket       Bucket  `json:"bucket,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Duplicate    bool    `json:"duplicate"` // resolved to an existing lead
	Skipped      bool    `json:"skipped"`   // already processed for this ICP
	CostUSD      float64 `json:"cost_usd"`
	Error        string  `json:"error,omitempty"`
}

// BatchSummary aggregates outcomes for a batch run. Counts are what the
// calling scheduler reports; they always include total/successful/failed.
type BatchSummary struct {
	Total         int     `json:"total"`
	Processed     int     `json:"processed"`
	Qualified     int     `json:"qualified"`
	PendingReview int     `json:"pending_review"`
	Rejected      int     `json:"rejected"`
	Duplicates    int     `json:"duplicates"`
	Skipped       int     `json:"skipped"`
	Failed        int     `json:"failed"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// BucketStats summarizes one bucket for the review-queue UI.
type BucketStats struct {
	Bucket    Bucket   `json:"bucket"`
	LeadCount int      `json:"lead_count"`
	AvgScore  *float64 `json:"avg_score,omitempty"`
}
