package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/model"
)

// Sentinel errors for unique-constraint violations. Callers match with
// eris.Is to distinguish a race on first-insert from a real failure.
var (
	ErrDuplicateLead       = eris.New("store: duplicate lead")
	ErrDuplicateAssignment = eris.New("store: duplicate assignment")
)

// AssignmentFilter specifies criteria for listing assignments.
type AssignmentFilter struct {
	TenantID string       `json:"tenant_id,omitempty"`
	ICPID    string       `json:"icp_id,omitempty"`
	Bucket   model.Bucket `json:"bucket,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
//
// Lookup methods (GetLeadByEmail, GetAssignmentByPair, GetRejectionByAssignment)
// return (nil, nil) when no row matches; update methods return an error when
// the target row does not exist.
type Store interface {
	// Raw records
	CreateRawRecord(ctx context.Context, rec *model.RawRecord) (*model.RawRecord, error)
	GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error)
	UpdateRawRecord(ctx context.Context, rec *model.RawRecord) error
	ListPendingRawRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error)

	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, tenantID, email string) (*model.Lead, error)
	UpdateLead(ctx context.Context, lead *model.Lead) error

	// ICPs
	CreateICP(ctx context.Context, icp *model.ICP) (*model.ICP, error)
	GetICP(ctx context.Context, id string) (*model.ICP, error)
	ListActiveICPs(ctx context.Context, tenantID string) ([]model.ICP, error)

	// Assignments
	CreateAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error)
	GetAssignment(ctx context.Context, id string) (*model.Assignment, error)
	GetAssignmentByPair(ctx context.Context, leadID, icpID string) (*model.Assignment, error)
	UpdateAssignment(ctx context.Context, a *model.Assignment) error
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error)
	BucketStats(ctx context.Context, tenantID, icpID string) ([]model.BucketStats, error)

	// Audit trail
	InsertStageActivity(ctx context.Context, act *model.StageActivity) error
	InsertRejection(ctx context.Context, r *model.RejectionTracking) (*model.RejectionTracking, error)
	GetRejectionByAssignment(ctx context.Context, assignmentID string) (*model.RejectionTracking, error)
	OverrideRejection(ctx context.Context, rejectionID, userID string) error

	// WithTx runs fn inside a single transaction; every Store call made
	// through the passed handle joins it. The transaction commits when fn
	// returns nil and rolls back otherwise. Must not be nested.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
