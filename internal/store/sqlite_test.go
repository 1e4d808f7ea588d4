package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testICP(tenantID string) *model.ICP {
	return &model.ICP{
		TenantID:             tenantID,
		Name:                 "mid-market saas",
		Weights:              model.DefaultWeights(),
		AutoRejectThreshold:  30,
		ReviewThreshold:      50,
		AutoApproveThreshold: 80,
		TargetEmployees:      model.EmployeeRange{Min: 50, Max: 500},
		EnrichmentEnabled:    true,
		VerificationEnabled:  true,
		Active:               true,
	}
}

func testLead(tenantID, email string) *model.Lead {
	return &model.Lead{
		TenantID:    tenantID,
		Email:       email,
		FirstName:   "Jane",
		LastName:    "Doe",
		JobTitle:    "VP of Engineering",
		CompanyName: "Acme",
		SourceName:  "apollo",
		FitScore:    77,
	}
}

// seedAssignment creates the lead, ICP, and assignment rows an assignment
// test needs, returning all three.
func seedAssignment(t *testing.T, st *SQLiteStore, tenantID string, bucket model.Bucket, score float64) (*model.Lead, *model.ICP, *model.Assignment) {
	t.Helper()
	ctx := context.Background()

	lead, err := st.CreateLead(ctx, testLead(tenantID, "jane.doe+"+string(bucket)+"@acme.com"))
	require.NoError(t, err)
	icp, err := st.CreateICP(ctx, testICP(tenantID))
	require.NoError(t, err)

	a := &model.Assignment{
		TenantID: tenantID,
		LeadID:   lead.ID,
		ICPID:    icp.ID,
		Status:   model.BucketStatus(bucket),
		Bucket:   bucket,
		Score:    score,
	}
	created, err := st.CreateAssignment(ctx, a)
	require.NoError(t, err)
	return lead, icp, created
}

// --- Leads ---

func TestSQLite_CreateLead_AndGetByEmail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateLead(ctx, testLead("t1", "jane@acme.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := st.GetLeadByEmail(ctx, "t1", "jane@acme.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "VP of Engineering", got.JobTitle)
	assert.Equal(t, 77.0, got.FitScore)
}

func TestSQLite_CreateLead_DuplicateEmail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateLead(ctx, testLead("t1", "jane@acme.com"))
	require.NoError(t, err)

	_, err = st.CreateLead(ctx, testLead("t1", "jane@acme.com"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateLead))
}

func TestSQLite_CreateLead_SameEmailDifferentTenant(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateLead(ctx, testLead("t1", "jane@acme.com"))
	require.NoError(t, err)
	_, err = st.CreateLead(ctx, testLead("t2", "jane@acme.com"))
	require.NoError(t, err)
}

func TestSQLite_GetLeadByEmail_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetLeadByEmail(context.Background(), "t1", "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, err := st.CreateLead(ctx, testLead("t1", "jane@acme.com"))
	require.NoError(t, err)

	lead.CompanyIndustry = "E-commerce"
	lead.FitScore = 88.5
	require.NoError(t, st.UpdateLead(ctx, lead))

	got, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "E-commerce", got.CompanyIndustry)
	assert.Equal(t, 88.5, got.FitScore)
}

func TestSQLite_UpdateLead_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	lead := testLead("t1", "jane@acme.com")
	lead.ID = "missing"
	err := st.UpdateLead(context.Background(), lead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
}

// --- ICPs ---

func TestSQLite_CreateICP_ValidatesThresholds(t *testing.T) {
	st := newTestSQLiteStore(t)

	icp := testICP("t1")
	icp.AutoRejectThreshold = 90 // violates ordering
	_, err := st.CreateICP(context.Background(), icp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds")
}

func TestSQLite_ListActiveICPs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	active, err := st.CreateICP(ctx, testICP("t1"))
	require.NoError(t, err)

	inactive := testICP("t1")
	inactive.Active = false
	_, err = st.CreateICP(ctx, inactive)
	require.NoError(t, err)

	_, err = st.CreateICP(ctx, testICP("t2"))
	require.NoError(t, err)

	icps, err := st.ListActiveICPs(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, icps, 1)
	assert.Equal(t, active.ID, icps[0].ID)
}

func TestSQLite_GetICP_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetICP(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Assignments ---

func TestSQLite_CreateAssignment_DuplicatePair(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, icp, _ := seedAssignment(t, st, "t1", model.BucketQualified, 85)

	_, err := st.CreateAssignment(ctx, &model.Assignment{
		TenantID: "t1",
		LeadID:   lead.ID,
		ICPID:    icp.ID,
		Bucket:   model.BucketQualified,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateAssignment))
}

func TestSQLite_ForeignKeysEnforcedOnEveryConnection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Churn the pool from several goroutines so a connection-scoped
	// pragma applied to only one connection would be left behind.
	done := make(chan error, 8)
	for range 8 {
		go func() {
			_, err := st.GetLeadByEmail(ctx, "t1", "nobody@acme.com")
			done <- err
		}()
	}
	for range 8 {
		require.NoError(t, <-done)
	}

	_, err := st.CreateAssignment(ctx, &model.Assignment{
		TenantID: "t1",
		LeadID:   "no-such-lead",
		ICPID:    "no-such-icp",
		Bucket:   model.BucketQualified,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestSQLite_GetAssignmentByPair(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, icp, created := seedAssignment(t, st, "t1", model.BucketPendingReview, 65)

	got, err := st.GetAssignmentByPair(ctx, lead.ID, icp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.BucketPendingReview, got.Bucket)

	missing, err := st.GetAssignmentByPair(ctx, lead.ID, "other-icp")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_UpdateAssignment_BucketTransition(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, a := seedAssignment(t, st, "t1", model.BucketPendingReview, 65)

	a.EnterBucket(model.BucketQualified, time.Now().UTC())
	require.NoError(t, st.UpdateAssignment(ctx, a))

	got, err := st.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BucketQualified, got.Bucket)
	assert.Equal(t, model.AssignmentQualified, got.Status)
}

func TestSQLite_ListAssignments_FilterByBucket(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedAssignment(t, st, "t1", model.BucketQualified, 85)
	seedAssignment(t, st, "t1", model.BucketRejected, 20)

	qualified, err := st.ListAssignments(ctx, AssignmentFilter{TenantID: "t1", Bucket: model.BucketQualified})
	require.NoError(t, err)
	require.Len(t, qualified, 1)
	assert.Equal(t, model.BucketQualified, qualified[0].Bucket)

	all, err := st.ListAssignments(ctx, AssignmentFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_BucketStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, icp, _ := seedAssignment(t, st, "t1", model.BucketQualified, 90)

	lead2, err := st.CreateLead(ctx, testLead("t1", "second@acme.com"))
	require.NoError(t, err)
	_, err = st.CreateAssignment(ctx, &model.Assignment{
		TenantID: "t1", LeadID: lead2.ID, ICPID: icp.ID,
		Bucket: model.BucketQualified, Score: 80,
	})
	require.NoError(t, err)

	stats, err := st.BucketStats(ctx, "t1", icp.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, model.BucketQualified, stats[0].Bucket)
	assert.Equal(t, 2, stats[0].LeadCount)
	require.NotNil(t, stats[0].AvgScore)
	assert.InDelta(t, 85.0, *stats[0].AvgScore, 0.001)
}

// --- Raw records ---

func TestSQLite_RawRecord_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec, err := st.CreateRawRecord(ctx, &model.RawRecord{
		TenantID:   "t1",
		SourceName: "website_scraper",
		SourceType: model.SourceScraper,
		Fields:     model.RawFields{Email: "jane@acme.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProcessingPending, rec.Status)

	pending, err := st.ListPendingRawRecords(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rec.Status = model.ProcessingDone
	rec.MarkProcessedFor("icp-1")
	rec.LeadID = "lead-1"
	require.NoError(t, st.UpdateRawRecord(ctx, rec))

	got, err := st.GetRawRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessingDone, got.Status)
	assert.True(t, got.ProcessedFor("icp-1"))
	assert.Equal(t, "lead-1", got.LeadID)

	pending, err = st.ListPendingRawRecords(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_GetRawRecord_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetRawRecord(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Audit trail ---

func TestSQLite_Rejection_InsertAndOverride(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, icp, a := seedAssignment(t, st, "t1", model.BucketRejected, 20)

	r, err := st.InsertRejection(ctx, &model.RejectionTracking{
		TenantID:       "t1",
		LeadID:         lead.ID,
		ICPID:          icp.ID,
		AssignmentID:   a.ID,
		Stage:          model.BucketScored,
		Reason:         "score 20.0 below threshold 30.0",
		Category:       "low_score",
		FailedCriteria: []string{"seniority", "company_fit"},
		CanOverride:    true,
	})
	require.NoError(t, err)

	got, err := st.GetRejectionByAssignment(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "low_score", got.Category)
	assert.Nil(t, got.OverriddenAt)

	require.NoError(t, st.OverrideRejection(ctx, r.ID, "reviewer-7"))

	got, err = st.GetRejectionByAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-7", got.OverriddenBy)
	require.NotNil(t, got.OverriddenAt)

	// A second override is rejected.
	err = st.OverrideRejection(ctx, r.ID, "reviewer-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already overridden")
}

func TestSQLite_OverrideRejection_NotAllowed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, a := seedAssignment(t, st, "t1", model.BucketRejected, 10)

	r, err := st.InsertRejection(ctx, &model.RejectionTracking{
		TenantID:     "t1",
		AssignmentID: a.ID,
		Stage:        model.BucketScored,
		Reason:       "invalid email",
		Category:     "validation",
		CanOverride:  false,
	})
	require.NoError(t, err)

	err = st.OverrideRejection(ctx, r.ID, "reviewer-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be overridden")
}

func TestSQLite_StageActivity_Insert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, _, a := seedAssignment(t, st, "t1", model.BucketQualified, 85)

	err := st.InsertStageActivity(ctx, &model.StageActivity{
		TenantID:     "t1",
		LeadID:       lead.ID,
		AssignmentID: a.ID,
		FromStage:    model.BucketScored,
		ToStage:      model.BucketQualified,
		Actor:        model.ActorPipeline,
	})
	require.NoError(t, err)
}

// --- Transactions ---

func TestSQLite_WithTx_CommitsOnSuccess(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx Store) error {
		_, err := tx.CreateLead(ctx, testLead("t1", "tx@acme.com"))
		return err
	})
	require.NoError(t, err)

	got, err := st.GetLeadByEmail(ctx, "t1", "tx@acme.com")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx Store) error {
		if _, err := tx.CreateLead(ctx, testLead("t1", "rollback@acme.com")); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := st.GetLeadByEmail(ctx, "t1", "rollback@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}
