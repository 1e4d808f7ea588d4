package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/cache"
	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/dedupe"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/notify"
	"github.com/sells-group/leadpipe/internal/pipeline"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/internal/verify"
	"github.com/sells-group/leadpipe/pkg/salesforce"
)

type stubEnricher struct{}

func (stubEnricher) Run(context.Context, enrich.Identifier) enrich.Result {
	return enrich.Result{}
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, email string) verify.Result {
	return verify.Result{Email: email, Verified: true, Status: verify.StatusValid, DeliverabilityScore: 100}
}

// stubSF implements salesforce.Client with overridable query and insert
// behavior; everything else is a no-op.
type stubSF struct {
	queryFn  func(soql string, out any) error
	insertFn func(records []map[string]any) ([]salesforce.CollectionResult, error)
}

func (s *stubSF) Query(_ context.Context, soql string, out any) error {
	if s.queryFn != nil {
		return s.queryFn(soql, out)
	}
	return nil
}

func (s *stubSF) InsertOne(context.Context, string, map[string]any) (string, error) {
	return "00Qxx", nil
}

func (s *stubSF) InsertCollection(_ context.Context, _ string, records []map[string]any) ([]salesforce.CollectionResult, error) {
	if s.insertFn != nil {
		return s.insertFn(records)
	}
	results := make([]salesforce.CollectionResult, len(records))
	for i := range records {
		results[i] = salesforce.CollectionResult{ID: "00Qxx", Success: true}
	}
	return results, nil
}

func (s *stubSF) UpdateOne(context.Context, string, string, map[string]any) error { return nil }

func (s *stubSF) UpdateCollection(context.Context, string, []salesforce.CollectionRecord) ([]salesforce.CollectionResult, error) {
	return nil, nil
}

func (s *stubSF) DescribeSObject(context.Context, string) (*salesforce.SObjectDescription, error) {
	return nil, nil
}

type harness struct {
	st store.Store
	p  *pipeline.Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cfg := &config.Config{Enrichment: config.EnrichmentConfig{SkipTrustedAbove: 0.85}}
	p := pipeline.New(cfg, st, dedupe.New(cache.NewMemory(), st, time.Minute),
		stubEnricher{}, stubVerifier{}, notify.New(config.NotifyConfig{}))
	return &harness{st: st, p: p}
}

// seedQualified pushes one record through the pipeline with thresholds any
// score clears, returning the qualified assignment.
func seedQualified(t *testing.T, h *harness, email string) *model.Assignment {
	t.Helper()
	ctx := context.Background()
	icp := &model.ICP{
		ID:                   uuid.NewString(),
		TenantID:             "t1",
		Name:                 "export seed",
		Weights:              model.DefaultWeights(),
		AutoRejectThreshold:  1,
		ReviewThreshold:      2,
		AutoApproveThreshold: 3,
		EnrichmentEnabled:    false,
		Active:               true,
	}
	// Persist the ICP so the assignment insert satisfies the icps(id)
	// foreign key.
	_, err := h.st.CreateICP(ctx, icp)
	require.NoError(t, err)
	rec, err := h.st.CreateRawRecord(ctx, &model.RawRecord{
		TenantID:   "t1",
		SourceName: "csv",
		SourceType: model.SourceCSVUpload,
		Status:     model.ProcessingPending,
		Fields: model.RawFields{
			Email:       email,
			FirstName:   "Jane",
			LastName:    "Doe",
			JobTitle:    "CTO",
			CompanyName: "Acme",
		},
	})
	require.NoError(t, err)

	outcome, err := h.p.Process(ctx, rec, icp)
	require.NoError(t, err)
	require.Equal(t, model.BucketQualified, outcome.Bucket)

	a, err := h.st.GetAssignment(ctx, outcome.AssignmentID)
	require.NoError(t, err)
	return a
}

func TestRunExportsNewLeads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := seedQualified(t, h, "jane@acme.com")

	var inserted []map[string]any
	sf := &stubSF{
		insertFn: func(records []map[string]any) ([]salesforce.CollectionResult, error) {
			inserted = records
			results := make([]salesforce.CollectionResult, len(records))
			for i := range records {
				results[i] = salesforce.CollectionResult{ID: "00Qxx", Success: true}
			}
			return results, nil
		},
	}

	summary, err := New(h.st, sf, h.p).Run(ctx, "t1", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Exported)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, inserted, 1)
	assert.Equal(t, "Doe", inserted[0]["LastName"])
	assert.Equal(t, "Acme", inserted[0]["Company"])
	assert.Equal(t, "jane@acme.com", inserted[0]["Email"])

	got, err := h.st.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BucketExported, got.Bucket)
}

func TestRunSkipsLeadsAlreadyInCRM(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := seedQualified(t, h, "jane@acme.com")

	sf := &stubSF{
		queryFn: func(_ string, out any) error {
			leads := out.(*[]salesforce.Lead)
			*leads = []salesforce.Lead{{ID: "00Qexisting", Email: "jane@acme.com"}}
			return nil
		},
		insertFn: func(records []map[string]any) ([]salesforce.CollectionResult, error) {
			t.Fatal("no insert expected for a lead already in the CRM")
			return nil, nil
		},
	}

	summary, err := New(h.st, sf, h.p).Run(ctx, "t1", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AlreadyInCRM)
	assert.Equal(t, 0, summary.Exported)

	got, err := h.st.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BucketExported, got.Bucket)
}

func TestRunCountsFailedInserts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := seedQualified(t, h, "jane@acme.com")

	sf := &stubSF{
		insertFn: func(records []map[string]any) ([]salesforce.CollectionResult, error) {
			results := make([]salesforce.CollectionResult, len(records))
			for i := range records {
				results[i] = salesforce.CollectionResult{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING"}}
			}
			return results, nil
		},
	}

	summary, err := New(h.st, sf, h.p).Run(ctx, "t1", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Exported)

	// The assignment stays qualified for a later retry.
	got, err := h.st.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BucketQualified, got.Bucket)
}

func TestRunEmptyQueue(t *testing.T) {
	h := newHarness(t)

	summary, err := New(h.st, &stubSF{}, h.p).Run(context.Background(), "t1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestLeadFieldsPlaceholders(t *testing.T) {
	fields := LeadFields(&model.Lead{Email: "x@y.com"}, &model.Assignment{Score: 42})

	assert.Equal(t, "Unknown", fields["LastName"])
	assert.Equal(t, "Unknown", fields["Company"])
	assert.Equal(t, "Cold", fields["Rating"])
	assert.NotContains(t, fields, "FirstName")
}

func TestLeadFieldsRating(t *testing.T) {
	hot := LeadFields(&model.Lead{}, &model.Assignment{Score: 85})
	warm := LeadFields(&model.Lead{}, &model.Assignment{Score: 60})

	assert.Equal(t, "Hot", hot["Rating"])
	assert.Equal(t, "Warm", warm["Rating"])
}
