// Package pipeline orchestrates the qualification of raw prospect records:
// normalize, dedupe, enrich, verify, score, and route into a bucket, with
// every write for one (record, ICP) evaluation committed atomically.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/cost"
	"github.com/sells-group/leadpipe/internal/dedupe"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/normalize"
	"github.com/sells-group/leadpipe/internal/notify"
	"github.com/sells-group/leadpipe/internal/score"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/internal/verify"
)

// Enricher runs the provider waterfall; *enrich.Waterfall satisfies it.
type Enricher interface {
	Run(ctx context.Context, id enrich.Identifier) enrich.Result
}

// Verifier classifies an email address; *verify.Adapter satisfies it.
type Verifier interface {
	Verify(ctx context.Context, email string) verify.Result
}

// Rejection categories recorded on rejection rows.
const (
	CategoryLowScore   = "low_score"
	CategoryValidation = "validation"
	CategoryManual     = "manual_review"
)

// Enrichment skip reasons.
const (
	SkipTrustedSource   = "trusted_source"
	SkipAlreadyEnriched = "already_enriched"
	SkipDisabled        = "disabled"
)

// Pipeline evaluates raw records against ICPs.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	dedupe   *dedupe.Index
	enricher Enricher
	verifier Verifier
	notifier *notify.Notifier
	ledger   *cost.Ledger
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	idx *dedupe.Index,
	enricher Enricher,
	verifier Verifier,
	notifier *notify.Notifier,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		dedupe:   idx,
		enricher: enricher,
		verifier: verifier,
		notifier: notifier,
		ledger:   cost.NewLedger(),
	}
}

// Ledger exposes accumulated provider spend for reporting.
func (p *Pipeline) Ledger() *cost.Ledger {
	return p.ledger
}

// evaluation carries the intermediate state of one (record, ICP) run
// between the external-call stage and the transactional persist stage.
type evaluation struct {
	fields     model.RawFields
	enrichRes  enrich.Result
	enriched   bool
	skipReason string
	verifyRes  verify.Result
	verified   bool
	breakdown  score.Breakdown
	bucket     model.Bucket

	// initialScore is computed on the data as submitted, before any
	// provider contribution; the audit trail's scored stage records it.
	initialScore float64
}

// Process evaluates one raw record against one ICP. Record-level failures
// (bad input, duplicate races that resolve) are reported in the Outcome;
// the returned error is reserved for infrastructure failures the caller
// may want to abort a batch over.
func (p *Pipeline) Process(ctx context.Context, rec *model.RawRecord, icp *model.ICP) (*model.Outcome, error) {
	outcome := &model.Outcome{RawRecordID: rec.ID, ICPID: icp.ID}
	log := zap.L().With(
		zap.String("raw_record_id", rec.ID),
		zap.String("icp_id", icp.ID),
		zap.String("tenant_id", rec.TenantID),
	)

	if err := icp.Validate(); err != nil {
		return outcome, err
	}

	// Idempotence: a record already evaluated against this ICP is a no-op.
	if rec.ProcessedFor(icp.ID) {
		outcome.Skipped = true
		return outcome, nil
	}

	fields := normalize.Record(rec.Fields)

	// A record without a syntactically valid email can never become a
	// lead; park it as failed without touching any provider.
	if !verify.ValidSyntax(fields.Email) {
		outcome.Error = fmt.Sprintf("invalid email: %q", rec.Fields.Email)
		p.failRecord(ctx, rec, outcome.Error)
		log.Warn("pipeline: record rejected on input validation", zap.String("email", rec.Fields.Email))
		return outcome, nil
	}

	leadID, err := p.dedupe.Resolve(ctx, rec.TenantID, fields.Email)
	if err != nil {
		p.failRecord(ctx, rec, err.Error())
		outcome.Error = err.Error()
		return outcome, err
	}

	var existing *model.Lead
	if leadID != "" {
		existing, err = p.store.GetLead(ctx, leadID)
		if err != nil {
			p.failRecord(ctx, rec, err.Error())
			outcome.Error = err.Error()
			return outcome, err
		}
		outcome.Duplicate = existing != nil
	}

	ev := p.evaluate(ctx, rec, icp, existing, fields)
	outcome.Bucket = ev.bucket
	outcome.Score = ev.breakdown.Total
	outcome.CostUSD = ev.enrichRes.TotalCostUSD
	if ev.enrichRes.TotalCostUSD > 0 {
		p.ledger.Add("enrichment", ev.enrichRes.TotalCostUSD)
	}
	if ev.verified && icp.VerificationCostEst > 0 {
		p.ledger.Add("verification", icp.VerificationCostEst)
		outcome.CostUSD += icp.VerificationCostEst
	}

	lead, assignment, err := p.persist(ctx, rec, icp, existing, ev)
	if eris.Is(err, store.ErrDuplicateLead) || eris.Is(err, store.ErrDuplicateAssignment) {
		// Lost a create race; the winner's rows are authoritative. Re-read
		// and persist against them.
		log.Info("pipeline: create race lost, retrying against winner")
		winner, rerr := p.store.GetLeadByEmail(ctx, rec.TenantID, fields.Email)
		if rerr != nil || winner == nil {
			err = eris.Wrap(err, "pipeline: re-resolve after duplicate")
		} else {
			outcome.Duplicate = true
			existing = winner
			lead, assignment, err = p.persist(ctx, rec, icp, existing, ev)
		}
	}
	if err != nil {
		rec.RetryCount++
		p.failRecord(ctx, rec, err.Error())
		outcome.Error = err.Error()
		return outcome, err
	}

	outcome.LeadID = lead.ID
	outcome.AssignmentID = assignment.ID

	p.dedupe.Record(ctx, rec.TenantID, fields.Email, lead.ID)
	if ev.bucket == model.BucketQualified {
		p.notifier.LeadQualified(ctx, lead, assignment)
	}

	log.Info("pipeline: record processed",
		zap.String("lead_id", lead.ID),
		zap.String("bucket", string(ev.bucket)),
		zap.Float64("score", ev.breakdown.Total),
		zap.Bool("duplicate", outcome.Duplicate),
	)
	return outcome, nil
}

// evaluate runs the non-transactional stages: enrichment, verification,
// and scoring. Provider failures inside the waterfall are soft; this
// stage always produces a scored evaluation.
func (p *Pipeline) evaluate(ctx context.Context, rec *model.RawRecord, icp *model.ICP, existing *model.Lead, fields model.RawFields) evaluation {
	ev := evaluation{fields: fields}

	// A known lead already carries fields a sparse record may lack.
	if existing != nil {
		mergeLeadFields(&ev.fields, existing)
	}

	sourceQuality := p.cfg.SourceQuality(rec.SourceName)

	ev.initialScore = score.Compute(score.Input{
		Fields:               ev.fields,
		SourceQuality:        sourceQuality,
		TargetEmployees:      icp.TargetEmployees,
		CompanyEmployeeCount: employeeCount(nil, existing),
	}, icp.Weights).Total

	switch {
	case !icp.EnrichmentEnabled:
		ev.skipReason = SkipDisabled
	case existing != nil && existing.EnrichmentStatus == model.EnrichmentCompleted:
		ev.skipReason = SkipAlreadyEnriched
	case sourceQuality >= p.cfg.Enrichment.SkipTrustedAbove:
		ev.skipReason = SkipTrustedSource
	default:
		ev.enrichRes = p.enricher.Run(ctx, enrich.Identifier{
			Domain: ev.fields.CompanyDomain,
			Name:   ev.fields.CompanyName,
		})
		ev.enriched = true
		applyEnrichment(&ev.fields, ev.enrichRes.Fields)
	}

	if icp.VerificationEnabled {
		ev.verifyRes = p.verifier.Verify(ctx, ev.fields.Email)
		ev.verified = true
	}

	in := score.Input{
		Fields:          ev.fields,
		SourceQuality:   sourceQuality,
		TargetEmployees: icp.TargetEmployees,
	}
	if ev.verified {
		in.EmailVerified = ev.verifyRes.Verified
		s := ev.verifyRes.DeliverabilityScore
		in.DeliverabilityScore = &s
	}
	in.CompanyEmployeeCount = employeeCount(ev.enrichRes.Fields, existing)

	ev.breakdown = score.Compute(in, icp.Weights)
	ev.bucket = score.Disposition(ev.breakdown.Total, icp)

	// An undeliverable email can never auto-qualify; a human decides.
	if ev.bucket == model.BucketQualified && ev.verified && ev.verifyRes.Status == verify.StatusInvalid {
		ev.bucket = model.BucketPendingReview
	}
	return ev
}

// persist writes the lead, assignment, audit trail, and raw record update
// in one transaction.
func (p *Pipeline) persist(ctx context.Context, rec *model.RawRecord, icp *model.ICP, existing *model.Lead, ev evaluation) (*model.Lead, *model.Assignment, error) {
	var lead *model.Lead
	var assignment *model.Assignment
	now := time.Now().UTC()

	err := p.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		lead, err = p.upsertLead(ctx, tx, rec, existing, ev, now)
		if err != nil {
			return err
		}

		// One assignment per (lead, ICP); a concurrent or earlier record
		// for the same pair wins and this evaluation folds into it.
		assignment, err = tx.GetAssignmentByPair(ctx, lead.ID, icp.ID)
		if err != nil {
			return err
		}
		if assignment == nil {
			a := &model.Assignment{
				TenantID:         rec.TenantID,
				LeadID:           lead.ID,
				ICPID:            icp.ID,
				Score:            ev.breakdown.Total,
				PassedCriteria:   ev.breakdown.Passed,
				FailedCriteria:   ev.breakdown.Failed,
				EnrichmentDone:   ev.enriched,
				VerificationDone: ev.verified,
			}
			a.EnterBucket(ev.bucket, now)
			assignment, err = tx.CreateAssignment(ctx, a)
			if err != nil {
				return err
			}
			if err := p.recordTrail(ctx, tx, rec, icp, lead, assignment, ev, now); err != nil {
				return err
			}
		}

		// Mutate a copy inside the transaction: if it rolls back, the
		// caller's record must stay retryable, not carry a lead id and
		// processed-ICP entry the database never saw.
		done := *rec
		done.ProcessedICPs = append([]string(nil), rec.ProcessedICPs...)
		done.Status = model.ProcessingDone
		done.LeadID = lead.ID
		done.FailureReason = ""
		done.MarkProcessedFor(icp.ID)
		return tx.UpdateRawRecord(ctx, &done)
	})
	if err != nil {
		return nil, nil, err
	}

	rec.Status = model.ProcessingDone
	rec.LeadID = lead.ID
	rec.FailureReason = ""
	rec.MarkProcessedFor(icp.ID)
	return lead, assignment, nil
}

// upsertLead creates the lead on first sight or folds new data into the
// existing one.
func (p *Pipeline) upsertLead(ctx context.Context, tx store.Store, rec *model.RawRecord, existing *model.Lead, ev evaluation, now time.Time) (*model.Lead, error) {
	if existing == nil {
		lead := &model.Lead{
			TenantID:   rec.TenantID,
			SourceName: rec.SourceName,
		}
		applyFields(lead, ev.fields)
		applyResults(lead, ev, now)
		return tx.CreateLead(ctx, lead)
	}

	applyFields(existing, ev.fields)
	applyResults(existing, ev, now)
	if err := tx.UpdateLead(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// recordTrail appends the stage transitions and, for rejected assignments,
// the rejection row.
func (p *Pipeline) recordTrail(ctx context.Context, tx store.Store, rec *model.RawRecord, icp *model.ICP, lead *model.Lead, a *model.Assignment, ev evaluation, now time.Time) error {
	prev := model.BucketRaw
	add := func(to model.Bucket, meta map[string]any) error {
		err := tx.InsertStageActivity(ctx, &model.StageActivity{
			TenantID:     rec.TenantID,
			LeadID:       lead.ID,
			AssignmentID: a.ID,
			FromStage:    prev,
			ToStage:      to,
			Actor:        model.ActorPipeline,
			Metadata:     meta,
			CreatedAt:    now,
		})
		prev = to
		return err
	}

	if err := add(model.BucketScored, map[string]any{"score": ev.initialScore}); err != nil {
		return err
	}
	if ev.enriched {
		if err := add(model.BucketEnriched, map[string]any{
			"providers": ev.enrichRes.ProvidersUsed,
			"cost_usd":  ev.enrichRes.TotalCostUSD,
		}); err != nil {
			return err
		}
	}
	if ev.verified {
		if err := add(model.BucketVerified, map[string]any{
			"status": string(ev.verifyRes.Status),
			"score":  ev.verifyRes.DeliverabilityScore,
		}); err != nil {
			return err
		}
	}
	if err := add(ev.bucket, map[string]any{"score": ev.breakdown.Total}); err != nil {
		return err
	}

	if ev.bucket == model.BucketRejected {
		_, err := tx.InsertRejection(ctx, &model.RejectionTracking{
			TenantID:     rec.TenantID,
			LeadID:       lead.ID,
			ICPID:        icp.ID,
			AssignmentID: a.ID,
			Stage:        model.BucketScored,
			Reason: fmt.Sprintf("score %.2f below auto-reject threshold %.2f",
				ev.breakdown.Total, icp.AutoRejectThreshold),
			Category:       CategoryLowScore,
			FailedCriteria: ev.breakdown.Failed,
			CanOverride:    true,
			RejectedAt:     now,
		})
		return err
	}
	return nil
}

// failRecord parks a record as failed; the write is best-effort since the
// caller is already on an error path.
func (p *Pipeline) failRecord(ctx context.Context, rec *model.RawRecord, reason string) {
	rec.Status = model.ProcessingFailed
	rec.FailureReason = reason
	if err := p.store.UpdateRawRecord(ctx, rec); err != nil {
		zap.L().Warn("pipeline: failed to mark record failed",
			zap.String("raw_record_id", rec.ID), zap.Error(err))
	}
}

// mergeLeadFields fills gaps in the record's fields from a known lead.
func mergeLeadFields(f *model.RawFields, lead *model.Lead) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&f.FirstName, lead.FirstName)
	fill(&f.LastName, lead.LastName)
	fill(&f.Phone, lead.Phone)
	fill(&f.JobTitle, lead.JobTitle)
	fill(&f.LinkedInURL, lead.LinkedInURL)
	fill(&f.CompanyName, lead.CompanyName)
	fill(&f.CompanyDomain, lead.CompanyDomain)
	fill(&f.CompanyWebsite, lead.CompanyWebsite)
	fill(&f.CompanyIndustry, lead.CompanyIndustry)
}

// applyEnrichment folds waterfall output into the canonical fields,
// still first-writer-wins: submitted data beats provider data.
func applyEnrichment(f *model.RawFields, ef enrich.Fields) {
	if f.CompanyIndustry == "" {
		if v, ok := ef[enrich.FieldIndustry].(string); ok {
			f.CompanyIndustry = v
		}
	}
	if f.CompanyWebsite == "" {
		if v, ok := ef[enrich.FieldWebsite].(string); ok {
			f.CompanyWebsite = normalize.URL(v)
		}
	}
}

// applyFields copies canonical fields onto the lead.
func applyFields(lead *model.Lead, f model.RawFields) {
	lead.Email = f.Email
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&lead.FirstName, f.FirstName)
	set(&lead.LastName, f.LastName)
	set(&lead.Phone, f.Phone)
	set(&lead.JobTitle, f.JobTitle)
	set(&lead.LinkedInURL, f.LinkedInURL)
	set(&lead.CompanyName, f.CompanyName)
	set(&lead.CompanyDomain, f.CompanyDomain)
	set(&lead.CompanyWebsite, f.CompanyWebsite)
	set(&lead.CompanyIndustry, f.CompanyIndustry)
}

// applyResults copies enrichment and verification outcomes onto the lead.
func applyResults(lead *model.Lead, ev evaluation, now time.Time) {
	lead.FitScore = ev.breakdown.Total

	if ev.enriched {
		lead.EnrichmentStatus = model.EnrichmentCompleted
		lead.EnrichmentProviders = ev.enrichRes.ProvidersUsed
		lead.EnrichmentCost += ev.enrichRes.TotalCostUSD
		lead.EnrichedAt = &now

		ef := ev.enrichRes.Fields
		if n, ok := ef[enrich.FieldEmployeeCount].(int); ok && n > 0 {
			lead.CompanyEmployees = n
		}
		if v, ok := ef[enrich.FieldCountry].(string); ok && v != "" {
			lead.CompanyCountry = v
		}
		if ts, ok := ef[enrich.FieldTechStack].([]string); ok && len(ts) > 0 {
			lead.TechStack = ts
		}
	} else if ev.skipReason != "" && lead.EnrichmentStatus != model.EnrichmentCompleted {
		lead.EnrichmentStatus = model.EnrichmentSkipped
		lead.EnrichmentSkipped = ev.skipReason
	}

	if ev.verified {
		lead.EmailVerified = ev.verifyRes.Verified
		lead.EmailStatus = string(ev.verifyRes.Status)
		lead.DeliverabilityScore = ev.verifyRes.DeliverabilityScore
		lead.IsDisposable = ev.verifyRes.IsDisposable
		lead.IsRoleBased = ev.verifyRes.IsRoleBased
	}
}

// employeeCount prefers fresh waterfall data, then the stored lead.
func employeeCount(ef enrich.Fields, existing *model.Lead) int {
	if ef != nil {
		if n, ok := ef[enrich.FieldEmployeeCount].(int); ok && n > 0 {
			return n
		}
	}
	if existing != nil {
		return existing.CompanyEmployees
	}
	return 0
}
