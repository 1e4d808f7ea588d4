package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/store"
)

// ReviewDecision is a human verdict on a pending_review assignment.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Review applies a reviewer's decision to an assignment sitting in
// pending_review. Approval moves it to qualified and fires the same
// notification an auto-qualified lead gets; rejection moves it to
// rejected with an overridable manual-review rejection row.
func (p *Pipeline) Review(ctx context.Context, assignmentID string, decision ReviewDecision, reviewerID, reason string) (*model.Assignment, error) {
	if reviewerID == "" {
		return nil, eris.New("pipeline: reviewer id is required")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, eris.Errorf("pipeline: unknown review decision %q", decision)
	}

	var assignment *model.Assignment
	var lead *model.Lead
	now := time.Now().UTC()

	err := p.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		assignment, err = tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return eris.Errorf("pipeline: assignment %s not found", assignmentID)
		}
		if assignment.Bucket != model.BucketPendingReview {
			return eris.Errorf("pipeline: assignment %s is in %s, only pending_review can be reviewed",
				assignmentID, assignment.Bucket)
		}

		from := assignment.Bucket
		to := model.BucketQualified
		if decision == DecisionReject {
			to = model.BucketRejected
		}
		assignment.EnterBucket(to, now)
		if decision == DecisionReject && reason != "" {
			assignment.RejectionReason = reason
		}
		if err := tx.UpdateAssignment(ctx, assignment); err != nil {
			return err
		}

		if err := tx.InsertStageActivity(ctx, &model.StageActivity{
			TenantID:     assignment.TenantID,
			LeadID:       assignment.LeadID,
			AssignmentID: assignment.ID,
			FromStage:    from,
			ToStage:      to,
			Actor:        reviewerID,
			Metadata:     map[string]any{"reason": reason},
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		if decision == DecisionReject {
			_, err := tx.InsertRejection(ctx, &model.RejectionTracking{
				TenantID:     assignment.TenantID,
				LeadID:       assignment.LeadID,
				ICPID:        assignment.ICPID,
				AssignmentID: assignment.ID,
				Stage:        model.BucketPendingReview,
				Reason:       reason,
				Category:     CategoryManual,
				CanOverride:  true,
				RejectedAt:   now,
			})
			return err
		}

		lead, err = tx.GetLead(ctx, assignment.LeadID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if decision == DecisionApprove && lead != nil {
		p.notifier.LeadQualified(ctx, lead, assignment)
	}
	zap.L().Info("pipeline: assignment reviewed",
		zap.String("assignment_id", assignment.ID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewerID),
	)
	return assignment, nil
}

// Override reopens a rejected assignment for another look. The latest
// rejection row must allow it; the assignment returns to pending_review.
func (p *Pipeline) Override(ctx context.Context, assignmentID, reviewerID string) (*model.Assignment, error) {
	if reviewerID == "" {
		return nil, eris.New("pipeline: reviewer id is required")
	}

	var assignment *model.Assignment
	now := time.Now().UTC()

	err := p.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		assignment, err = tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return eris.Errorf("pipeline: assignment %s not found", assignmentID)
		}
		if assignment.Bucket != model.BucketRejected {
			return eris.Errorf("pipeline: assignment %s is in %s, only rejected can be overridden",
				assignmentID, assignment.Bucket)
		}

		rejection, err := tx.GetRejectionByAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if rejection == nil {
			return eris.Errorf("pipeline: assignment %s has no rejection record", assignmentID)
		}
		if err := tx.OverrideRejection(ctx, rejection.ID, reviewerID); err != nil {
			return err
		}

		from := assignment.Bucket
		assignment.EnterBucket(model.BucketPendingReview, now)
		assignment.RejectionReason = ""
		if err := tx.UpdateAssignment(ctx, assignment); err != nil {
			return err
		}

		return tx.InsertStageActivity(ctx, &model.StageActivity{
			TenantID:     assignment.TenantID,
			LeadID:       assignment.LeadID,
			AssignmentID: assignment.ID,
			FromStage:    from,
			ToStage:      model.BucketPendingReview,
			Actor:        reviewerID,
			Metadata:     map[string]any{"rejection_id": rejection.ID},
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: rejection overridden",
		zap.String("assignment_id", assignment.ID),
		zap.String("reviewer", reviewerID),
	)
	return assignment, nil
}

// MarkExported records that a qualified assignment left the system for
// the CRM. Export is terminal; only qualified assignments move.
func (p *Pipeline) MarkExported(ctx context.Context, assignmentID, actor string) (*model.Assignment, error) {
	if actor == "" {
		actor = model.ActorPipeline
	}

	var assignment *model.Assignment
	now := time.Now().UTC()

	err := p.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		assignment, err = tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return eris.Errorf("pipeline: assignment %s not found", assignmentID)
		}
		if assignment.Bucket != model.BucketQualified {
			return eris.Errorf("pipeline: assignment %s is in %s, only qualified can be exported",
				assignmentID, assignment.Bucket)
		}

		from := assignment.Bucket
		assignment.EnterBucket(model.BucketExported, now)
		if err := tx.UpdateAssignment(ctx, assignment); err != nil {
			return err
		}

		return tx.InsertStageActivity(ctx, &model.StageActivity{
			TenantID:     assignment.TenantID,
			LeadID:       assignment.LeadID,
			AssignmentID: assignment.ID,
			FromStage:    from,
			ToStage:      model.BucketExported,
			Actor:        actor,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}
