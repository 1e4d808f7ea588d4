package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadpipe/internal/model"
)

// Runner processes batches of raw records against a set of ICPs with
// bounded concurrency. Records run in parallel; the ICPs for one record
// run sequentially so its lead row is built up in order.
type Runner struct {
	pipeline    *Pipeline
	concurrency int
}

// NewRunner creates a Runner. Concurrency below 1 falls back to 1.
func NewRunner(p *Pipeline, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{pipeline: p, concurrency: concurrency}
}

// Run evaluates every record against every ICP and returns the aggregate
// summary. Record-level failures are counted, never fatal; the only error
// returned is context cancellation.
func (r *Runner) Run(ctx context.Context, tenantID string, recs []model.RawRecord, icps []model.ICP) (*model.BatchSummary, error) {
	start := time.Now()
	summary := &model.BatchSummary{Total: len(recs)}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range recs {
		rec := &recs[i]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for j := range icps {
				outcome, err := r.pipeline.Process(gCtx, rec, &icps[j])
				mu.Lock()
				tally(summary, outcome)
				mu.Unlock()
				if err != nil {
					zap.L().Error("batch: record failed",
						zap.String("raw_record_id", rec.ID),
						zap.String("icp_id", icps[j].ID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.TotalCostUSD = r.pipeline.Ledger().Total()
	r.pipeline.notifier.BatchCompleted(ctx, tenantID, summary)

	zap.L().Info("batch: completed",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("qualified", summary.Qualified),
		zap.Int("pending_review", summary.PendingReview),
		zap.Int("rejected", summary.Rejected),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
		zap.Float64("cost_usd", summary.TotalCostUSD),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

func tally(s *model.BatchSummary, o *model.Outcome) {
	switch {
	case o.Error != "":
		s.Failed++
	case o.Skipped:
		s.Skipped++
	default:
		s.Processed++
		if o.Duplicate {
			s.Duplicates++
		}
		switch o.Bucket {
		case model.BucketQualified:
			s.Qualified++
		case model.BucketPendingReview:
			s.PendingReview++
		case model.BucketRejected:
			s.Rejected++
		}
	}
}
