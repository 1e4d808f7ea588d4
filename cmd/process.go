package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/pipeline"
)

var (
	processTenant string
	processICP    string
	processLimit  int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process pending raw records against active ICPs",
	Long: `Pulls pending raw records for a tenant and evaluates each against every
active ICP: normalize, dedupe, enrich, verify, score, and route into a
bucket. Records already evaluated for an ICP are skipped, so the command
is safe to re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if processTenant == "" {
			return eris.New("--tenant is required")
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Store.ListPendingRawRecords(ctx, processTenant, processLimit)
		if err != nil {
			return eris.Wrap(err, "list pending records")
		}
		if len(recs) == 0 {
			zap.L().Info("no pending records", zap.String("tenant_id", processTenant))
			return nil
		}

		icps, err := env.Store.ListActiveICPs(ctx, processTenant)
		if err != nil {
			return eris.Wrap(err, "list active icps")
		}
		if processICP != "" {
			icp, err := env.Store.GetICP(ctx, processICP)
			if err != nil {
				return eris.Wrap(err, "get icp")
			}
			if icp == nil {
				return eris.Errorf("icp %s not found", processICP)
			}
			icps = append(icps[:0], *icp)
		}
		if len(icps) == 0 {
			zap.L().Info("no active icps", zap.String("tenant_id", processTenant))
			return nil
		}

		zap.L().Info("processing batch",
			zap.String("tenant_id", processTenant),
			zap.Int("records", len(recs)),
			zap.Int("icps", len(icps)),
		)

		runner := pipeline.NewRunner(env.Pipeline, cfg.Batch.MaxConcurrentRecords)
		summary, err := runner.Run(ctx, processTenant, recs, icps)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		zap.L().Info("batch summary",
			zap.Int("total", summary.Total),
			zap.Int("processed", summary.Processed),
			zap.Int("qualified", summary.Qualified),
			zap.Int("pending_review", summary.PendingReview),
			zap.Int("rejected", summary.Rejected),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
			zap.Float64("total_cost_usd", summary.TotalCostUSD),
		)
		return nil
	},
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processTenant, "tenant", "", "tenant id to process (required)")
	f.StringVar(&processICP, "icp", "", "restrict to a single ICP id")
	f.IntVar(&processLimit, "limit", 500, "max pending records to pull")
	rootCmd.AddCommand(processCmd)
}
