package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/export"
)

var (
	exportTenant string
	exportICP    string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push qualified leads to Salesforce",
	Long: `Exports every assignment in the qualified bucket as a Salesforce Lead
and moves it to exported. Leads whose email already exists in Salesforce
are not re-created but still leave the queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if exportTenant == "" {
			return eris.New("--tenant is required")
		}

		env, err := initPipeline(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		summary, err := export.New(env.Store, sf, env.Pipeline).Run(ctx, exportTenant, exportICP, exportLimit)
		if err != nil {
			return eris.Wrap(err, "export run")
		}

		zap.L().Info("export summary",
			zap.Int("total", summary.Total),
			zap.Int("exported", summary.Exported),
			zap.Int("already_in_crm", summary.AlreadyInCRM),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportTenant, "tenant", "", "tenant id to export (required)")
	f.StringVar(&exportICP, "icp", "", "restrict to a single ICP id")
	f.IntVar(&exportLimit, "limit", 0, "max assignments to export (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
