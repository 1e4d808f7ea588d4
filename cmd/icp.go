package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadpipe/internal/model"
)

var (
	icpFile   string
	icpTenant string
)

var icpCmd = &cobra.Command{
	Use:   "icp",
	Short: "Manage Ideal Customer Profiles",
}

// icpSpec is the YAML shape for `icp create`.
type icpSpec struct {
	TenantID             string              `yaml:"tenant_id"`
	Name                 string              `yaml:"name"`
	Weights              model.Weights       `yaml:"weights"`
	AutoRejectThreshold  float64             `yaml:"auto_reject_threshold"`
	ReviewThreshold      float64             `yaml:"review_threshold"`
	AutoApproveThreshold float64             `yaml:"auto_approve_threshold"`
	TargetEmployees      model.EmployeeRange `yaml:"target_employees"`
	EnrichmentEnabled    bool                `yaml:"enrichment_enabled"`
	VerificationEnabled  bool                `yaml:"verification_enabled"`
	EnrichmentCostEst    float64             `yaml:"enrichment_cost_estimate"`
	VerificationCostEst  float64             `yaml:"verification_cost_estimate"`
	PreferredProviders   []string            `yaml:"preferred_providers"`
}

var icpCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an ICP from a YAML definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		if icpFile == "" {
			return eris.New("--file is required")
		}

		data, err := os.ReadFile(icpFile)
		if err != nil {
			return eris.Wrap(err, "read icp file")
		}
		var spec icpSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return eris.Wrap(err, "parse icp file")
		}

		env, err := initPipeline(cmd.Context(), "process")
		if err != nil {
			return err
		}
		defer env.Close()

		icp, err := env.Store.CreateICP(cmd.Context(), &model.ICP{
			TenantID:             spec.TenantID,
			Name:                 spec.Name,
			Weights:              spec.Weights,
			AutoRejectThreshold:  spec.AutoRejectThreshold,
			ReviewThreshold:      spec.ReviewThreshold,
			AutoApproveThreshold: spec.AutoApproveThreshold,
			TargetEmployees:      spec.TargetEmployees,
			EnrichmentEnabled:    spec.EnrichmentEnabled,
			VerificationEnabled:  spec.VerificationEnabled,
			EnrichmentCostEst:    spec.EnrichmentCostEst,
			VerificationCostEst:  spec.VerificationCostEst,
			PreferredProviders:   spec.PreferredProviders,
			Active:               true,
		})
		if err != nil {
			return eris.Wrap(err, "create icp")
		}

		zap.L().Info("icp created",
			zap.String("id", icp.ID),
			zap.String("tenant_id", icp.TenantID),
			zap.String("name", icp.Name),
		)
		fmt.Println(icp.ID)
		return nil
	},
}

var icpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active ICPs for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if icpTenant == "" {
			return eris.New("--tenant is required")
		}

		env, err := initPipeline(cmd.Context(), "process")
		if err != nil {
			return err
		}
		defer env.Close()

		icps, err := env.Store.ListActiveICPs(cmd.Context(), icpTenant)
		if err != nil {
			return eris.Wrap(err, "list icps")
		}

		for _, icp := range icps {
			fmt.Printf("%s\t%s\tthresholds=(%.0f,%.0f,%.0f)\n",
				icp.ID, icp.Name,
				icp.AutoRejectThreshold, icp.ReviewThreshold, icp.AutoApproveThreshold)
		}
		return nil
	},
}

func init() {
	icpCreateCmd.Flags().StringVar(&icpFile, "file", "", "path to ICP YAML definition (required)")
	icpListCmd.Flags().StringVar(&icpTenant, "tenant", "", "tenant id (required)")
	icpCmd.AddCommand(icpCreateCmd, icpListCmd)
	rootCmd.AddCommand(icpCmd)
}
