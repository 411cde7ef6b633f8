package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terrorizer1980/jetstream/internal/config"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/metric"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an experiment analysis config without running",
	Long: `Validate checks a config file against the embedded JSON Schema and the
semantic rules (branch uniqueness, control designation, metric types and
aggregations) and reports all problems at once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(validateConfigPath)
		if err != nil {
			return err
		}

		if _, err := experiment.FromConfig(&cfg.Experiment); err != nil {
			return err
		}
		if _, err := metric.RegistryFromConfig(cfg.Metrics); err != nil {
			return err
		}

		fmt.Printf("%s: configuration is valid (%d branches, %d metrics)\n",
			cfg.Experiment.ID, len(cfg.Experiment.Branches), len(cfg.Metrics))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Path to the experiment analysis config (YAML or JSON)")
	validateCmd.MarkFlagRequired("config")
}
