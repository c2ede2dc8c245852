package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/direwatch/direwatch/internal/config"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without starting the daemon",
	Long: `Parse the configuration file, check every job's watch rules and report
problems. Exit status is non-zero when the configuration would not start.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Printf("❌ Configuration is invalid\n")
		return err
	}

	warnings, err := config.Validate(cfg)
	for _, w := range warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	if err != nil {
		fmt.Printf("❌ Configuration is invalid\n")
		return err
	}

	fmt.Printf("✅ Configuration is valid (%d job(s))\n", len(cfg.Jobs))
	return nil
}
