package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/direwatch/direwatch/internal/config"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the configured watch jobs",
	RunE:  runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	fmt.Printf("📋 Configured jobs (%d)\n", len(cfg.Jobs))
	fmt.Printf("═══════════════════════════════════════\n\n")

	for _, job := range cfg.Jobs {
		fmt.Printf("👀 %s\n", job.Name)
		fmt.Printf("   path:      %s\n", job.RootPath)
		fmt.Printf("   events:    %s\n", job.EventMask)
		fmt.Printf("   command:   %s\n", job.CommandTemplate)
		fmt.Printf("   recursive: %v  autoadd: %v  background: %v\n", job.Recursive, job.Autoadd, job.Background)
		if len(job.ExcludedPaths) > 0 {
			fmt.Printf("   excluded:  %s\n", strings.Join(job.ExcludedPaths, ", "))
		}
		if len(job.IncludeExtensions) > 0 {
			fmt.Printf("   include:   %s\n", strings.Join(job.IncludeExtensions, ", "))
		}
		if len(job.ExcludeExtensions) > 0 {
			fmt.Printf("   exclude:   %s\n", strings.Join(job.ExcludeExtensions, ", "))
		}
		if job.ExcludeNamePattern != nil {
			fmt.Printf("   exclude_re: %s\n", job.ExcludeNamePattern.String())
		}
		if job.OnSuccessTemplate != "" {
			fmt.Printf("   on_success: %s\n", job.OnSuccessTemplate)
		}
		if job.OnFailureTemplate != "" {
			fmt.Printf("   on_failure: %s\n", job.OnFailureTemplate)
		}
		if job.LogOutput {
			target := "daemon log"
			if job.OutFile != "" {
				target = job.OutFile
			}
			fmt.Printf("   output:    %s\n", target)
		}
		fmt.Printf("\n")
	}

	return nil
}
