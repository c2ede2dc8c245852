package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/direwatch/direwatch/internal/database"
	"github.com/direwatch/direwatch/internal/database/repositories"
	"github.com/direwatch/direwatch/pkg/models"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent command executions",
	Long:  `Query the run history database written by a running direwatch daemon.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("job", "", "Only show runs of this job")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().String("db", "", "Path to the run history database")
	historyCmd.Flags().Bool("output", false, "Include captured command output")
}

func runHistory(cmd *cobra.Command, args []string) error {
	jobName, _ := cmd.Flags().GetString("job")
	limit, _ := cmd.Flags().GetInt("limit")
	dbPath, _ := cmd.Flags().GetString("db")
	showOutput, _ := cmd.Flags().GetBool("output")

	opts := database.DefaultOptions()
	if dbPath != "" {
		opts.Path = dbPath
	}
	opts.ReadOnly = true

	db := database.NewManager(opts)
	if err := db.Open(); err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	repo := repositories.NewRunRepository(db)

	var runs []*models.Run
	var err error
	if jobName != "" {
		runs, err = repo.ListByJob(jobName, limit)
	} else {
		runs, err = repo.ListRecent(limit)
	}
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Printf("No recorded runs\n")
		return nil
	}

	fmt.Printf("📜 Run history (%d)\n", len(runs))
	fmt.Printf("═══════════════════════════════════════\n\n")

	for _, run := range runs {
		status := "❌"
		if run.Succeeded() {
			status = "✅"
		}
		fmt.Printf("%s [%s] %s  exit=%d  %s\n",
			status,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Job,
			run.ExitCode,
			run.Command,
		)
		if run.Followup != "" {
			fmt.Printf("   ↪ follow-up: %s\n", run.Followup)
		}
		if run.Error != "" {
			fmt.Printf("   error: %s\n", run.Error)
		}
		if showOutput && run.Output != "" {
			fmt.Printf("   output: %s\n", run.Output)
		}
	}

	return nil
}
