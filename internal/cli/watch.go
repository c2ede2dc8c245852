package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/direwatch/direwatch/internal/config"
	"github.com/direwatch/direwatch/internal/core/interfaces"
	"github.com/direwatch/direwatch/internal/database"
	"github.com/direwatch/direwatch/internal/database/repositories"
	"github.com/direwatch/direwatch/internal/engine"
	"github.com/direwatch/direwatch/internal/executor"
	"github.com/direwatch/direwatch/internal/watchers/source"
	dwlogger "github.com/direwatch/direwatch/pkg/logger"
)

// watchCmd represents the watch command (the main daemon loop)
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start watching and dispatching commands",
	Long: `Load the configured jobs, register their watch trees and dispatch
commands on matching filesystem events until interrupted.

Daemonization (PID file, working directory, umask, uid/gid) is handled by the
service manager or wrapper that launches this process; the daemon settings in
the configuration are passed through to it.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("db", "", "Path to the run history database (default: $HOME/.direwatch/direwatch.db)")
	watchCmd.Flags().Bool("no-history", false, "Disable the run history store")
	watchCmd.Flags().String("log-level", "", "Log level override (debug, info, warn, error)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	logLevel, _ := cmd.Flags().GetString("log-level")

	// Parse the configuration before touching anything else
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// Initialize the daemon logger; the configured logfile wins over the
	// default location
	logConfig := dwlogger.DefaultConfig()
	if cfg.Daemon.LogFile != "" {
		logConfig.OutputPath = cfg.Daemon.LogFile
	}
	if verboseMode {
		logConfig.Development = true
		logConfig.Level = "debug"
	}
	if logLevel != "" {
		logConfig.Level = logLevel
	}
	if err := dwlogger.Initialize(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer dwlogger.Sync()
	zapLogger := dwlogger.Get()

	// Pre-run validation; warnings are advisory, errors are fatal
	warnings, err := config.Validate(cfg)
	for _, w := range warnings {
		zapLogger.Warn("Configuration warning", zap.String("detail", w))
		fmt.Printf("⚠️  %s\n", w)
	}
	if err != nil {
		return err
	}

	// Run history store
	var recorder interfaces.RunRecorder
	var db *database.Manager
	if !noHistory {
		opts := database.DefaultOptions()
		if dbPath != "" {
			opts.Path = dbPath
		}
		db = database.NewManager(opts)
		if err := db.Open(); err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		recorder = repositories.NewRunRepository(db)
	}

	// Event source
	src, err := source.NewDireWatchSource()
	if err != nil {
		return err
	}

	eng := engine.NewDireWatchEngine(src, executor.New(recorder), cfg.Jobs)

	fmt.Printf("🐺 Starting direwatch\n")
	for _, job := range cfg.Jobs {
		mode := "sync"
		if job.Background {
			mode = "background"
		}
		fmt.Printf("👀 %s: %s (events=%s, %s)\n", job.Name, job.RootPath, job.EventMask, mode)
	}
	fmt.Printf("\n")

	if err := eng.Start(); err != nil {
		return err
	}

	fmt.Printf("[%s] 💓 direwatch is watching... Press Ctrl+C to stop\n", time.Now().Format("15:04:05"))

	// Wait for an external shutdown signal; the engine then stops pulling
	// events and waits for in-flight commands without any timeout
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\n[%s] 🛑 Stopping direwatch, waiting for running commands...\n", time.Now().Format("15:04:05"))
	return eng.Stop()
}
