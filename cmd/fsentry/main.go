package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fsentry/internal/config"
	"fsentry/internal/logging"
	"fsentry/internal/monitor"
	"fsentry/internal/notify"
	"fsentry/internal/snapshot"
	"fsentry/internal/state"
	"fsentry/internal/status"
)

var logger = logging.GetLogger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		root        string
		interval    time.Duration
		excludeExt  []string
		excludeDir  []string
		statePath   string
		backupPath  string
		httpAddr    string
		envFile     string
		logFile     string
		emailPolicy string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "fsentry",
		Short: "Polling file-integrity monitor",
		Long: "fsentry watches a directory tree and reports every file that was " +
			"added, modified, or removed since the last check, using persisted " +
			"SHA-256 content digests.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			// Flags take precedence over environment
			flags := cmd.Flags()
			if flags.Changed("root") {
				cfg.Root = root
			}
			if flags.Changed("interval") {
				cfg.Interval = interval
			}
			if flags.Changed("exclude-ext") {
				cfg.ExcludeExtensions = excludeExt
			}
			if flags.Changed("exclude-dir") {
				cfg.ExcludeDirectories = excludeDir
			}
			if flags.Changed("state") {
				cfg.StatePath = statePath
			}
			if flags.Changed("backup") {
				cfg.BackupPath = backupPath
			}
			if flags.Changed("http") {
				cfg.HTTPAddr = httpAddr
			}
			if flags.Changed("log-file") {
				cfg.LogFile = logFile
			}
			if flags.Changed("email-policy") {
				cfg.Email.Policy = notify.EmailPolicy(emailPolicy)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if verbose {
				logger.SetLevel(logging.LevelDebug)
			} else {
				logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory tree to monitor (required unless FSENTRY_ROOT is set)")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Time between scans")
	cmd.Flags().StringSliceVar(&excludeExt, "exclude-ext", nil, "File extensions to skip (e.g. .tmp,.log)")
	cmd.Flags().StringSliceVar(&excludeDir, "exclude-dir", nil, "Directory names to skip at any depth (e.g. .git)")
	cmd.Flags().StringVar(&statePath, "state", "hashes.json", "Primary state file path")
	cmd.Flags().StringVar(&backupPath, "backup", "hashes_backup.json", "Backup state file path")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Listen address for the status endpoint (disabled when empty)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file with credentials")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	cmd.Flags().StringVar(&emailPolicy, "email-policy", string(notify.PolicyBatch), "Email alert policy: batch or per-event")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	return cmd
}

func run(cfg *config.Config) error {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
		}
		defer f.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	logger.Info("Starting fsentry...")
	logger.Debug("Root: %s", cfg.Root)
	logger.Debug("Interval: %s", cfg.Interval)
	logger.Debug("State file: %s", cfg.StatePath)

	store, err := state.NewManager(cfg.StatePath, cfg.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to initialize state manager: %w", err)
	}

	rules := snapshot.NewExclusionRules(cfg.ExcludeExtensions, cfg.ExcludeDirectories)
	builder := snapshot.NewBuilder(filepath.Clean(cfg.Root), rules)

	notifiers := notify.Multi{notify.NewConsole(os.Stdout)}
	if cfg.Email.Sender != "" {
		logger.Info("Email alerts enabled for %s", cfg.Email.Receiver)
		notifiers = append(notifiers, notify.NewEmail(cfg.Email))
	}

	var recorder *status.Recorder
	var sink monitor.StatusSink
	if cfg.HTTPAddr != "" {
		recorder = &status.Recorder{}
		sink = recorder
	}

	mon := monitor.New(builder, store, notifiers, cfg.Interval, sink)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if recorder != nil {
		srv := status.NewServer(cfg.HTTPAddr, recorder)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Status server shutdown: %v", err)
			}
		}()
	}

	logger.Info("Monitoring %s every %s (Ctrl+C to stop)", cfg.Root, cfg.Interval)
	if err := mon.Run(ctx); err != nil {
		return err
	}

	logger.Info("Clean shutdown complete")
	return nil
}
