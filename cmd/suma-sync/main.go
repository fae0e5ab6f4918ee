package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/suma-sync/internal/audit"
	"github.com/breeze-rmm/suma-sync/internal/config"
	"github.com/breeze-rmm/suma-sync/internal/logging"
)

var (
	version  = "0.1.0"
	cfgFile  string
	rootDir  string
	logLevel string
)

var log = logging.L("main")

// appState holds what every command shares once the config is loaded.
type appState struct {
	cfg       *config.Config
	journal   *audit.Logger
	logCloser io.Closer
}

var rt appState

var rootCmd = &cobra.Command{
	Use:               "suma-sync",
	Short:             "Mirror AIX technical levels and service packs with SUMA",
	Long:              `suma-sync drives the AIX Service Update Management Assistant to discover, preview, download and publish lpp-sources.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("suma-sync v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/suma-sync/suma.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "root directory for metadata and lpp_sources")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(metadataCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(spPerTLCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(journalCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads and validates the config, then starts logging and the
// operation journal.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if rootDir != "" {
		cfg.RootDir = rootDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "config warning: %v\n", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			fmt.Fprintf(os.Stderr, "config error: %v\n", f)
		}
		return fmt.Errorf("invalid configuration")
	}

	output, closer, err := logging.Output(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)

	var journal *audit.Logger
	if cfg.AuditFile != "" {
		journal, err = audit.NewLogger(cfg.AuditFile, cfg.AuditMaxSizeMB, cfg.AuditMaxBackups)
		if err != nil {
			closer.Close()
			return fmt.Errorf("failed to open operation journal: %w", err)
		}
	}

	rt = appState{cfg: cfg, journal: journal, logCloser: closer}
	logger := log.With("command", cmd.Name())
	cmd.SetContext(logging.NewContext(cmd.Context(), logger))
	logger.Debug("configuration loaded", "root", cfg.RootDir, "suma", cfg.SumaPath)
	return nil
}

// teardown runs after every command, failed ones included.
func teardown() {
	if dropped := rt.journal.DroppedCount(); dropped > 0 {
		log.Warn("operation journal dropped entries", "count", dropped)
	}
	if err := rt.journal.Close(); err != nil {
		log.Warn("failed to close operation journal", logging.KeyError, err)
	}
	if rt.logCloser != nil {
		rt.logCloser.Close()
	}
}
