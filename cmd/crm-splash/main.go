package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/config"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/launcher"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/manifest"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/remote"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/server"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	logLevel   string
	logFormat  string
	noProgress bool

	// Sync command flags
	dryRun bool

	// Launch command flags
	noSync bool

	// Manifest command flags
	manifestOut string
	downloadURL string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crm-splash",
	Short: "Keep the CRM client up to date and launch it",
	Long: `crm-splash synchronizes the locally installed CRM client with the version
declared by the update server, downloading only files whose content hash
differs, then launches the client executable.

It can also publish an update channel (manifest plus files) for a directory,
acting as the server side of the same protocol.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one update pass without launching the client",
	Long: `Sync fetches the remote manifest, compares every declared file with the
local installation by content hash, downloads the files that are missing or
stale, and persists the manifest as the new last-known-good state.

A failed pass leaves the local manifest untouched; running sync again
recomputes the full diff. There is no automatic retry.`,
	RunE: runSync,
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Run an update pass, then start the client",
	Long: `Launch performs the same update pass as sync and, once it completes,
starts the configured client executable detached.

If the update server is unreachable the command reports the error and exits
without launching; re-running it is the retry action.`,
	RunE: runLaunch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish an update channel for a directory",
	Long: `Serve hashes every file under the configured root directory into a
manifest and serves it at /manifest.json, with the files themselves under
/files/. Launchers pointed at this address will converge on the directory's
current content.`,
	RunE: runServe,
}

var manifestCmd = &cobra.Command{
	Use:   "manifest <dir>",
	Short: "Generate a manifest for a directory",
	Long: `Manifest hashes every file under the given directory and writes the
resulting manifest JSON, for publishing through a static file host instead
of the built-in serve mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crm-splash %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./crm-splash.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable the progress line on stderr")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be downloaded without making changes")

	// Launch command flags
	launchCmd.Flags().BoolVar(&noSync, "no-sync", false, "launch the client without checking for updates")

	// Manifest command flags
	manifestCmd.Flags().StringVarP(&manifestOut, "output", "o", "-", "output file (- for stdout)")
	manifestCmd.Flags().StringVar(&downloadURL, "download-url", "", "download base URL to embed in the manifest")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateSync(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	_, err = runPass(ctx, cfg, logger, dryRun)
	return err
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if noSync {
		logger.Info("skipping update pass")
	} else {
		if err := cfg.ValidateSync(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if _, err := runPass(ctx, cfg, logger, false); err != nil {
			return err
		}
	}

	return launcher.New(cfg, logger).Launch()
}

// runPass runs one sync pass and folds its outcome into the command result.
// Recoverable failures are reported as errors too: for a CLI the retry
// action is simply running the command again.
func runPass(ctx context.Context, cfg *config.Config, logger *slog.Logger, dry bool) (*sync.Outcome, error) {
	client := remote.NewHTTPClient(cfg.HTTP.Timeout, logger)
	store := manifest.NewStore(cfg.Paths.ManifestFile)

	progress := newProgressLine(os.Stderr)
	var onProgress remote.ProgressFunc
	if !noProgress {
		onProgress = progress.update
	}

	engine := sync.NewEngine(cfg, client, store, logger, onProgress, dry)

	outcome, err := engine.Run(ctx)
	progress.finish()
	if err != nil {
		return nil, err
	}
	if outcome.State == sync.StateError {
		logger.Error("update check failed", "error", outcome.Err)
		return outcome, fmt.Errorf("update check failed: %w", outcome.Err)
	}

	return outcome, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	srv := server.New(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("serve failed", "error", err)
		return err
	}

	return nil
}

func runManifest(cmd *cobra.Command, args []string) error {
	m, err := manifest.Generate(args[0])
	if err != nil {
		return err
	}
	m.DownloadURL = downloadURL

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if manifestOut == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(manifestOut, data, 0644)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		configPath = "./crm-splash.yaml"
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"manifest_url", cfg.Server.ManifestURL,
		"install_dir", cfg.Paths.InstallDir,
		"manifest_file", cfg.Paths.ManifestFile)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
