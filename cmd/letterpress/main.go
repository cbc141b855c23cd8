package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/letterpress/internal/api"
	"github.com/foxzi/letterpress/internal/app"
	"github.com/foxzi/letterpress/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "letterpress",
	Short: "Letterpress - newsletter dispatch and tracking",
	Long: `Letterpress sends newsletters to subscribers in throttled batches
and records opens and clicks through tracking pixels and redirect links.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API, tracking and scheduler server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("letterpress version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openCore loads the config and opens storage and the send pipeline for
// one-shot commands. Logs go to stderr so command output stays clean.
func openCore(ctx context.Context) (*app.Core, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	core, err := app.NewCore(ctx, cfg, app.NewLogger(cfg.Logging, os.Stderr))
	if err != nil {
		return nil, nil, err
	}
	return core, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	api.Version = version

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Base URL:  %s\n", cfg.Server.BaseURL)
	fmt.Printf("  Tracking:  %s\n", cfg.Tracking.BaseURL)
	fmt.Printf("  API:       %s (auth: %t)\n", cfg.API.ListenAddr, cfg.API.AuthEnabled())
	fmt.Printf("  Storage:   %s\n", describeStorage(cfg.Storage))
	fmt.Printf("  Transport: %s (from %s)\n", cfg.Transport.Type, cfg.Transport.From)
	fmt.Printf("  Batches:   %d every %s\n", cfg.Dispatch.BatchSize, cfg.Dispatch.Delay())
	if cfg.Scheduler.Enabled {
		fmt.Printf("  Scheduler: %s\n", cfg.Scheduler.Spec)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:   %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}

func describeStorage(cfg config.StorageConfig) string {
	if cfg.Type == config.StorageRedis {
		return fmt.Sprintf("redis %s db %d", cfg.Redis.Addr, cfg.Redis.DB)
	}
	return "bolt " + cfg.Path
}
