package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/streamvest/pluginhost/internal/config"
	"github.com/streamvest/pluginhost/internal/daemon"
	"github.com/streamvest/pluginhost/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plugin host daemon",
	Long: `Run the plugin host in the foreground: scan the plugin catalog,
serve the host RPC gateway and manage the sandbox pool until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cfg.Log.Console,
		Pretty:  cfg.Log.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	d.Wait()
	return nil
}
