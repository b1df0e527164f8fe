package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/streamvest/pluginhost/internal/config"
	"github.com/streamvest/pluginhost/internal/logger"
	"github.com/streamvest/pluginhost/pkg/catalog"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one catalog discovery pass and print the result",
	Long: `Scan the configured plugin sources once, update the catalog
snapshot and print a JSON summary of discovered, new and failed entries.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(logger.Config{Level: level, Console: false})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	zl := log.Get()

	registry := catalog.NewRegistry()
	snapshot := catalog.NewStore(cfg.Catalog.SnapshotPath)
	if entries, err := snapshot.Load(); err == nil {
		registry.Load(entries)
	}

	var sources []catalog.Source
	if cfg.Catalog.Dir != "" {
		sources = append(sources, catalog.NewDirSource(cfg.Catalog.Dir, zl))
	}
	if cfg.Catalog.RepoURL != "" {
		sources = append(sources, catalog.NewRepoSource(cfg.Catalog.RepoURL, zl))
	}

	scanner := catalog.NewScanner(sources, catalog.NewManifestLoader(zl), registry, zl)
	result, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := snapshot.Save(registry.List()); err != nil {
		return fmt.Errorf("failed to persist catalog snapshot: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return nil
}
