package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/streamvest/pluginhost/internal/config"
	"github.com/streamvest/pluginhost/pkg/catalog"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugins in the catalog snapshot",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	entries, err := catalog.NewStore(cfg.Catalog.SnapshotPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load catalog snapshot: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ProviderID < entries[j].ProviderID
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tVERSION\tNAME\tID")
	for _, e := range entries {
		id := e.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ProviderID, e.Version, e.Name, id)
	}
	return w.Flush()
}
