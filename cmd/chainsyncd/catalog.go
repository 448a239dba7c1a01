package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devblac/chainsyncd/internal/catalog"
	"github.com/devblac/chainsyncd/internal/config"
)

var flagAll bool

func init() {
	catalogCmd.Flags().BoolVar(&flagAll, "all", false, "Show every catalog entry, not just scheduled ones")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the network catalog and what would be scheduled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cat, err := catalog.Load(cfg.Global.NetworksFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		configured := map[string]string{}
		for name, eco := range cfg.Ecosystems {
			if !eco.SyncEnabled {
				continue
			}
			for _, key := range eco.Networks {
				configured[key] = name
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tRUNTIME\tPRIORITY\tENABLED\tENDPOINT\tECOSYSTEM")
		for _, d := range cat.List() {
			eco, inConfig := configured[d.Key]
			if !flagAll && !inConfig {
				continue
			}
			endpoint := d.ResolveEndpoint()
			if endpoint == "" {
				endpoint = "(unresolved: set " + d.EnvKey() + ")"
			}
			if !inConfig {
				eco = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n", d.Key, d.Runtime, d.Priority, d.Enabled, endpoint, eco)
		}
		return w.Flush()
	},
}
