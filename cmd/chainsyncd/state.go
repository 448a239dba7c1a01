package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devblac/chainsyncd/internal/config"
	"github.com/devblac/chainsyncd/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show per-network cursor heights from storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		networks, err := store.Networks(ctx)
		if err != nil {
			return err
		}
		if len(networks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no blocks stored yet")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NETWORK\tLAST HEIGHT\tBLOCKS")
		for _, n := range networks {
			h, err := store.MaxHeight(ctx, n)
			if err != nil {
				return err
			}
			count, err := store.BlockCount(ctx, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\n", n, h, count)
		}
		return w.Flush()
	},
}
