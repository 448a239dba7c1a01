package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/chainsyncd/internal/config"
	"github.com/devblac/chainsyncd/internal/storage"
)

var (
	flagCleanupDays    int
	flagCleanupNetwork string
)

func init() {
	cleanupCmd.Flags().IntVar(&flagCleanupDays, "days", 0, "Delete rows older than this many days (required)")
	cleanupCmd.Flags().StringVar(&flagCleanupNetwork, "network", "", "Restrict cleanup to one network (default: all)")
	_ = cleanupCmd.MarkFlagRequired("days")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stored blocks past a retention window",
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

		n, err := store.DeleteOlderThan(cmd.Context(), flagCleanupNetwork, flagCleanupDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d row(s)\n", n)
		return nil
	},
}
