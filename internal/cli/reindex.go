package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Embed every message that is missing a vector or was embedded under an older version",
	RunE:  runReindex,
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	total, err := a.worker.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill stopped after %d message(s): %w", total, err)
	}
	if !globalFlags.Quiet {
		fmt.Printf("indexed %d message(s) at embedding version %d\n", total, a.cfg.Runtime.EmbedVersion)
	}
	return nil
}
