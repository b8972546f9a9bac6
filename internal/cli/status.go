package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"msgmcp/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, index, and runtime status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("store stats: %w", err)
	}

	runtimeState := "not available"
	if a.client.CheckAvailability(ctx) == model.Available {
		runtimeState = "available"
	}

	fmt.Printf("store:             %s\n", a.cfg.Store.Path)
	fmt.Printf("threads:           %d\n", stats.Threads)
	fmt.Printf("messages:          %d\n", stats.Messages)
	fmt.Printf("embedded:          %d\n", stats.Embedded)
	fmt.Printf("pending:           %d\n", stats.Pending)
	fmt.Printf("embedding version: %d\n", a.cfg.Runtime.EmbedVersion)
	fmt.Printf("runtime:           %s (%s)\n", runtimeState, a.cfg.Runtime.BaseURL)
	return nil
}
