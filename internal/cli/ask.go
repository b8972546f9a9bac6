package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question about your messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// a one-shot question still benefits from an indexed store; drain the
	// backlog first so the fallback search path sees every message.
	if _, err := a.worker.Backfill(ctx); err != nil {
		a.logger.Printf("index backfill incomplete: %v", err)
	}

	if err := a.orch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.orch.Close(ctx) }()

	reply, err := a.orch.HandleTurn(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(reply.Text)
	return nil
}
