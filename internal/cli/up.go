package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"msgmcp/internal/mcp"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Serve MCP tools on stdio and keep the embedding index fresh",
	RunE:  runUp,
}

var upNoIndex bool

func init() {
	upCmd.Flags().BoolVar(&upNoIndex, "no-index", false, "serve tools without the background embedding worker")
}

func runUp(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !upNoIndex {
		go func() {
			interval := time.Duration(a.cfg.Index.IntervalSeconds) * time.Second
			if err := a.worker.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Printf("embedding worker stopped: %v", err)
			}
		}()
	}

	endpoint := mcp.NewStdioEndpoint(a.dispatcher, os.Stdin, os.Stdout)
	endpoint.Logger = a.logger

	err = endpoint.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
