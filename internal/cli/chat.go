package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation about your messages",
	Long:  "chat starts a conversation session. Type /clear to wipe the session history and /quit to leave.",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// keep the index fresh while the conversation runs.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		interval := time.Duration(a.cfg.Index.IntervalSeconds) * time.Second
		if err := a.worker.Run(workerCtx, interval); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Printf("embedding worker stopped: %v", err)
		}
	}()

	if err := a.orch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.orch.Close(ctx) }()

	if !globalFlags.Quiet {
		mode := "fallback"
		if a.orch.GenerativeActive() {
			mode = "generative"
		}
		fmt.Printf("session %s (%s). /clear resets, /quit exits.\n", a.orch.SessionID(), mode)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := a.orch.ClearHistory(ctx); err != nil {
				fmt.Println("history cleared, but the generative session could not be restarted; continuing without it.")
				continue
			}
			fmt.Println("history cleared.")
			continue
		}

		reply, err := a.orch.HandleTurn(ctx, line)
		if err != nil {
			return err
		}
		fmt.Println(reply.Text)
	}
	return scanner.Err()
}
