package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mpataki/boda/internal/logging"
	"github.com/mpataki/boda/internal/models"
	"github.com/mpataki/boda/internal/storage"
)

// openStore opens the history database for a one-shot subcommand.
func openStore(cmd *cobra.Command) (*storage.Storage, zerolog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.NewConsole(cfg.LogLevel)

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, logger, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug().Str("db", cfg.DBPath).Msg("opened history")
	return store, logger, nil
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent watch sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			for _, s := range sessions {
				fmt.Printf("%s  %-14s  every %-6s x%d  %s\n",
					s.ID, humanize.Time(s.StartedAt), s.Interval, s.Concurrency,
					truncate(strings.Join(s.Command, " "), 50))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of sessions to list")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List the executions of a session (default: most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			sess, err := resolveSession(ctx, store, args)
			if err != nil {
				return err
			}
			logger.Debug().Str("session", sess.ID).Msg("listing history")

			limit, _ := cmd.Flags().GetInt("limit")
			history, err := store.Session(sess.ID).History(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("Session %s: %s\n", sess.ID, strings.Join(sess.Command, " "))
			if len(history) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}
			for _, sum := range history {
				fmt.Printf("  #%-6d %s  %s\n", sum.ID, sum.StartedAt.Format("2006-01-02 15:04:05"), summaryStatus(sum))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "Number of executions to list (0 for all)")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <execution-id>",
		Short: "Print the recorded output of one execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid execution ID: %w", err)
			}

			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			exec, err := store.GetExecution(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to get execution: %w", err)
			}
			if exec == nil {
				return fmt.Errorf("execution %d not found", id)
			}

			fmt.Printf("Execution #%d (session %s)\n", exec.ID, exec.SessionID)
			fmt.Printf("Started: %s\n", exec.StartedAt.Format("2006-01-02 15:04:05.000"))
			fmt.Printf("Status: %s\n", summaryStatus(exec.Summary()))
			if content := exec.Content(); content != "" {
				fmt.Println()
				fmt.Print(content)
				if !strings.HasSuffix(content, "\n") {
					fmt.Println()
				}
			}
			return nil
		},
	}
}

func resolveSession(ctx context.Context, store *storage.Storage, args []string) (*models.Session, error) {
	if len(args) == 1 {
		sess, err := store.GetSession(ctx, args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to get session %s: %w", args[0], err)
		}
		return sess, nil
	}

	sess, err := store.LatestSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no sessions recorded yet")
	}
	return sess, nil
}

func summaryStatus(sum models.Summary) string {
	if sum.Pending() {
		return "pending"
	}
	status := "unknown"
	if sum.ExitCode != nil {
		status = fmt.Sprintf("exit %d", *sum.ExitCode)
	}
	return fmt.Sprintf("%s in %s", status, sum.CompletedAt.Sub(sum.StartedAt).Round(time.Millisecond))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
