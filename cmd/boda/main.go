package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mpataki/boda/internal/config"
	"github.com/mpataki/boda/internal/logging"
	"github.com/mpataki/boda/internal/models"
	"github.com/mpataki/boda/internal/runner"
	"github.com/mpataki/boda/internal/state"
	"github.com/mpataki/boda/internal/storage"
	"github.com/mpataki/boda/internal/tui"
)

// shutdownGrace bounds how long in-flight executions may keep recording
// results after quit.
const shutdownGrace = 5 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "boda [flags] [--] <command> [args...]",
		Short: "Run a command periodically and browse its history",
		Long: "Boda runs a shell command on an interval, like watch, with a cap on\n" +
			"concurrent executions. Every run is recorded and can be inspected later.",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         runWatch,
	}
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.Flags().Float64P("interval", "n", config.DefaultInterval.Seconds(), "Seconds between executions (fractional allowed)")
	rootCmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency, "Maximum executions in flight")
	rootCmd.Flags().String("shell", "", "Shell used to run the command (default $SHELL)")
	rootCmd.PersistentFlags().String("db", "", "Path of the history database")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newSessionsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newShowCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		v, _ := flags.GetFloat64("interval")
		cfg.Interval = config.IntervalFromSeconds(v)
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if v, _ := flags.GetString("shell"); v != "" {
		cfg.Shell = v
	}
	if v, _ := flags.GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, logFile, err := logging.NewFile(logging.Config{Level: cfg.LogLevel, Path: cfg.LogPath})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	sess := &models.Session{
		ID:          uuid.NewString(),
		StartedAt:   time.Now(),
		Command:     args,
		Interval:    cfg.Interval,
		Concurrency: cfg.Concurrency,
		Shell:       cfg.Shell,
	}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	logger = logger.With().Str("session", sess.ID).Logger()
	logger.Info().Strs("command", args).Dur("interval", cfg.Interval).Int("concurrency", cfg.Concurrency).
		Str("db", cfg.DBPath).Msg("session started")

	execLog := store.Session(sess.ID)
	coord := state.New(execLog, state.Global{
		Command:     args,
		Interval:    cfg.Interval,
		Concurrency: cfg.Concurrency,
	}, logging.Component(logger, "state"))

	r := runner.New(coord, runner.Options{
		Shell:     cfg.Shell,
		Command:   args,
		Tick:      config.MinInterval,
		MaxOutput: cfg.MaxOutput,
	}, logging.Component(logger, "runner"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coord.Run(ctx)

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	app := tui.NewApp(coord, execLog, logging.Component(logger, "tui"))
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, uiErr := p.Run()

	// The viewer may have exited on its own; make sure the runner sees it.
	coord.Do(models.ActionQuit)
	if err := <-runDone; err != nil {
		logger.Error().Err(err).Msg("runner failed")
	}
	waitInFlight(r, shutdownGrace, logger)
	cancel()
	<-coord.Done()

	logger.Info().Msg("session finished")
	fmt.Printf("History saved to %s (session %s)\n", cfg.DBPath, sess.ID)
	return uiErr
}

func waitInFlight(r *runner.Runner, grace time.Duration, logger zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn().Dur("grace", grace).Msg("executions still running at exit; their results are dropped")
	}
}
