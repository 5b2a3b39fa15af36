package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"prodtrack/internal/config"
	"prodtrack/internal/sessions"
	"prodtrack/internal/sheets"
	"prodtrack/internal/syncer"
	"prodtrack/internal/timer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:           "prodtrack",
		Short:         "Track working time against tasks and sync sessions to a remote ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the session database (overrides config)")

	root.AddCommand(newTrackCmd(&dbPath))
	root.AddCommand(newSessionsCmd(&dbPath))
	root.AddCommand(newSyncCmd(&dbPath))
	root.AddCommand(newConfigCmd())
	return root
}

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "prodtrack",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
}

func loadConfig(dbPath string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openStore(cfg *config.Config, logger hclog.Logger) (*sessions.SQLiteStore, error) {
	store, err := sessions.NewSQLiteStore(cfg.DatabasePath(), logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func newTrackCmd(dbPath *string) *cobra.Command {
	var (
		taskName    string
		description string
		tags        []string
		noIdle      bool
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track a task in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(taskName) == "" {
				return fmt.Errorf("--task is required")
			}
			cfg, err := loadConfig(*dbPath)
			if err != nil {
				return err
			}
			return runTrack(cmd.Context(), cfg, taskName, description, tags, noIdle)
		},
	}
	cmd.Flags().StringVar(&taskName, "task", "", "Task name to track")
	cmd.Flags().StringVar(&description, "description", "", "Optional task description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Optional comma-separated tags")
	cmd.Flags().BoolVar(&noIdle, "no-idle-detection", false, "Disable automatic idle pausing")
	return cmd
}

func runTrack(ctx context.Context, cfg *config.Config, taskName, description string, tags []string, noIdle bool) error {
	logger := newLogger()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	var probe timer.ActivityProbe = timer.NewXIdleProbe()
	if noIdle {
		probe = timer.StaticProbe{}
	}

	tracker := timer.New(probe, logger.Named("timer"), timer.Options{
		IdleThreshold:  cfg.IdleThreshold(),
		LongPauseAlert: cfg.LongPauseAlert(),
	})
	tracker.Subscribe(timer.ListenerFuncs{
		OnStateChanged: func(state timer.TimerState) {
			fmt.Printf("timer %s\n", state)
		},
		OnIdleDetected: func(idleFor time.Duration) {
			fmt.Printf("paused after %s of inactivity; resume with enter when back\n", idleFor.Truncate(time.Second))
		},
		OnLongPause: func(pausedFor time.Duration) {
			fmt.Printf("timer has been paused for %s\n", pausedFor.Truncate(time.Second))
		},
	})

	if !tracker.Start(taskName) {
		return fmt.Errorf("timer could not start")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	fmt.Printf("tracking %q; interrupt to stop and save\n", taskName)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-stop:
			break loop
		case <-ticker.C:
			tracker.CheckIdle()
			tracker.CheckLongPause()
		}
	}

	hours := tracker.Stop()
	session := sessions.TaskSession{
		Date:        time.Now().Format(sessions.DateLayout),
		Hours:       hours,
		Task:        taskName,
		Description: description,
		Tags:        tags,
	}
	id, err := store.Add(context.Background(), session)
	if err != nil {
		return fmt.Errorf("session was NOT saved: %w", err)
	}

	fmt.Printf("saved session id=%d task=%q hours=%.2f\n", id, taskName, hours)
	return nil
}

func newSessionsCmd(dbPath *string) *cobra.Command {
	var unsyncedOnly bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*dbPath)
			if err != nil {
				return err
			}
			return runSessions(cmd.Context(), cfg, unsyncedOnly)
		},
	}
	cmd.Flags().BoolVar(&unsyncedOnly, "unsynced", false, "Only sessions not yet synced to the ledger")
	return cmd
}

func runSessions(ctx context.Context, cfg *config.Config, unsyncedOnly bool) error {
	logger := newLogger()
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	var list []sessions.TaskSession
	if unsyncedOnly {
		list, err = store.Unsynced(ctx)
	} else {
		list, err = store.All(ctx)
	}
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, "ID\tDATE\tHOURS\tTASK\tTAGS\tSYNCED")
	for _, session := range list {
		_, _ = fmt.Fprintf(writer, "%d\t%s\t%.2f\t%s\t%s\t%v\n",
			session.ID,
			session.Date,
			session.Hours,
			session.Task,
			strings.Join(session.Tags, ", "),
			session.Synced,
		)
	}
	return writer.Flush()
}

func newSyncCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced sessions to the configured spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*dbPath)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg)
		},
	}
}

func runSync(ctx context.Context, cfg *config.Config) error {
	if !cfg.Sheets.Enabled {
		return fmt.Errorf("sheets sync is disabled; enable it in %s", config.GlobalConfigPath())
	}
	if cfg.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is not configured")
	}

	logger := newLogger()
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	creds, err := sheets.LoadCredentials(cfg.Sheets.CredentialsPath)
	if err != nil {
		return err
	}
	ledger := sheets.NewClient(creds, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, logger.Named("sheets"))

	report := syncer.New(store, ledger, logger.Named("syncer")).Run(ctx)
	if report.Err != nil {
		return fmt.Errorf("synced %d of %d before failing on session %d: %w",
			report.Synced, report.Attempted, report.FailedID, report.Err)
	}

	fmt.Printf("synced %d session(s)\n", report.Synced)
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage prodtrack configuration"}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				target = config.GlobalConfigPath()
			}
			if err := config.WriteDefault(target); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "Config file destination (defaults to the global path)")

	cmd.AddCommand(initCmd)
	return cmd
}
