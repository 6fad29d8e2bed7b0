package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ai-fitness-planner/internal/app"
	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/database"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/httpapi"
	"ai-fitness-planner/internal/logging"
	"ai-fitness-planner/internal/metrics"
	"ai-fitness-planner/internal/render"
)

const cliUser = "cli"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fitness-planner",
		Short:         "Generate 7-day fitness plans with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		generateCmd(),
		demoCmd(),
		serveCmd(),
		historyCmd(),
		metricsCmd(),
		metricsCleanupCmd(),
		tokenCmd(),
	)
	return cmd
}

// environment holds the wired application for one command.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *app.App
	close  func()
}

func setup(ctx context.Context) *environment {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	model, closeModel, err := app.NewModel(ctx, cfg)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to initialize model: %v", err)
	}

	application, err := app.NewApp(cfg, model, db, app.WithLogger(logger))
	if err != nil {
		closeModel()
		db.Close()
		log.Fatalf("Failed to initialize application: %v", err)
	}

	return &environment{
		cfg:    cfg,
		logger: logger,
		app:    application,
		close: func() {
			application.Close()
			if err := closeModel(); err != nil {
				logger.Warn("Failed to close model", "error", err)
			}
			db.Close()
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func generateCmd() *cobra.Command {
	var (
		user   string
		export string
	)
	cmd := &cobra.Command{
		Use:   "generate <goals...>",
		Short: "Generate a plan and print it as Markdown",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var format render.Format
			if export != "" {
				f, err := render.ParseFormat(export)
				if err != nil {
					return err
				}
				format = f
			}

			ctx, cancel := signalContext()
			defer cancel()
			env := setup(ctx)
			defer env.close()

			s, err := runWithProgress(env.app, user, func() (generator.State, error) {
				return env.app.Generate(ctx, user, strings.Join(args, " "))
			})
			if err := printOutcome(s, err); err != nil {
				return err
			}

			if format == "" {
				return nil
			}
			entries, err := env.app.History(ctx, user, 1)
			if err != nil {
				return fmt.Errorf("failed to look up saved plan: %w", err)
			}
			if len(entries) == 0 || entries[0].RequestID != s.RequestID {
				return errors.New("plan was not saved")
			}
			path, err := env.app.Export(ctx, user, entries[0].ID, format)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", cliUser, "User the plan is saved for")
	cmd.Flags().StringVar(&export, "export", "", "Also export the plan (md, yaml, html, json)")
	return cmd
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Stream the built-in sample plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			env := setup(ctx)
			defer env.close()

			s, err := runWithProgress(env.app, cliUser, func() (generator.State, error) {
				return env.app.GenerateDemo(ctx, cliUser)
			})
			return printOutcome(s, err)
		},
	}
}

// runWithProgress prints progress messages to stderr while run executes.
func runWithProgress(a *app.App, user string, run func() (generator.State, error)) (generator.State, error) {
	updates, unsubscribe := a.Controller(user).Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		last := ""
		for s := range updates {
			if s.Phase == generator.Generating && s.ProgressMessage != last {
				last = s.ProgressMessage
				fmt.Fprintf(os.Stderr, "%s (%d/7 days)\n", last, s.CompleteDays)
			}
		}
	}()

	s, err := run()
	unsubscribe()
	<-done
	return s, err
}

func printOutcome(s generator.State, err error) error {
	switch {
	case s.Phase == generator.Completed && s.Plan != nil:
		fmt.Println(render.Markdown(*s.Plan))
		fmt.Fprintf(os.Stderr, "Done in %s (%d prompt / %d completion tokens)\n",
			s.Elapsed().Round(time.Millisecond), s.Usage.PromptTokens, s.Usage.CompletionTokens)
		return nil
	case s.Phase == generator.TimedOut:
		return errors.New("generation timed out")
	case s.Phase == generator.Cancelled:
		return errors.New("generation cancelled")
	}
	if s.RawResponse != "" {
		fmt.Fprintf(os.Stderr, "Raw model output:\n%s\n", s.RawResponse)
	}
	if err == nil {
		err = s.Err
	}
	if err == nil {
		err = fmt.Errorf("generation ended in phase %s", s.Phase)
	}
	return err
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			env := setup(ctx)
			defer env.close()

			if err := env.cfg.RequireHTTP(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              env.cfg.HTTPAddr,
				Handler:           httpapi.NewServer(env.app, env.cfg, env.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				env.logger.Info("HTTP API listening", "addr", env.cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}
			env.logger.Info("Shutting down server...")

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			env.logger.Info("Server exiting")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		user  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently saved plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			env := setup(ctx)
			defer env.close()

			entries, err := env.app.History(ctx, user, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No plans saved yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("#%d  %s  %s  (%d tokens)\n", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Plan.Title, e.Usage.TotalTokens)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", cliUser, "User whose plans to list")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of plans")
	return cmd
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print usage and system health for the last week",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			env := setup(ctx)
			defer env.close()

			report, err := env.app.MetricsReport(ctx)
			if err != nil {
				return err
			}
			fmt.Print(report)
			return nil
		},
	}
}

func metricsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old metric records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFromEnv()
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.NewDB(cfg.DatabasePath)
			if err != nil {
				log.Fatalf("Failed to initialize database: %v", err)
			}
			defer db.Close()

			affected, err := metrics.NewStore(db.SQL).Cleanup(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Printf("Successfully removed %d old metric records.\n", affected)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Keep records for the last N days")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFromEnv()
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
			if err := cfg.RequireHTTP(); err != nil {
				return err
			}
			token, err := httpapi.IssueToken([]byte(cfg.JWTSecret), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
