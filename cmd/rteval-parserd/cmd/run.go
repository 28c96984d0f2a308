package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/rteval-parser/internal/database"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
	"github.com/JonMunkholm/rteval-parser/internal/registration"
	"github.com/JonMunkholm/rteval-parser/internal/report"
	"github.com/JonMunkholm/rteval-parser/internal/schema"
	"github.com/JonMunkholm/rteval-parser/internal/web"
	"github.com/JonMunkholm/rteval-parser/internal/worker"
)

func runCmd(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the parser workers and the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending schema migrations before starting")
	return cmd
}

func (a *app) run(ctx context.Context, migrate bool) error {
	cfg := a.cfg

	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if _, err := database.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	checkout, err := queue.NewCheckouter(cfg.Worker.CheckoutMode)
	if err != nil {
		return err
	}
	pipeline := &registration.Pipeline{
		Opener: &report.Opener{Dir: cfg.Reports.Dir, MaxFileSize: cfg.Reports.MaxFileSize},
	}
	workers := worker.NewPool(
		worker.Config{Count: cfg.Worker.Count, PollInterval: cfg.Worker.PollInterval},
		worker.PoolAcquirer(pool),
		checkout,
		pipeline,
	)
	inspector := queue.Inspector{Q: pool}

	slog.Info("parser starting",
		"workers", cfg.Worker.Count,
		"checkout_mode", cfg.Worker.CheckoutMode,
		"reports_dir", cfg.Reports.Dir,
		"tables", schema.TableCount(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The daemon is only useful while workers run.
		defer cancel()
		return workers.Run(gctx)
	})

	g.Go(func() error {
		worker.RunSupervisor(gctx, inspector, worker.SupervisorConfig{
			StuckAfter: cfg.Worker.StuckAfter,
			Interval:   cfg.Worker.SupervisorInterval,
		})
		return nil
	})

	if cfg.Server.Enabled {
		server := web.NewServer(inspector, pool, cfg.Worker.StuckAfter, cfg.Server)
		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	slog.Info("parser stopped", "error", err)
	return err
}
