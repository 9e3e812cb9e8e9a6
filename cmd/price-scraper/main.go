package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/vn-price-scraper/internal/api"
	"github.com/maltedev/vn-price-scraper/internal/app"
	"github.com/maltedev/vn-price-scraper/internal/config"
	"github.com/maltedev/vn-price-scraper/internal/jobs"
	"github.com/maltedev/vn-price-scraper/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("price scraper stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// The nil check keeps a typed nil out of the interface.
	var outbox api.OutboxStats
	if a.Outbox != nil {
		outbox = a.Outbox
	}
	handlers := api.NewHandlers(a.Service, a.Sessions, outbox, log)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if a.Relay != nil {
		g.Go(func() error {
			return ignoreCanceled(a.Relay.Run(gctx))
		})
	}

	if cfg.Schedule.Cron != "" {
		scheduler, err := jobs.New(cfg.Schedule.Cron, cfg.Schedule.Timezone, func(ctx context.Context) error {
			_, _, err := a.Service.RunScheduled(ctx)
			return err
		}, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return ignoreCanceled(scheduler.Run(gctx))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
