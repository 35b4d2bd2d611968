package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/gambit/go/internal/config"
)

func main() {
	setupLogger("info", false)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Env.LogLevel, cfg.Env.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resources, err := setupResources(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up resources")
	}
	defer resources.Close()

	services, err := setupServices(ctx, cfg, resources)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	// Hand-off work outlives the request side so results of games ending
	// during shutdown still reach the archive.
	handoffCtx, stopHandoff := context.WithCancel(context.Background())
	handoffDone := make(chan error, 1)
	go func() { handoffDone <- services.Handoff.Run(handoffCtx) }()

	server := setupServer(cfg, services)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return services.Queue.Run(gctx) })
	g.Go(func() error { return services.Tournaments.RunScheduler(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Env.ShutdownTimeout)
		defer cancel()
		services.Connections.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped with error")
	}

	services.Games.Close()
	stopHandoff()
	if err := <-handoffDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("hand-off queue did not drain")
	}
	stats := services.Handoff.Stats()
	log.Info().
		Uint64("processed", stats.Processed).
		Uint64("failed", stats.Failed).
		Uint64("dropped", stats.Dropped).
		Msg("shutdown complete")
}
