package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/config"
	"github.com/dmaas/paddle/internal/engine"
	"github.com/dmaas/paddle/internal/gateway"
	"github.com/dmaas/paddle/internal/league"
	"github.com/dmaas/paddle/internal/orchestrator"
	"github.com/dmaas/paddle/internal/outbox"
	"github.com/dmaas/paddle/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := store.NewClient(ctx, store.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer client.Close()

	if err := client.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	log.Info().
		Str("database", cfg.Database.Database).
		Str("addr", cfg.HTTP.Addr).
		Msg("starting auction service")

	st := store.New(client.Pool())
	sink := outbox.NewApp(outbox.NewRepository(client.Pool()))
	clock := clockwork.NewRealClock()

	engineCfg := engine.Config{
		OfferTime:       cfg.Timing.OfferTime(),
		AuctionTime:     cfg.Timing.AuctionTime(),
		HeartbeatWindow: cfg.Timing.HeartbeatWindow(),
	}
	manager := engine.NewManager(st, st, sink, clock, engineCfg)
	scheduler := orchestrator.NewScheduler(manager, clock, 4)

	leagueApp := league.NewApp(league.NewRepository(client.Pool()))

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go cm.Start(ctx)

	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = cfg.NATS.URL
	consumer, err := gateway.NewEventConsumer(cm, consumerCfg)
	if err != nil {
		// Push delivery is an optimization; the service still works via the
		// state poll endpoint when the broker is down.
		log.Error().Err(err).Msg("event consumer unavailable, continuing without push delivery")
	} else {
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler failed")
		}
	}()

	svc := gateway.NewService(manager, scheduler, leagueApp, cm)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := gateway.NewServer(cfg.HTTP.Addr, mux)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("auction service shutdown complete")
}
