package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		sinks       []EventSink
		leaderboard *Leaderboard
	)
	if cfg.RedisURL != "" {
		rdb, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to redis")
		}
		defer rdb.Close()
		leaderboard = NewLeaderboard(rdb)
		sinks = append(sinks, leaderboard, newRedisPublisher(rdb))
	} else {
		log.Warn().Msg("REDIS_URL not set, leaderboard disabled")
	}

	if cfg.NATSURL != "" {
		np, err := newNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to NATS")
		}
		defer np.Close()
		sinks = append(sinks, np)
	}

	// The bus outlives the hub so the sessions' abort events reach the sinks.
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	bus := NewEventBus(256, sinks...)
	busDone := make(chan struct{})
	go func() {
		bus.Run(busCtx)
		close(busDone)
	}()

	hub := newHub(cfg.SinglePlayer, clockwork.NewRealClock(), bus)
	go hub.run(ctx)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     newRouter(hub, leaderboard),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Bool("single_player", cfg.SinglePlayer).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	<-hub.done
	stopBus()
	<-busDone
	log.Info().Msg("shutdown complete")
}
