package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/ohsori/sori/internal/adapter/driven/gateway/ws"
	"github.com/ohsori/sori/internal/adapter/driven/persistence/memory"
	redisrepo "github.com/ohsori/sori/internal/adapter/driven/persistence/redis"
	handler "github.com/ohsori/sori/internal/adapter/driving/http"
	"github.com/ohsori/sori/internal/core/port"
	"github.com/ohsori/sori/internal/core/service"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	defaultAddr     = ":8080"
	defaultGrace    = 3 * time.Minute
	defaultDebounce = 3 * time.Second
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	addr := envOr("SORI_ADDR", defaultAddr)
	grace := envDuration("SORI_GRACE_PERIOD", defaultGrace)
	debounce := envDuration("SORI_DISCONNECT_DEBOUNCE", defaultDebounce)

	var (
		sessions port.CallSessionRepository
		presence port.PresenceRepository
	)
	if redisAddr := os.Getenv("SORI_REDIS_ADDR"); redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			l.Fatal().Err(err).Str("addr", redisAddr).Msg("Failed to connect to redis")
		}
		sessions = redisrepo.NewCallSessionRepository(client)
		presence = redisrepo.NewPresenceRepository(client)
		l.Info().Str("addr", redisAddr).Msg("Using redis session store")
	} else {
		sessions = memory.NewCallSessionRepository()
		presence = memory.NewPresenceRepository()
		l.Warn().Msg("SORI_REDIS_ADDR not set, sessions will not survive a restart")
	}

	hub := ws.NewHub()
	supervisor := service.NewTimeoutSupervisor(grace)
	calls := service.NewCallService(sessions, hub, supervisor)
	registrar := service.NewRegistrar(hub, presence, hub, calls, debounce)
	relay := service.NewRelay(hub)

	h := handler.NewHandler(registrar, calls, relay, hub)

	srv := &http.Server{
		Addr:    addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	registrar.Stop()
	supervisor.Stop()
	hub.Stop()
	l.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		zlog.Warn().Str("key", key).Str("value", v).Msg("Bad duration, using default")
		return fallback
	}
	return d
}
