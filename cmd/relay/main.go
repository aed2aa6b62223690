package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ylxai/Hafiportrait-sub001/internal/bridge"
	"github.com/ylxai/Hafiportrait-sub001/internal/config"
	"github.com/ylxai/Hafiportrait-sub001/internal/handler"
	"github.com/ylxai/Hafiportrait-sub001/internal/kafka"
	"github.com/ylxai/Hafiportrait-sub001/internal/relay"
	"github.com/ylxai/Hafiportrait-sub001/internal/service"
	pkgconfig "github.com/ylxai/Hafiportrait-sub001/pkg/config"
	"github.com/ylxai/Hafiportrait-sub001/pkg/jwt"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
	"github.com/ylxai/Hafiportrait-sub001/pkg/pubsub"
)

const serviceName = "photo-relay"

func main() {
	// Local overrides first, the process environment always wins
	loaded, err := pkgconfig.LoadDotEnv(".env.local", ".env")
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load env files")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: serviceName})
	logger := pkglog.L().With().Str(pkglog.FieldInstanceID, cfg.Server.InstanceID).Logger()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Strs("env_files", loaded).
		Msg("starting photo-relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional cross-instance bridge
	var relayOpts []relay.Option
	var br *bridge.Bridge
	if cfg.PubSub.Enabled() {
		psCfg := cfg.PubSub
		// Every instance must see every broadcast, so Kafka groups are per instance.
		psCfg.Kafka.GroupID = psCfg.Kafka.GroupID + "-" + cfg.Server.InstanceID
		bus, err := pubsub.NewPubSub(psCfg)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
		}
		br = bridge.New(bus, cfg.Server.InstanceID, 0)
		relayOpts = append(relayOpts, relay.WithObserver(br))
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("relay bridge enabled")
	}

	r := relay.New(relayOpts...)
	if br != nil {
		br.Attach(r)
	}

	// Optional activity stream
	var producer kafka.ActivityProducer
	if cfg.Kafka.Brokers != "" {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, activity stream disabled")
		} else {
			producer = p
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("activity stream enabled")
		}
	}

	// Optional admin gate
	var verifier service.AdminVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.AdminRoles)
		logger.Info().Strs("roles", cfg.Auth.AdminRoles).Msg("admin room requires a token")
	}

	svc := service.NewRelayService(r, producer, verifier)

	// Create handlers
	wsHandler := handler.NewWSHandler(svc, cfg.WebSocket, cfg.CORS.AllowedOrigins)
	httpHandler := handler.NewHTTPHandler(svc, cfg.Server.Version, cfg.Server.InstanceID)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.NewRouter(cfg, wsHandler, httpHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Run(gCtx)
	})

	if br != nil {
		g.Go(func() error {
			defer br.Close()
			return br.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("photo-relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("shutting down photo-relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()

	if stopErr := svc.Stop(); stopErr != nil {
		logger.Error().Err(stopErr).Msg("failed to stop relay service")
	}

	if err != nil {
		logger.Error().Err(err).Msg("photo-relay stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("photo-relay stopped")
}
