package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedsim/fedsim/internal/config"
	"github.com/fedsim/fedsim/internal/crypto"
	"github.com/fedsim/fedsim/internal/oauth"
	"github.com/fedsim/fedsim/internal/saml"
	"github.com/fedsim/fedsim/internal/server"
	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/internal/tokencodec"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg)

	keySet, err := crypto.NewKeySet()
	if err != nil {
		logger.Fatal().Err(err).Msg("key set initialization failed")
	}
	logger.Info().Str("rsa_kid", keySet.RSAKeyID()).Msg("signing keys initialized")

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store initialization failed")
	}
	defer st.Close()

	if cfg.SeedDemoData {
		if err := store.Seed(context.Background(), st, cfg.BaseURL); err != nil {
			logger.Fatal().Err(err).Msg("seeding demo data failed")
		}
		logger.Info().Msg("demo clients and environments seeded")
	}

	codec := tokencodec.New(keySet, cfg.Issuer)
	engine := oauth.NewEngine(st, codec)
	engine.SetDefaultLifetimes(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	builder := saml.NewBuilder(saml.NewStructuralSigner(keySet))

	var limiter server.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = server.NewAddressLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	srv := server.New(cfg, st, engine, keySet, builder, limiter, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("base_url", cfg.BaseURL).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server exited")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "sqlite" {
		return store.NewSQLiteStore(cfg.StorePath)
	}
	return store.NewMemoryStore(), nil
}
