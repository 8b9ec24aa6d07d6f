package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"personapost/internal/metrics"
	"personapost/internal/usertoken"
	"personapost/internal/util"
	"personapost/pkg/billing"
	"personapost/pkg/store"
	"personapost/services/billing/internal/app"
	"personapost/services/billing/internal/config"
	"personapost/services/billing/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "billing")
	registry := metrics.New("billing")

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:     cfg.JWTSecret,
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer db.Close()

	var provider billing.PaymentProvider
	if cfg.StripeSecretKey != "" {
		provider, err = billing.NewStripeProvider(cfg.StripeSecretKey, billing.WithBaseURL(cfg.StripeAPIBaseURL))
		if err != nil {
			log.Fatalf("failed to init stripe provider: %v", err)
		}
	} else {
		logger.Warn("stripeSecretKey not set, provider calls are disabled")
	}
	var webhooks server.WebhookVerifier
	if cfg.StripeWebhookSecret != "" {
		webhooks, err = billing.NewWebhookVerifier(cfg.StripeWebhookSecret, time.Duration(cfg.WebhookToleranceSeconds)*time.Second)
		if err != nil {
			log.Fatalf("failed to init webhook verifier: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:    db,
		Provider: provider,
		Metrics:  registry,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if cfg.ExpirySweepSchedule != "" {
		sweeper, err := app.NewExpirySweeper(appCore, cfg.ExpirySweepSchedule, logger)
		if err != nil {
			log.Fatalf("failed to init expiry sweep: %v", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		logger.Info("subscription expiry sweep scheduled", "schedule", cfg.ExpirySweepSchedule)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		Webhooks:       webhooks,
		Metrics:        registry,
		CORS:           util.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		TrustedProxies: proxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	logger.Info("billing server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
