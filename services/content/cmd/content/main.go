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
	"github.com/redis/go-redis/v9"
	"personapost/internal/metrics"
	"personapost/internal/ratelimit"
	"personapost/internal/usertoken"
	"personapost/internal/util"
	"personapost/pkg/ai"
	"personapost/pkg/store"
	"personapost/services/content/internal/app"
	"personapost/services/content/internal/config"
	"personapost/services/content/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "content")
	registry := metrics.New("content")

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

	generator, err := ai.NewGenerator(ai.GeneratorConfig{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Timeout:  time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}
	if cfg.LLMRequestsPerSecond > 0 {
		generator = ai.NewRateLimitedGenerator(generator, cfg.LLMRequestsPerSecond, cfg.LLMBurst)
	}
	tokenizer, err := ai.NewTiktokenCounter(cfg.TokenizerModel)
	if err != nil {
		log.Fatalf("failed to init tokenizer: %v", err)
	}

	var cache redis.UniversalClient
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer cache.Close()
	}
	if cfg.GenerateRateLimitPerMinute > 0 {
		if cache != nil {
			limiter, err = ratelimit.NewFixedWindowLimiter(cache, ratelimit.DefaultPrefix, cfg.GenerateRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init rate limiter: %v", err)
			}
		} else {
			logger.Warn("redisAddr not set, generation rate limit is per instance")
			limiter = ratelimit.NewLocalLimiter(cfg.GenerateRateLimitPerMinute, time.Minute)
		}
	}

	appCore, err := app.New(app.Config{
		Store:                db,
		Generator:            generator,
		Tokenizer:            tokenizer,
		Cache:                cache,
		Metrics:              registry,
		CostPerMillionTokens: cfg.CostPerMillionTokens,
		MaxTokens:            cfg.MaxTokens,
		Temperature:          cfg.Temperature,
		TopicCount:           cfg.TopicCount,
		UsageCacheTTL:        time.Duration(cfg.UsageCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		Limiter:        limiter,
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
		WriteTimeout: 120 * time.Second,
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

	logger.Info("content server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
