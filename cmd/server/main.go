package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	httpapi "github.com/turnhub/turnhub/internal/api/http"
	"github.com/turnhub/turnhub/internal/application/chat"
	"github.com/turnhub/turnhub/internal/application/readmodel"
	"github.com/turnhub/turnhub/internal/application/responder"
	"github.com/turnhub/turnhub/internal/config"
	domainProvider "github.com/turnhub/turnhub/internal/domain/provider"
	"github.com/turnhub/turnhub/internal/infrastructure/postgres"
	infraProvider "github.com/turnhub/turnhub/internal/infrastructure/provider"
	"github.com/turnhub/turnhub/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	convRepo := postgres.NewConversationRepository(pool)
	lockRepo := postgres.NewLockRepository(pool)
	presenceRepo := postgres.NewPresenceRepository(pool)
	receiptRepo := postgres.NewReceiptRepository(pool)

	// infrastructure
	sseHub := sse.NewHub()
	completer := buildCompleter(cfg)

	// services
	responderCfg := responder.DefaultConfig()
	responderCfg.LockTTL = cfg.LockTTL
	responderCfg.GenerationTimeout = cfg.GenerationTimeout
	responderCfg.TypingTTL = cfg.TypingTTL
	responderCfg.LockWait = cfg.LockWait
	if cfg.SystemPrompt != "" {
		responderCfg.SystemPrompt = cfg.SystemPrompt
	}
	responderSvc, err := responder.NewService(convRepo, lockRepo, presenceRepo, completer, sseHub, responderCfg, logger)
	if err != nil {
		log.Fatalf("responder config error: %v", err)
	}
	chatSvc := chat.NewService(convRepo, presenceRepo, sseHub, responderSvc, logger)
	readSvc := readmodel.NewService(receiptRepo, convRepo, logger)

	// API server
	apiServer := httpapi.NewServer(chatSvc, readSvc, responderSvc, sseHub)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	responderSvc.Start(workerCtx)

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now().UTC()
			if n, err := lockRepo.DeleteExpired(context.Background(), now, 100); err != nil {
				logger.Warn().Err(err).Msg("lock sweep failed")
			} else if n > 0 {
				logger.Debug().Int("count", n).Msg("expired locks swept")
			}
			if n, err := presenceRepo.DeleteExpired(context.Background(), now, 100); err != nil {
				logger.Warn().Err(err).Msg("typing sweep failed")
			} else if n > 0 {
				logger.Debug().Int("count", n).Msg("expired typing markers swept")
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopWorker()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func buildCompleter(cfg *config.Config) domainProvider.Completer {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return infraProvider.NewOpenAI(func(o *infraProvider.OpenAIOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	default:
		return infraProvider.NewAnthropic(func(o *infraProvider.AnthropicOptions) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
		})
	}
}
