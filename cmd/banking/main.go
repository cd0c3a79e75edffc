package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/config"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/handler"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/cache"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/client"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/gateway"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/resilience"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("banking_api_url", cfg.BankingAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("info_cache_ttl", cfg.InfoCacheTTL),
		zap.Duration("history_cache_ttl", cfg.HistoryCacheTTL),
		zap.Duration("pix_poll_interval", cfg.PixPollInterval),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "caixinha-banking")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	infoCache := cache.NewWithStaleness[*domain.BankingInfo](cfg.InfoCacheTTL, cfg.InfoStaleAfter)
	histCache := cache.NewWithStaleness[*domain.BankingHistory](cfg.HistoryCacheTTL, cfg.HistoryStaleAfter)
	addrCache := cache.New[*domain.Address](cfg.DirectoryCacheTTL)
	bankCache := cache.New[[]domain.Bank](cfg.DirectoryCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	bankingCB := resilience.NewCircuitBreaker("banking-api")
	gatewayCB := resilience.NewCircuitBreaker("payment-gateway")
	directoryCB := resilience.NewCircuitBreaker("directory-apis")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	bankingClient := client.NewBankingClient(httpClient, cfg.BankingAPIURL, cfg.BankingAPIKey, bankingCB, resilienceCfg)
	directoryClient := client.NewDirectoryClient(httpClient, cfg.ViaCEPURL, cfg.BrasilAPIURL, directoryCB, resilienceCfg)
	gatewayClient := gateway.New(httpClient, cfg.GatewayBaseURL, cfg.GatewayPublicKey, cfg.GatewayToken, gatewayCB, resilienceCfg)
	if cfg.GatewayPublicKey == "" {
		logger.Warn("payment gateway: no public key configured, card checkout disabled")
	}

	// --- Services ---
	notifier := service.NewLogNotifier(logger, metrics)
	bankSvc := service.NewBankingService(bankingClient, infoCache, histCache, notifier, metrics, logger)

	pixCfg := service.PixFlowConfig{
		PollInterval:   cfg.PixPollInterval,
		CountdownTick:  cfg.PixCountdownTick,
		SuccessDelay:   cfg.PixSuccessDelay,
		FallbackExpiry: cfg.PixFallbackExpiry,
	}
	pixFlows := service.NewPixSessionManager(bankingClient, bankSvc, metrics, logger, pixCfg)
	checkout := service.NewCardSessionManager(gatewayClient, metrics, logger)
	directory := service.NewDirectoryService(directoryClient, directoryClient, addrCache, bankCache, metrics)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Banking:   bankSvc,
		PixFlows:  pixFlows,
		Checkout:  checkout,
		Directory: directory,
		Gateway:   gatewayClient,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		handler.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	handler.SetReady(false)
	pixFlows.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
