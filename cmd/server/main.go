package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalefund/fundgate/internal/config"
	"github.com/kalefund/fundgate/internal/custody"
	"github.com/kalefund/fundgate/internal/handler"
	"github.com/kalefund/fundgate/internal/ledger"
	"github.com/kalefund/fundgate/internal/middleware"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/oracle"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/rebalance"
	"github.com/kalefund/fundgate/internal/repository"
	"github.com/kalefund/fundgate/internal/risk"
	"github.com/kalefund/fundgate/internal/scheduler"
	"github.com/kalefund/fundgate/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence (Postgres > Memory)
	var store repository.Store
	var auditRepo service.AuditRepo
	if cfg.Database.DSN != "" {
		pg, err := repository.NewPostgresStore(cfg.Database.DSN)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			store = pg
			auditRepo = repository.NewPostgresAuditRepo(pg.DB())
		} else {
			logger.Error("⚠️ Failed to connect to DB, falling back to memory store", "error", err)
		}
	}
	if store == nil {
		store = repository.NewMemoryStore()
	}

	// Price Cache (Redis > Memory)
	var priceCache oracle.Cache
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			priceCache = oracle.NewRedisCache(redisClient, time.Duration(cfg.Redis.PriceTTLSeconds)*time.Second)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, price cache will be in-memory", "error", err)
		}
	}
	if priceCache == nil {
		priceCache = oracle.NewMemoryCache()
	}

	// 3. Initialize Core Services
	oracleSvc := oracle.NewService(priceCache, oracle.Config{
		MaxPriceAge:           cfg.Oracle.MaxPriceAge,
		UpdateFrequency:       cfg.Oracle.UpdateFrequency,
		DeviationThresholdBps: cfg.Oracle.DeviationThresholdBps,
	})

	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	if cfg.Oracle.FeedURL != "" {
		oracle.NewFeedStream(cfg.Oracle.FeedURL, oracleSvc).Start(streamCtx)
	}

	ledgerSvc := ledger.New(store, custody.NewSimulatedCustody())
	riskEngine := risk.New(store)
	rebalancer := rebalance.New(store, oracleSvc, &rebalance.SimulatedExecutor{})

	minRebalance, err := model.ParseAmount(cfg.Rebalance.MinRebalanceAmount)
	if err != nil {
		log.Fatalf("Invalid rebalance.min_rebalance_amount: %v", err)
	}
	fundSvc := service.NewFundService(store, ledgerSvc, riskEngine, model.RebalanceConfig{
		MinRebalanceAmount:    minRebalance,
		MaxSlippageBps:        cfg.Rebalance.MaxSlippageBps,
		RebalanceFrequency:    cfg.Rebalance.FrequencySeconds,
		MaxTradesPerRebalance: cfg.Rebalance.MaxTradesPerRebalance,
	})

	auditSvc, err := service.NewAuditService(cfg.Audit.Dir, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	idempotencyStore := middleware.NewInMemIdempotencyStore()

	// Optional unattended rebalancing
	var autoRebalancer *scheduler.AutoRebalancer
	if cfg.Rebalance.AutoSchedule != "" {
		profile, err := model.ParseRiskProfile(cfg.Rebalance.AutoProfile)
		if err != nil {
			log.Fatalf("Invalid rebalance.auto_profile: %v", err)
		}
		autoRebalancer = scheduler.NewAutoRebalancer(rebalancer, riskEngine, profile)
		if err := autoRebalancer.Start(cfg.Rebalance.AutoSchedule); err != nil {
			log.Fatalf("Failed to start auto-rebalancer: %v", err)
		}
	}

	// 4. Initialize Handlers
	fundHandler := handler.NewFundHandler(fundSvc, ledgerSvc, cfg.Fund.SettlementAsset)
	riskHandler := handler.NewRiskHandler(riskEngine, fundSvc)
	rebalanceHandler := handler.NewRebalanceHandler(rebalancer, fundSvc)
	oracleHandler := handler.NewOracleHandler(oracleSvc, fundSvc, store)
	auditHandler := handler.NewAuditHandler(auditSvc)

	// 5. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	r.Use(middleware.AuditMiddleware(auditSvc))

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "fundgate"})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(cfg.RateLimit.QPS, cfg.RateLimit.Burst))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		// participant surface
		v1.POST("/fund/deposits", fundHandler.Deposit)
		v1.POST("/fund/withdrawals", fundHandler.Withdraw)
		v1.GET("/fund/account", fundHandler.GetAccount)
		v1.GET("/fund/accounts/:participant", fundHandler.GetAccount)
		v1.GET("/fund/total-locked", fundHandler.GetTotalLocked)
		v1.GET("/fund/config", fundHandler.GetConfig)

		// risk surface
		v1.GET("/risk/allocations/:profile", riskHandler.GetAllocation)
		v1.POST("/risk/assessments", riskHandler.AssessRisk)
		v1.POST("/risk/should-rebalance", riskHandler.ShouldRebalance)
		v1.GET("/risk/parameters", riskHandler.GetRiskParameters)

		// rebalance surface
		v1.GET("/rebalance/config", rebalanceHandler.GetConfig)
		v1.GET("/rebalance/last", rebalanceHandler.GetLastRebalance)
		v1.POST("/rebalance/preview", rebalanceHandler.Preview)

		// oracle surface
		v1.GET("/oracle/prices", oracleHandler.GetAllPrices)
		v1.GET("/oracle/prices/:asset", oracleHandler.GetPrice)
		v1.GET("/oracle/twap/:asset", oracleHandler.GetTWAP)
		v1.GET("/oracle/impact/:asset", oracleHandler.GetPriceImpact)

		// admin surface
		admin := v1.Group("")
		admin.Use(middleware.AdminMiddleware(cfg))
		{
			admin.POST("/fund/initialize", fundHandler.Initialize)
			admin.PATCH("/fund/config", fundHandler.UpdateConfig)
			admin.POST("/fund/rewards", fundHandler.DistributeRewards)
			admin.PUT("/risk/allocations/:profile", riskHandler.UpdateAllocation)
			admin.PUT("/risk/volatility", riskHandler.UpdateVolatility)
			admin.PATCH("/risk/parameters", riskHandler.UpdateRiskParameters)
			admin.POST("/rebalance", rebalanceHandler.Rebalance)
			admin.PATCH("/rebalance/config", rebalanceHandler.UpdateConfig)
			admin.POST("/oracle/prices/:asset/override", oracleHandler.OverridePrice)
			admin.GET("/audit", auditHandler.List)
		}
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 FundGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopStream()
	if autoRebalancer != nil {
		autoRebalancer.Stop()
	}
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
