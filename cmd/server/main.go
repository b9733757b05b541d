package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/fundvault/internal/clock"
	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/database"
	"github.com/blues/fundvault/internal/idempotency"
	"github.com/blues/fundvault/internal/ledger"
	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/logic"
	"github.com/blues/fundvault/internal/reserve"
	"github.com/blues/fundvault/internal/router"
	"github.com/blues/fundvault/internal/scheduler"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// 加载配置
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	if err := logger.Setup(cfg.Log); err != nil {
		logger.Fatal("Failed to setup logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化账本存储
	store, bank, err := openLedger(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize ledger: %v", err)
	}

	// 初始化幂等键存储
	idem, closeIdem, err := openIdempotency(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize idempotency store: %v", err)
	}
	defer closeIdem()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	clk := clock.System{}
	fundLogic := logic.NewFundLogic(store, reserve.NewRentPolicy(cfg.Reserve), clk, cfg.Reserve.RecordSize)

	// 初始化路由
	r := router.Setup(router.Dependencies{
		FundLogic:   fundLogic,
		Bank:        bank,
		Idempotency: idem,
		Clock:       clk,
	}, cfg)

	// 启动定时任务
	tasks, err := scheduler.NewManager(store, bank, cfg)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := tasks.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}
	defer tasks.Stop()

	// 启动服务器
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown: %v", err)
	}
}

func openLedger(cfg *config.Config) (ledger.Store, wallet.Bank, error) {
	if cfg.Ledger.Driver == "memory" {
		bank := wallet.NewMemory()
		logger.Warn("Using in-memory ledger, state is lost on restart")
		return ledger.NewMemoryStore(bank), bank, nil
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to %s database", cfg.Database.Driver)
	return ledger.NewGormStore(db), wallet.New(db), nil
}

func openIdempotency(ctx context.Context, cfg *config.Config) (idempotency.Store, func(), error) {
	if !cfg.Redis.Enabled {
		return idempotency.NewMemoryStore(clock.System{}), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("Connected to redis at %s", cfg.Redis.Addr)
	return idempotency.NewRedisStore(client), func() { _ = client.Close() }, nil
}
