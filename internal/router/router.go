package router

import (
	"time"

	"github.com/blues/fundvault/internal/clock"
	"github.com/blues/fundvault/internal/config"
	"github.com/blues/fundvault/internal/handler"
	"github.com/blues/fundvault/internal/idempotency"
	"github.com/blues/fundvault/internal/logic"
	"github.com/blues/fundvault/internal/metrics"
	"github.com/blues/fundvault/internal/wallet"
	"github.com/gin-gonic/gin"
)

// Dependencies 路由依赖的服务
type Dependencies struct {
	FundLogic   *logic.FundLogic
	Bank        wallet.Bank
	Idempotency idempotency.Store
	Clock       clock.Clock
}

func Setup(deps Dependencies, cfg *config.Config) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(metricsMiddleware())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "fundvault",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := authMiddleware(cfg.Auth, deps.Clock)
	idem := idempotencyMiddleware(deps.Idempotency, idempotencyTTL(cfg))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 资金相关路由
		fundHandler := handler.NewFundHandler(deps.FundLogic)
		funds := v1.Group("/funds")
		{
			funds.POST("", auth, idem, fundHandler.CreateFund)
			funds.GET("", fundHandler.GetFunds)
			funds.GET("/:address", fundHandler.GetFund)
			funds.GET("/:address/stats", fundHandler.GetFundStats)
			funds.GET("/:address/records", fundHandler.GetFundRecords)
			funds.POST("/:address/donations", auth, idem, fundHandler.Donate)
			funds.POST("/:address/withdrawals", auth, idem, fundHandler.Withdraw)
			funds.POST("/:address/close", auth, idem, fundHandler.CloseFund)
		}

		// 账户相关路由
		accountHandler := handler.NewAccountHandler(deps.Bank, cfg.Wallet.Faucet)
		accounts := v1.Group("/accounts")
		{
			accounts.GET("/:address", accountHandler.GetAccount)
			accounts.POST("/:address/deposits", accountHandler.Deposit)
		}
	}

	return r
}

func idempotencyTTL(cfg *config.Config) time.Duration {
	if cfg.Idempotency.TTL <= 0 {
		return 24 * time.Hour
	}
	return cfg.Idempotency.TTL
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Idempotency-Key, "+
			HeaderAccount+", "+HeaderTimestamp+", "+HeaderSignature)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
