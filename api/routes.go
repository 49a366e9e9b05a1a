package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mallpay/internal/middleware"
)

// SetupRouter 组装路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(RequestLogger())
	router.Use(CORS())

	limiter := middleware.NewRateLimiter(nil)

	// 系统探针与指标
	router.GET("/health", HealthCheck(container.DB))
	router.GET("/ready", ReadinessCheck(container.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")

	// 订单
	orderGroup := apiGroup.Group("/orders")
	{
		orderGroup.POST("", container.OrderHandler.Create)
		orderGroup.GET("", container.OrderHandler.List)
		orderGroup.GET("/:id", container.OrderHandler.Get)
		orderGroup.POST("/:id/payment/callback", middleware.RateLimit(limiter), container.OrderHandler.PaymentCallback)
		orderGroup.POST("/:id/status", container.OrderHandler.Transition)
		orderGroup.POST("/:id/cancel", container.OrderHandler.Cancel)
	}

	// 退款
	refundGroup := apiGroup.Group("/refunds")
	{
		refundGroup.POST("", middleware.RateLimit(limiter), container.RefundHandler.Create)
		refundGroup.GET("", container.RefundHandler.ListByOrder)
		refundGroup.GET("/:id", container.RefundHandler.Get)
		refundGroup.POST("/:id/approve", container.RefundHandler.Approve)
		refundGroup.POST("/:id/reject", container.RefundHandler.Reject)
		refundGroup.POST("/:id/returning", container.RefundHandler.MarkReturning)
		refundGroup.POST("/:id/confirm-return", container.RefundHandler.ConfirmReturned)
		refundGroup.POST("/:id/complete", container.RefundHandler.Complete)
	}

	// 钱包
	walletGroup := apiGroup.Group("/wallet")
	{
		walletGroup.POST("/deposit", container.WalletHandler.Deposit)
		walletGroup.GET("/balance", container.WalletHandler.GetBalance)
		walletGroup.GET("/transactions", container.WalletHandler.ListTransactions)
	}

	// 结算管理
	settlementGroup := apiGroup.Group("/settlement")
	{
		settlementGroup.POST("/run", container.SettleHandler.RunBatch)
		settlementGroup.POST("/orders/:id", container.SettleHandler.SettleOrder)
		settlementGroup.GET("/orders/:id/fee", container.SettleHandler.GetFee)
		settlementGroup.GET("/orders/:id/summary", container.SettleHandler.GetOrderSummary)
	}

	return router
}
