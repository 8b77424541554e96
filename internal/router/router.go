package router

import (
	"context"
	"net/http"
	"time"

	"marketplace/internal/app"
	"marketplace/internal/domain"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/response"
	"marketplace/internal/ws"
	"marketplace/pkg/payment"

	"github.com/gin-gonic/gin"
)

func Setup(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(a.Log))
	r.Use(response.Locale())

	var limiter middleware.Limiter
	if a.Cache != nil {
		limiter = middleware.NewRedisRateLimiter(a.Cache, "api", 100, time.Minute, a.Log)
	} else {
		local := middleware.NewInMemoryRateLimiter(100, time.Minute)
		go local.Cleanup(context.Background(), time.Minute)
		limiter = local
	}

	walletHandler := handler.NewWalletHandler(a.Transactions, a.Log)
	payoutHandler := handler.NewPayoutHandler(a.Transactions, a.Log)
	webhookHandler := handler.NewWebhookHandler(a.Providers, a.Transactions, a.Audit, a.Log)
	adminHandler := handler.NewAdminHandler(a.Transactions, a.Providers, a.Settings, a.Admin, a.Log)
	notificationHandler := handler.NewNotificationHandler(a.Notifier, a.Users, a.Log)

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "error.internal")
			return
		}
		response.Success(c, http.StatusOK, "health.ok", gin.H{"connections": a.Hub.ClientCount()})
	})
	r.GET("/ws/notifications", ws.UpgradeNotificationsWS(&cfg.JWT, a.Hub, a.Log))

	v1 := r.Group("/api/v1")

	// provider callbacks: authenticated by signature, never rate limited
	v1.POST("/payment/webhook", webhookHandler.ForPurpose(payment.PurposeDeposit))
	v1.POST("/payout/callback", webhookHandler.ForPurpose(payment.PurposeWithdrawal))
	v1.POST("/worker/payout/callback", webhookHandler.ForPurpose(payment.PurposePayout))
	v1.POST("/webhooks/:provider", webhookHandler.ByName)

	authed := v1.Group("")
	authed.Use(middleware.AuthRequired(&cfg.JWT))
	authed.Use(middleware.RateLimit(limiter))
	{
		authed.POST("/wallet", walletHandler.Create)
		authed.GET("/wallet", walletHandler.Get)
		authed.GET("/wallet/transactions", walletHandler.Transactions)
		authed.POST("/wallet/deposit", walletHandler.Deposit)
		authed.POST("/wallet/withdraw", walletHandler.Withdraw)

		authed.POST("/worker/payout",
			middleware.RequireRole(domain.RoleWorker, domain.RoleDriver, domain.RoleStore, domain.RoleAdmin),
			payoutHandler.Create)
		authed.GET("/payout/:payoutId", payoutHandler.Status)

		authed.GET("/me/notifications", notificationHandler.List)
		authed.PUT("/me/notifications/:id/read", notificationHandler.MarkRead)
		authed.POST("/me/fcm-token", notificationHandler.RegisterFCMToken)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	{
		admin.POST("/transactions/:id/reconcile", adminHandler.Reconcile)
		admin.POST("/transactions/:id/refund", adminHandler.Refund)
		admin.GET("/providers", adminHandler.Providers)
		admin.PUT("/providers/default", adminHandler.SetDefaultProvider)
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/transactions", adminHandler.Transactions)
	}

	return r
}
