package main

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"restock-notify/internal/httpapi"
)

// NewRouter 组装 gin 路由
// 触发接口挂限流中间件;实时流与管理接口不限流
func NewRouter(appContext *AppContext) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	handler := appContext.Handler
	limiter := rate.NewLimiter(
		rate.Limit(appContext.Config.RateLimit.PerSecond),
		appContext.Config.RateLimit.Burst,
	)

	// 补货通知触发
	trigger := router.Group("/", httpapi.RateLimitMiddleware(limiter))
	{
		trigger.POST("/products/:productId/notifications/re-stock", handler.TriggerRestock)
		trigger.POST("/admin/products/:productId/notifications/re-stock", handler.TriggerRestockManual)
	}

	// 实时通知流
	router.GET("/notifications/stream", handler.StreamNotifications)

	// 管理接口
	admin := router.Group("/admin")
	{
		admin.POST("/products", handler.CreateProduct)
		admin.POST("/products/:productId/subscriptions", handler.Subscribe)
		admin.PUT("/products/:productId/stock", handler.UpdateStock)
		admin.GET("/products/:productId/notifications/history", handler.NotificationHistory)
	}

	return router
}
