package handler

import (
	"shopwallet/internal/config"
	"shopwallet/internal/service"
	"shopwallet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 设置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, prices service.PriceResolver) *gin.Engine {
	r := gin.New()

	r.Use(LoggerMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, prices)
	jwtService := auth.NewService(cfg.Auth.JWTSecret)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(jwtService))
	{
		// 钱包
		v1.GET("/wallet/balance", h.GetBalance)
		v1.GET("/wallet/ledger", h.ListLedger)

		// 订单
		v1.POST("/orders", h.Checkout)
		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.GetOrder)

		// 储值申请
		v1.POST("/topup-requests", h.SubmitTopup)

		// 运营专用
		op := v1.Group("")
		op.Use(OperatorOnly())
		{
			op.PUT("/orders/:id", h.UpdateOrder)
			op.PUT("/orders/:id/items/status", h.UpdateItemStatus)
			op.PUT("/orders/:id/items/shipping", h.UpdateItemShipping)
			op.PUT("/orders/:id/items/shipping-paid", h.MarkShippingPaid)
			op.POST("/orders/:id/refund-items", h.RefundItems)

			op.GET("/topup-requests", h.ListPendingTopups)
			op.PUT("/topup-requests/:id", h.ReviewTopup)

			op.POST("/members/:id/topup", h.DirectTopup)
			op.GET("/members/:id/reconcile", h.ReconcileWallet)
		}
	}

	return r
}
