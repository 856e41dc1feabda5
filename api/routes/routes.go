package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/config"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/handlers"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/middleware"
)

// HandlerDependencies carries the handlers the router wires up
type HandlerDependencies struct {
	ClaimHandler        *handlers.ClaimHandler
	VerificationHandler *handlers.VerificationHandler
	DealHandler         *handlers.DealHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())

	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
	}

	// Customer routes
	customer := router.Group("/api/v1")
	customer.Use(middleware.JWTAuthMiddleware(cfg, "customer", "admin"))
	{
		claims := customer.Group("/claims")
		{
			claims.POST("", deps.ClaimHandler.ClaimDeal)
			claims.POST("/verify-pin", deps.ClaimHandler.VerifyPin)
			claims.PUT("/bill", deps.ClaimHandler.UpdateBill)
		}
	}

	// Vendor routes
	vendor := router.Group("/api/v1/vendor")
	vendor.Use(middleware.JWTAuthMiddleware(cfg, "vendor", "admin"))
	{
		verify := vendor.Group("/verify")
		{
			verify.POST("/code", deps.VerificationHandler.VerifyCode)
			verify.POST("/phone", deps.VerificationHandler.VerifyByPhone)
			verify.POST("/name", deps.VerificationHandler.VerifyByName)
			verify.POST("/qr", deps.VerificationHandler.VerifyByQR)
			verify.POST("/confirm", deps.VerificationHandler.ConfirmManual)
		}

		vendor.POST("/transactions", deps.VerificationHandler.CompleteTransaction)

		deals := vendor.Group("/deals")
		{
			deals.GET("/:id/pin", deps.DealHandler.GetCurrentPin)
			deals.POST("/:id/pin", deps.DealHandler.SetPin)
			deals.GET("/:id/attempts", deps.DealHandler.GetAttempts)
		}
	}

	return router
}
