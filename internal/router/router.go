package router

import (
	"net/http"

	"bridge-backend/internal/handlers"
	"bridge-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup builds the gin engine with all routes mounted.
func Setup(
	conversionHandler *handlers.ConversionHandler,
	adminHandler *handlers.AdminHandler,
	wsHandler *handlers.WebSocketHandler,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.CORS())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	{
		api.POST("/conversions", conversionHandler.Create)
		api.GET("/conversions/:id", conversionHandler.Get)
		api.POST("/conversions/:id/transactions", conversionHandler.SubmitTransaction)
		api.POST("/conversions/:id/claim", conversionHandler.Claim)
		api.GET("/token-pairs", conversionHandler.ListTokenPairs)
	}

	engine.GET("/ws/conversions/:id", wsHandler.Subscribe)

	admin := engine.Group("/admin")
	{
		admin.POST("/login", adminHandler.Login)
		authed := admin.Group("")
		authed.Use(middleware.RequireAdminAuth())
		authed.POST("/conversions/expire", adminHandler.ExpireConversions)
	}

	return engine
}
