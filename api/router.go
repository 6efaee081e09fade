package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"api_sales/internal/logger"
	"api_sales/internal/sales"
)

// NewRouter builds a gin engine with recovery, tracing, request id and
// request logging middleware, and registers the sales routes on it.
func NewRouter(salesService *sales.Service, log *zap.Logger, serviceName string) *gin.Engine {
	e := gin.New()
	e.Use(
		logger.Recovery(log),
		otelgin.Middleware(serviceName),
		logger.RequestID(),
		logger.GinMiddleware(log),
	)
	InitRoutes(e, salesService, log)
	return e
}

// InitRoutes registers the sales endpoints on the given Gin engine.
func InitRoutes(e *gin.Engine, salesService *sales.Service, log *zap.Logger) {
	salesHandler := NewSalesHandler(salesService, log)

	e.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Sales Service!"})
	})
	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	e.POST("/sales", salesHandler.handleCreateSale)
	e.GET("/purchases", salesHandler.handleListPurchases)
	e.GET("/customers/:username/purchases", salesHandler.handlePurchaseHistory)
	e.GET("/goods", salesHandler.handleListGoods)
	e.GET("/goods/:name", salesHandler.handleGetGood)
}
