package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"docscan/internal/handler"
	"docscan/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	processingH *handler.ProcessingHandler,
	healthH *handler.HealthHandler,
	allowedOrigins []string,
	log *slog.Logger,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	documents := v1.Group("/documents")
	documents.POST("/process", processingH.Process)
	documents.POST("/process-stored", processingH.ProcessStored)

	outcomes := v1.Group("/outcomes")
	outcomes.GET("/:id", processingH.GetOutcome)
	outcomes.GET("/:id/attempts", processingH.ListAttempts)

	return r
}
