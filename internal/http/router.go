package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/haventory/haventory-backend/internal/http/handlers"
	httpMW "github.com/haventory/haventory-backend/internal/http/middleware"
)

type RouterConfig struct {
	AuthMiddleware *httpMW.AuthMiddleware

	DocumentHandler *httpH.DocumentHandler
	WebhookHandler  *httpH.WebhookHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Provider webhooks authenticate by signature, not bearer token.
	if cfg.WebhookHandler != nil {
		r.POST("/webhooks/email", cfg.WebhookHandler.ReceiveEmail)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/documents/stream", cfg.RealtimeHandler.Stream)
		}

		if cfg.DocumentHandler != nil {
			protected.POST("/documents/upload", cfg.DocumentHandler.Upload)
			protected.GET("/documents", cfg.DocumentHandler.List)
			protected.GET("/documents/:id", cfg.DocumentHandler.Get)
			protected.POST("/documents/:id/confirm", cfg.DocumentHandler.Confirm)
			protected.POST("/documents/:id/discard", cfg.DocumentHandler.Discard)
			protected.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
			protected.PATCH("/documents/:id/status", cfg.DocumentHandler.UpdateStatus)
			protected.GET("/documents/:id/url", cfg.DocumentHandler.SignedURL)
		}
	}

	return r
}
