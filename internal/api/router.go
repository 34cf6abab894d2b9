package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/service"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the Gin router. hub may be nil, which disables /v1/events.
func NewRouter(services *service.Services, hub *events.Hub, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	// Handlers
	authHandler := NewAuthHandler(services, log)
	leadHandler := NewLeadHandler(services, log)
	commentHandler := NewCommentHandler(services, log)
	importHandler := NewImportHandler(services, log)
	exportHandler := NewExportHandler(services, log)
	eventsHandler := NewEventsHandler(hub, services, cfg.Server.AllowedOrigins, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", metricsHandler(services))

	v1 := router.Group("/v1")
	{
		v1.POST("/auth/login", authHandler.Login)

		// The websocket handshake authenticates itself; browsers cannot set headers on it
		v1.GET("/events", eventsHandler.Subscribe)

		authed := v1.Group("", authMiddleware(services.Auth))
		{
			authed.GET("/statuses", leadHandler.ListStatuses)
			authed.GET("/users", leadHandler.ListUsers)

			leads := authed.Group("/leads")
			{
				leads.GET("", leadHandler.ListLeads)
				leads.GET("/export", exportHandler.StreamExport)
				leads.POST("/existing", importHandler.ExistingIDs)
				leads.POST("/import", importHandler.Import)
				leads.GET("/:id", leadHandler.GetLead)
				leads.PATCH("/:id/status", leadHandler.UpdateStatus)
				leads.PATCH("/:id/assignee", leadHandler.Assign)
				leads.GET("/:id/comments", commentHandler.List)
				leads.POST("/:id/comments", commentHandler.Add)
			}
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "leadboard",
	})
}

// metricsHandler reports lead counts per status
func metricsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := services.Lead.CountByStatus(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}

		total := 0
		for _, n := range counts {
			total += n
		}

		c.JSON(http.StatusOK, gin.H{
			"leads": gin.H{
				"total":     total,
				"by_status": counts,
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware adapts rs/cors to gin; preflight requests end here with 204
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})

	return func(c *gin.Context) {
		handler.HandlerFunc(c.Writer, c.Request)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
