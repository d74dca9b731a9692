package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(corsOrigins)))

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/feeds/:entity", handler.GetFeed)
	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/entities", handler.APIListEntities)
		api.GET("/entities/:entity/coverage", handler.APIGetCoverage)
		api.GET("/entities/:entity/news", handler.APIGetNews)
		api.POST("/entities/:entity/fetch", handler.APIEnqueueFetch)

		api.GET("/tasks/:id", handler.APIGetTask)

		api.GET("/subscribers/:id/subscriptions", handler.APIListSubscriptions)
		api.POST("/subscribers/:id/subscriptions/:entity", handler.APISubscribe)
		api.DELETE("/subscribers/:id/subscriptions/:entity", handler.APIUnsubscribe)
		api.GET("/subscribers/:id/digests", handler.APIListDigests)
		api.GET("/subscribers/:id/digests/:pass", handler.APIGetDigest)

		api.GET("/monitor/status", handler.APIMonitorStatus)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Bankwatch",
			"version":     handler.version,
			"description": "News monitoring for financial entities with LLM enrichment and deduplication",
			"endpoints": map[string]string{
				"feed":          "/feeds/<entity>",
				"health":        "/health",
				"entities":      "/api/entities",
				"news":          "/api/entities/<entity>/news?from=YYYY-MM-DD&to=YYYY-MM-DD&topic=",
				"fetch":         "/api/entities/<entity>/fetch (POST)",
				"subscriptions": "/api/subscribers/<id>/subscriptions",
				"digests":       "/api/subscribers/<id>/digests",
				"monitor":       "/api/monitor/status",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key in X-API-Key or as an Authorization bearer token.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
