// Package api serves the news operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"newsfeed/internal/news"
)

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	svc *news.Service
	log *slog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *news.Service, log *slog.Logger) *gin.Engine {
	h := &Handler{svc: svc, log: log}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), cors.Default())

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.GET("/sources", h.listSources)
		api.POST("/aggregate", h.aggregate)
		api.GET("/articles/search", h.searchArticles)
	}

	user := api.Group("/users/:user")
	{
		user.GET("/preferences", h.getPreferences)
		user.PATCH("/preferences", h.updatePreferences)
		user.GET("/feed", h.getFeed)
		user.POST("/interactions", h.recordInteraction)
		user.POST("/saved", h.saveArticle)
		user.GET("/saved", h.listSaved)
		user.POST("/digests/daily", h.generateDigest)
		user.POST("/digests/weekly", h.generateDigest)
		user.GET("/digests/:id", h.getDigest)
		user.POST("/digests/:id/read", h.markDigestRead)
	}

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			log.Error("http request", attrs...)
			return
		}
		log.Debug("http request", attrs...)
	}
}
