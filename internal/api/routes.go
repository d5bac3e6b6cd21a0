package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zulandar/perfumery/internal/db"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, deps Deps) {
	if deps.PublicDir != "" {
		router.Static(deps.PublicPrefix, deps.PublicDir)
	}
	router.GET("/healthz", handleHealth(deps))
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.GET("/perfumes", handleListPerfumes(deps))
	api.GET("/perfumes/:article", handleGetPerfume(deps))
	api.POST("/perfumes", handleCreatePerfume(deps))
	api.PUT("/perfumes/:article", handleUpdatePerfume(deps))
	api.DELETE("/perfumes/:article", handleDeletePerfume(deps))

	api.POST("/upload-image", handleUploadImage(deps))
	api.PUT("/images/:id", handleUpdateImage(deps))
	api.DELETE("/images/:id", handleDeleteImage(deps))
}

func handleHealth(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context(), deps.DB); err != nil {
			deps.Log.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
