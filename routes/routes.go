// Package routes wires the thin job-creation/polling/export HTTP surface
// onto a gin engine. It exists only because the Job Registry and the
// Timeline Writer need some external collaborator to create/poll jobs and
// request NLE export.
package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"creative-studio-server/controllers"
	"creative-studio-server/internal/jobs"
	"creative-studio-server/internal/visionenricher"
	"creative-studio-server/middleware"
)

func SetupRoutes(r *gin.Engine, registry *jobs.Registry, vision *visionenricher.Enricher) {
	jobController := controllers.NewJobController(registry, vision)
	exportController := controllers.NewExportController()

	r.GET("/health", healthCheck)
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Highlight Pipeline Job API",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		jobsGroup := v1.Group("/jobs")
		jobsGroup.Use(middleware.APIRateLimit())
		{
			jobsGroup.POST("", jobController.CreateJob)
			jobsGroup.GET("/:id", jobController.GetJob)
			jobsGroup.POST("/:id/cancel", jobController.CancelJob)
		}

		exportGroup := v1.Group("/export")
		exportGroup.Use(middleware.APIRateLimit())
		{
			exportGroup.POST("/fcp7-xml", exportController.ExportFCP7XML)
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}