// Package controllers holds the thin HTTP handlers fronting the Job
// Registry and the FCP7 XML export. These handlers exist only so the Job
// Registry has an external collaborator to create and poll jobs, and so a
// timeline can be exported to FCP7 XML; their route shapes are
// deliberately minimal, not a specified external contract.
package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"creative-studio-server/internal/jobs"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/visionenricher"
	"creative-studio-server/pkg/logger"
	"creative-studio-server/pkg/queue"
)

type JobController struct {
	registry *jobs.Registry
	vision   *visionenricher.Enricher
}

func NewJobController(registry *jobs.Registry, vision *visionenricher.Enricher) *JobController {
	return &JobController{registry: registry, vision: vision}
}

type createJobRequest struct {
	Clips                []string `json:"clips" binding:"required,min=1"`
	MusicPath            string   `json:"music_path"`
	TargetSeconds        int      `json:"target_seconds" binding:"required,min=1"`
	StoryStyle           string   `json:"story_style"`
	StylePreset          string   `json:"style_preset"`
	VisionAPIKeyOverride string   `json:"vision_api_key_override"`
}

// CreateJob registers a job as pending and hands it to a background
// worker over AMQP rather than running it inline, so the HTTP request
// returns immediately regardless of how long assembly takes.
func (jc *JobController) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.VisionAPIKeyOverride != "" && !jc.vision.ValidatesOverrideKey(req.VisionAPIKeyOverride) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "vision api key override does not match"})
		return
	}

	style := pipeline.NarrativeStyle(req.StoryStyle)
	if style == "" {
		style = pipeline.StyleTraditional
	}

	id := jc.registry.Create(jobs.CreateConfig{
		Clips:         req.Clips,
		MusicPath:     req.MusicPath,
		TargetSeconds: req.TargetSeconds,
		StoryStyle:    style,
		StylePreset:   req.StylePreset,
	})

	if queue.Queue != nil {
		if err := queue.PublishAssembleJob(id); err != nil {
			logger.Errorf("job controller: failed to dispatch job %s to queue: %v", id, err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

// GetJob reports a job's current status and, once completed, its selected
// clip results.
func (jc *JobController) GetJob(c *gin.Context) {
	id := c.Param("id")
	job, err := jc.registry.Get(id)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob requests cooperative cancellation of a running job.
func (jc *JobController) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if _, err := jc.registry.Get(id); err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !jc.registry.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "state": string(pipeline.JobCancelled)})
}
