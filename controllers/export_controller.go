package controllers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"creative-studio-server/internal/fcpxml"
	"creative-studio-server/internal/pipeline"
)

// ExportController fronts NLE-export operations derived from an
// already-written Timeline file. Separate from JobController since export
// is a synchronous, stateless conversion rather than a background job.
type ExportController struct{}

func NewExportController() *ExportController {
	return &ExportController{}
}

type exportFCP7XMLRequest struct {
	TimelinePath string `json:"timeline_path" binding:"required"`
	OutputPath   string `json:"output_path"`
}

// ExportFCP7XML converts a written timeline.json into a FCP7 XML sequence
// for import into Premiere Pro or another NLE.
func (ec *ExportController) ExportFCP7XML(c *gin.Context) {
	var req exportFCP7XMLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	xmlPath, err := fcpxml.Generate(req.TimelinePath, req.OutputPath)
	if err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) || errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeline file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"xml_path": xmlPath})
}
