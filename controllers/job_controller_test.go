package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/config"
	"creative-studio-server/internal/jobs"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/styles"
	"creative-studio-server/internal/visionenricher"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) AnalyzeFast(_ context.Context, clip string, _ pipeline.NarrativeStyle, _ styles.Preset) (pipeline.SelectionResult, error) {
	return pipeline.SelectionResult{ClipPath: clip, FinalScore: 0.5}, nil
}

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestController() (*gin.Engine, *jobs.Registry) {
	registry := jobs.New(fakeAnalyzer{})
	vision := visionenricher.New(config.VisionConfig{}, testLogEntry())
	jc := NewJobController(registry, vision)

	r := gin.New()
	r.POST("/jobs", jc.CreateJob)
	r.GET("/jobs/:id", jc.GetJob)
	r.POST("/jobs/:id/cancel", jc.CancelJob)
	return r, registry
}

func TestCreateJobReturnsAcceptedWithJobID(t *testing.T) {
	r, _ := newTestController()

	body, _ := json.Marshal(map[string]interface{}{
		"clips":          []string{"a.mp4", "b.mp4"},
		"target_seconds": 30,
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
}

func TestCreateJobRejectsMissingClips(t *testing.T) {
	r, _ := newTestController()

	body, _ := json.Marshal(map[string]interface{}{"target_seconds": 30})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJobRejectsWrongVisionOverride(t *testing.T) {
	registry := jobs.New(fakeAnalyzer{})
	vision := visionenricher.New(config.VisionConfig{Enabled: true, APIKey: "real-key"}, testLogEntry())
	jc := NewJobController(registry, vision)

	r := gin.New()
	r.POST("/jobs", jc.CreateJob)

	body, _ := json.Marshal(map[string]interface{}{
		"clips":                    []string{"a.mp4"},
		"target_seconds":           30,
		"vision_api_key_override": "wrong-key",
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetJobReturnsNotFoundForUnknownID(t *testing.T) {
	r, _ := newTestController()

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJobReturnsCreatedJob(t *testing.T) {
	r, registry := newTestController()

	id := registry.Create(jobs.CreateConfig{Clips: []string{"a.mp4"}, TargetSeconds: 10})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var job pipeline.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, id, job.ID)
}

func TestCancelJobReturnsConflictForPendingJob(t *testing.T) {
	r, registry := newTestController()

	id := registry.Create(jobs.CreateConfig{Clips: []string{"a.mp4"}, TargetSeconds: 10})

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelJobReturnsNotFoundForUnknownID(t *testing.T) {
	r, _ := newTestController()

	req := httptest.NewRequest(http.MethodPost, "/jobs/does-not-exist/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
