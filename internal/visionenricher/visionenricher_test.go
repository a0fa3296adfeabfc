package visionenricher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creative-studio-server/config"
	"creative-studio-server/internal/pipeline"
)

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func writeThumbnail(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "thumb.jpg")
	require.NoError(t, os.WriteFile(p, []byte{0xFF, 0xD8, 0xFF}, 0o644))
	return p
}

func TestAnalyzeThumbnailParsesHints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"scene\":\"reception\",\"emotion\":\"joyful\",\"confidence\":0.8,\"subjects\":[\"bride\"],\"actions\":[\"dancing\"]}"}}]}`))
	}))
	defer server.Close()

	e := New(config.VisionConfig{Enabled: true, APIKey: "key", BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second}, testLogger())
	hints := e.AnalyzeThumbnail(context.Background(), writeThumbnail(t))

	require.NotNil(t, hints)
	assert.Equal(t, pipeline.SceneReception, hints.Scene)
	assert.Equal(t, pipeline.ToneJoyful, hints.Emotion)
	assert.InDelta(t, 0.8, hints.Confidence, 1e-9)
}

func TestAnalyzeThumbnailHandlesCodeFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"choices\":[{\"message\":{\"content\":\"```json\\n{\\\"scene\\\":\\\"party\\\",\\\"confidence\\\":0.5}\\n```\"}}]}"))
	}))
	defer server.Close()

	e := New(config.VisionConfig{Enabled: true, APIKey: "key", BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second}, testLogger())
	hints := e.AnalyzeThumbnail(context.Background(), writeThumbnail(t))

	require.NotNil(t, hints)
	assert.Equal(t, pipeline.SceneParty, hints.Scene)
}

func TestAnalyzeThumbnailReturnsNilWhenDisabled(t *testing.T) {
	e := New(config.VisionConfig{Enabled: false}, testLogger())
	assert.False(t, e.Enabled())
	assert.Nil(t, e.AnalyzeThumbnail(context.Background(), writeThumbnail(t)))
}

func TestAnalyzeThumbnailReturnsNilOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := New(config.VisionConfig{Enabled: true, APIKey: "key", BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second}, testLogger())
	assert.Nil(t, e.AnalyzeThumbnail(context.Background(), writeThumbnail(t)))
}
