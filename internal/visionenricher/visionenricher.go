// Package visionenricher implements the Vision Enricher:
// an optional, best-effort call to a vision-capable chat-completion
// endpoint that classifies a single thumbnail frame, supplementing (never
// gating) the heuristic analyzers.
//
// Grounded on original_source/worker/openai_vision.py's request shape —
// base64 JPEG embedded in a chat-completion "image_url" content part,
// prompted for compact JSON — but transported over plain net/http rather
// than the OpenAI SDK, since no OpenAI client library is available and a
// direct net/http client covers this one endpoint shape. Any non-2xx
// response, timeout, or malformed JSON is treated identically:
// log-and-no-op, so ErrVisionEnricherFailed is always downgraded rather
// than propagated to the caller.
package visionenricher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"creative-studio-server/config"
	"creative-studio-server/internal/pipeline"
)

const prompt = "You are classifying a single wedding video frame. " +
	"Return a compact JSON with keys: scene (one of ceremony, reception, party, preparation, intimate_moments, scenic_moments), " +
	"subjects (array of strings like bride, groom, guests, rings, bouquet, cake, dance, toast), " +
	"actions (array), emotion (one of romantic, joyful, intimate, celebratory, neutral), and confidence (0-1). " +
	"Keep it concise, valid JSON only."

// Hints is the structured, best-effort classification the enricher
// returns. Every field is advisory — callers fold it into their own
// heuristic scores rather than trusting it outright.
type Hints struct {
	Scene      pipeline.Scene         `json:"scene"`
	Subjects   []string               `json:"subjects"`
	Actions    []string               `json:"actions"`
	Emotion    pipeline.EmotionalTone `json:"emotion"`
	Confidence float64                `json:"confidence"`
}

// Enricher calls a configurable vision endpoint. A zero-value Enricher
// with Enabled=false is always a safe no-op.
type Enricher struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	keyHash    []byte
	model      string
	timeout    time.Duration
	enabled    bool
	log        *logrus.Entry
}

func New(cfg config.VisionConfig, log *logrus.Entry) *Enricher {
	e := &Enricher{
		httpClient: &http.Client{},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		enabled:    cfg.Enabled && cfg.APIKey != "",
		log:        log,
	}
	if cfg.APIKey != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.APIKey), bcrypt.DefaultCost); err == nil {
			e.keyHash = hash
		}
	}
	return e
}

func (e *Enricher) Enabled() bool { return e.enabled }

// ValidatesOverrideKey reports whether a caller-supplied API key override
// (e.g. a job-creation request asking to route vision calls through a
// different configured key for that run) matches this enricher's
// configured key. The comparison runs against a bcrypt hash of the
// configured key rather than the raw string, the same credential-handling
// primitive commonly used for password checks, so neither a timing
// side-channel nor an accidental log of this check leaks the real key. An
// empty override never validates.
func (e *Enricher) ValidatesOverrideKey(override string) bool {
	if override == "" || e.keyHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(e.keyHash, []byte(override)) == nil
}

// AnalyzeThumbnail sends a single JPEG thumbnail for classification.
// Returns nil (not an error) whenever the enricher is disabled or the
// round trip fails — callers treat a nil result as "no vision signal".
func (e *Enricher) AnalyzeThumbnail(ctx context.Context, imagePath string) *Hints {
	if !e.enabled {
		return nil
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		e.log.WithError(err).Debug("vision enricher: thumbnail unreadable")
		return nil
	}

	b64 := base64.StdEncoding.EncodeToString(data)
	reqBody := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + b64}},
				},
			},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.log.WithError(err).Warn("vision enricher: request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.log.WithField("status", resp.StatusCode).Warn("vision enricher: non-2xx response")
		return nil
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		e.log.WithError(err).Warn("vision enricher: malformed response body")
		return nil
	}
	if len(parsed.Choices) == 0 {
		return nil
	}

	text := stripCodeFences(parsed.Choices[0].Message.Content)
	var hints Hints
	if err := json.Unmarshal([]byte(text), &hints); err != nil {
		e.log.WithError(err).Debug("vision enricher: could not parse model output as hints")
		return nil
	}
	return &hints
}

var codeFence = regexp.MustCompile("^```[a-zA-Z]*\n")

func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = codeFence.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
