package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	finishReasonSafety   = "SAFETY"
	fallbackTemperature  = 0.3
	fallbackOutputTokens = 2048
	maxErrorBody         = 4096
)

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiOption configures a Gemini client.
type GeminiOption func(*Gemini)

// WithBaseURL overrides the REST endpoint.
func WithBaseURL(baseURL string) GeminiOption {
	return func(g *Gemini) {
		if baseURL != "" {
			g.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *Gemini) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithGeneration sets temperature and the output token cap.
func WithGeneration(temperature float64, maxOutputTokens int) GeminiOption {
	return func(g *Gemini) {
		g.temperature = temperature
		if maxOutputTokens > 0 {
			g.maxOutputTokens = maxOutputTokens
		}
	}
}

// Gemini calls the Generative Language generateContent endpoint.
type Gemini struct {
	apiKey          string
	model           string
	baseURL         string
	httpClient      *http.Client
	temperature     float64
	maxOutputTokens int
}

// NewGemini creates a client for model.
func NewGemini(apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: gemini api key is empty")
	}
	g := &Gemini{
		apiKey:          apiKey,
		model:           model,
		baseURL:         "https://generativelanguage.googleapis.com/v1beta",
		httpClient:      http.DefaultClient,
		temperature:     0.5,
		maxOutputTokens: 4096,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Analyze asks the model for a breakdown of task. A response blocked for
// safety is retried once with a simpler prompt and more conservative settings.
func (g *Gemini) Analyze(ctx context.Context, task string) (Result, error) {
	resp, err := g.generate(ctx, buildPrompt(task), g.temperature, g.maxOutputTokens)
	if err != nil {
		return Result{}, err
	}
	if resp.finishReason == finishReasonSafety {
		log.WithField("model", g.model).Warn("ai: response blocked for safety, retrying with fallback prompt")
		resp, err = g.generate(ctx, buildFallbackPrompt(task), fallbackTemperature, fallbackOutputTokens)
		if err != nil {
			return Result{}, err
		}
	}
	if strings.TrimSpace(resp.text) == "" {
		reason := resp.finishReason
		if reason == "" {
			reason = "unknown"
		}
		return Result{}, fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, reason)
	}

	result, errParse := parseResult(resp.text)
	if errParse != nil {
		log.WithError(errParse).WithField("model", g.model).Error("ai: could not parse model output")
		return Result{}, errParse
	}
	log.WithFields(log.Fields{
		"model":       g.model,
		"steps":       len(result.Steps),
		"ambiguities": len(result.Ambiguities),
		"questions":   len(result.Questions),
	}).Info("ai: analysis completed")
	return result, nil
}

type generateResponse struct {
	text         string
	finishReason string
}

func (g *Gemini) generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (generateResponse, error) {
	body, errMarshal := json.Marshal(g.requestBody(prompt, temperature, maxTokens))
	if errMarshal != nil {
		return generateResponse{}, fmt.Errorf("ai: marshal request: %w", errMarshal)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if errReq != nil {
		return generateResponse{}, fmt.Errorf("ai: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	httpResp, errDo := g.httpClient.Do(req)
	if errDo != nil {
		return generateResponse{}, classify(ctx, errDo)
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("ai: close response body")
		}
	}()

	payload, errRead := io.ReadAll(httpResp.Body)
	if errRead != nil {
		return generateResponse{}, classify(ctx, errRead)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message := gjson.GetBytes(payload, "error.message").String()
		if message == "" {
			message = truncate(string(payload), maxErrorBody)
		}
		return generateResponse{}, fmt.Errorf("ai: gemini returned %d: %s", httpResp.StatusCode, message)
	}

	candidate := gjson.GetBytes(payload, "candidates.0")
	var text strings.Builder
	for _, part := range candidate.Get("content.parts").Array() {
		text.WriteString(part.Get("text").String())
	}
	reason := candidate.Get("finishReason").String()
	if !candidate.Exists() {
		reason = gjson.GetBytes(payload, "promptFeedback.blockReason").String()
	}
	return generateResponse{text: text.String(), finishReason: reason}, nil
}

func (g *Gemini) requestBody(prompt string, temperature float64, maxTokens int) map[string]any {
	safety := make([]map[string]string, 0, len(safetyCategories))
	for _, category := range safetyCategories {
		safety = append(safety, map[string]string{"category": category, "threshold": "BLOCK_NONE"})
	}
	return map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     temperature,
			"maxOutputTokens": maxTokens,
		},
		"safetySettings": safety,
	}
}

// classify maps transport errors caused by the context deadline to ErrTimeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("ai: request failed: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
