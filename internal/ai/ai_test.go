package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func geminiReply(text, finishReason string) string {
	encoded, _ := json.Marshal(text)
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]},"finishReason":%q}]}`, encoded, finishReason)
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestParseResult_BackfillsAndAliases(t *testing.T) {
	result, err := parseResult(`{"pasos":["Definir alcance"],"preguntas_sugeridas":["¿Cuándo?"]}`)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if len(result.Steps) != 1 || result.Steps[0] != "Definir alcance" {
		t.Fatalf("unexpected steps: %#v", result.Steps)
	}
	if result.Ambiguities == nil || len(result.Ambiguities) != 0 {
		t.Fatalf("expected empty ambiguities, got %#v", result.Ambiguities)
	}
	if len(result.Questions) != 1 {
		t.Fatalf("unexpected questions: %#v", result.Questions)
	}
}

func TestParseResult_Malformed(t *testing.T) {
	for _, raw := range []string{"not json", `["a","b"]`, "```json\n{\"steps\": [\n```"} {
		if _, err := parseResult(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("parseResult(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestGemini_Analyze(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("expected api key header, got %q", r.Header.Get("x-goog-api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "Write an essay about rivers") {
			t.Errorf("expected task text in prompt")
		}
		if !strings.Contains(string(body), `"maxOutputTokens":1024`) {
			t.Errorf("expected generation config in body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, geminiReply("```json\n{\"steps\":[\"Pick a river\",\"Outline\"],\"ambiguities\":[\"Length\"],\"questions\":[\"How long?\"]}\n```", "STOP"))
	}))
	defer ts.Close()

	client, err := NewGemini("test-key", "gemini-test", WithBaseURL(ts.URL), WithGeneration(0.5, 1024))
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	result, err := client.Analyze(context.Background(), "Write an essay about rivers")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Steps) != 2 || len(result.Ambiguities) != 1 || len(result.Questions) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGemini_SafetyRetry(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if n == 1 {
			fmt.Fprint(w, `{"candidates":[{"finishReason":"SAFETY"}]}`)
			return
		}
		if !strings.Contains(string(body), `"maxOutputTokens":2048`) || !strings.Contains(string(body), `"temperature":0.3`) {
			t.Errorf("expected fallback generation config, got %s", body)
		}
		fmt.Fprint(w, geminiReply(`{"steps":["a"],"ambiguities":[],"questions":[]}`, "STOP"))
	}))
	defer ts.Close()

	client, _ := NewGemini("test-key", "gemini-test", WithBaseURL(ts.URL))
	result, err := client.Analyze(context.Background(), "A task with \"quotes\" inside")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(result.Steps) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGemini_EmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`)
	}))
	defer ts.Close()

	client, _ := NewGemini("test-key", "gemini-test", WithBaseURL(ts.URL))
	_, err := client.Analyze(context.Background(), "task text here")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if !strings.Contains(err.Error(), "MAX_TOKENS") {
		t.Fatalf("expected finish reason in error, got %v", err)
	}
}

func TestGemini_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid"}}`)
	}))
	defer ts.Close()

	client, _ := NewGemini("test-key", "gemini-test", WithBaseURL(ts.URL))
	_, err := client.Analyze(context.Background(), "task text here")
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("did not expect timeout classification")
	}
}

func TestGemini_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	client, _ := NewGemini("test-key", "gemini-test", WithBaseURL(ts.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Analyze(ctx, "task text here")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(" ", "gemini-test"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
