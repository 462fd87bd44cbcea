package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/demystify-app/demystify-api/internal/ai"
	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/cache"
	"github.com/demystify-app/demystify-api/internal/models"
)

type stubAnalyzer struct {
	mu     sync.Mutex
	calls  int
	result ai.Result
	err    error
	delay  time.Duration
}

func (s *stubAnalyzer) Analyze(ctx context.Context, text string) (ai.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ai.Result{}, ai.ErrTimeout
		}
	}
	return s.result, s.err
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingHistory struct {
	records []*models.Analysis
	err     error
}

func (h *recordingHistory) Append(_ context.Context, record *models.Analysis) error {
	if h.err != nil {
		return h.err
	}
	record.ID = uint64(len(h.records) + 1)
	h.records = append(h.records, record)
	return nil
}

func sampleResult() ai.Result {
	return ai.Result{
		Steps:       []string{"Define the market", "Collect data"},
		Ambiguities: []string{"Which market?"},
		Questions:   []string{"What format?", "How long?", "Who is the audience?"},
	}
}

func TestValidateText(t *testing.T) {
	if _, err := ValidateText("short"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected validation error for short text, got %v", err)
	}
	if _, err := ValidateText(strings.Repeat("a", 2001)); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected validation error for long text, got %v", err)
	}
	if _, err := ValidateText("!!!!!!!!!!!!!!!"); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected validation error for text without alphanumerics, got %v", err)
	}
	if _, err := ValidateText("          "); !apierror.Is(err, apierror.KindValidation) {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}

	got, err := ValidateText("  Write a <b>report</b>\x00 for Friday\n")
	if err != nil {
		t.Fatalf("ValidateText: %v", err)
	}
	if want := "Write a &lt;b&gt;report&lt;/b&gt; for Friday"; got != want {
		t.Fatalf("sanitized = %q, want %q", got, want)
	}

	kept, err := ValidateText("line one\n\tline two")
	if err != nil {
		t.Fatalf("ValidateText: %v", err)
	}
	if kept != "line one\n\tline two" {
		t.Fatalf("expected newline and tab to survive, got %q", kept)
	}
}

func TestService_AnalyzeSuccessPersistsAndCaches(t *testing.T) {
	analyzer := &stubAnalyzer{result: sampleResult()}
	history := &recordingHistory{}
	svc := NewService(Options{
		Analyzer: analyzer,
		Cache:    cache.New[Response](time.Minute),
		History:  history,
		Timeout:  time.Second,
	})

	resp, err := svc.Analyze(context.Background(), 7, "Prepare the market analysis for Friday")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Metadata.Cached {
		t.Fatalf("first call must not be cached")
	}
	if resp.Metadata.TotalSteps != 2 || resp.Metadata.TotalAmbiguities != 1 || resp.Metadata.TotalQuestions != 3 {
		t.Fatalf("unexpected totals: %+v", resp.Metadata)
	}
	if resp.Metadata.Timestamp == "" {
		t.Fatalf("expected timestamp")
	}
	if len(history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(history.records))
	}
	record := history.records[0]
	if record.UserID != 7 || record.OriginalText != "Prepare the market analysis for Friday" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if steps := DecodeList(record.Steps); len(steps) != 2 || steps[0] != "Define the market" {
		t.Fatalf("unexpected stored steps: %v", steps)
	}

	again, err := svc.Analyze(context.Background(), 7, "Prepare the market analysis for Friday")
	if err != nil {
		t.Fatalf("Analyze (cached): %v", err)
	}
	if !again.Metadata.Cached {
		t.Fatalf("second call should be served from cache")
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("analyzer called %d times, want 1", analyzer.callCount())
	}
	if len(history.records) != 1 {
		t.Fatalf("cache hits must not be persisted")
	}
}

func TestService_AnalyzeWithoutCacheCallsUpstreamEveryTime(t *testing.T) {
	analyzer := &stubAnalyzer{result: sampleResult()}
	svc := NewService(Options{Analyzer: analyzer, Timeout: time.Second})

	for i := 0; i < 2; i++ {
		resp, err := svc.Analyze(context.Background(), 0, "Build an app to manage pending tasks")
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if resp.Metadata.Cached {
			t.Fatalf("disabled cache must never report cached")
		}
	}
	if analyzer.callCount() != 2 {
		t.Fatalf("analyzer called %d times, want 2", analyzer.callCount())
	}
}

func TestService_AnalyzeNotConfigured(t *testing.T) {
	svc := NewService(Options{})
	_, err := svc.Analyze(context.Background(), 1, "Prepare a presentation about climate")
	if !apierror.Is(err, apierror.KindServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}

func TestService_AnalyzeTimeoutIsNotCached(t *testing.T) {
	analyzer := &stubAnalyzer{result: sampleResult(), delay: time.Second}
	results := cache.New[Response](time.Minute)
	history := &recordingHistory{}
	svc := NewService(Options{Analyzer: analyzer, Cache: results, History: history, Timeout: 20 * time.Millisecond})

	_, err := svc.Analyze(context.Background(), 1, "Write an essay about the Second World War")
	if !apierror.Is(err, apierror.KindUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
	if apierror.KindOf(err).Status() != 504 {
		t.Fatalf("expected 504 status")
	}
	if results.Size() != 0 {
		t.Fatalf("timeout must not populate the cache")
	}
	if len(history.records) != 0 {
		t.Fatalf("timeout must not persist history")
	}
}

func TestService_AnalyzeUpstreamFailure(t *testing.T) {
	analyzer := &stubAnalyzer{err: ai.ErrMalformed}
	results := cache.New[Response](time.Minute)
	svc := NewService(Options{Analyzer: analyzer, Cache: results, Timeout: time.Second})

	_, err := svc.Analyze(context.Background(), 1, "I need sales data showing growth")
	if !apierror.Is(err, apierror.KindUpstreamFailure) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if !errors.Is(err, ai.ErrMalformed) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if results.Size() != 0 {
		t.Fatalf("failure must not populate the cache")
	}
}

func TestService_PersistFailureDoesNotFailRequest(t *testing.T) {
	analyzer := &stubAnalyzer{result: sampleResult()}
	history := &recordingHistory{err: errors.New("database locked")}
	results := cache.New[Response](time.Minute)
	svc := NewService(Options{Analyzer: analyzer, Cache: results, History: history, Timeout: time.Second})

	resp, err := svc.Analyze(context.Background(), 3, "Prepare a presentation about climate change")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Metadata.TotalSteps != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if results.Size() != 1 {
		t.Fatalf("successful analysis should be cached even when history fails")
	}
}

func TestService_NilListsBecomeEmpty(t *testing.T) {
	analyzer := &stubAnalyzer{result: ai.Result{Steps: []string{"Only step"}}}
	svc := NewService(Options{Analyzer: analyzer, Timeout: time.Second})

	resp, err := svc.Analyze(context.Background(), 0, "Build an app to manage pending tasks")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Ambiguities == nil || resp.Questions == nil {
		t.Fatalf("expected empty lists, got %+v", resp)
	}
}

func TestDecodeList(t *testing.T) {
	if got := DecodeList(nil); len(got) != 0 || got == nil {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
	if got := DecodeList([]byte("not json")); len(got) != 0 {
		t.Fatalf("expected empty list on bad input, got %v", got)
	}
	if got := DecodeList([]byte(`["a","b"]`)); len(got) != 2 {
		t.Fatalf("unexpected decode: %v", got)
	}
}
