// Package analysis runs task breakdowns: validation, cache lookup, the bounded
// upstream call, best-effort history persistence and cache fill.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/demystify-app/demystify-api/internal/ai"
	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/cache"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// History receives completed analyses.
type History interface {
	Append(ctx context.Context, record *models.Analysis) error
}

// Metadata describes how a Response was produced.
type Metadata struct {
	TotalSteps       int    `json:"total_steps"`
	TotalAmbiguities int    `json:"total_ambiguities"`
	TotalQuestions   int    `json:"total_questions"`
	Timestamp        string `json:"timestamp"`
	Cached           bool   `json:"cached"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

// Response is the analyze endpoint payload.
type Response struct {
	Steps       []string `json:"steps"`
	Ambiguities []string `json:"ambiguities"`
	Questions   []string `json:"questions"`
	Metadata    Metadata `json:"metadata"`
}

// Options configures a Service. Analyzer, Cache and History may be nil.
type Options struct {
	Analyzer ai.Analyzer
	Cache    *cache.Cache[Response]
	History  History
	Timeout  time.Duration
}

// Service coordinates one analysis request.
type Service struct {
	analyzer ai.Analyzer
	cache    *cache.Cache[Response]
	history  History
	timeout  time.Duration
	now      func() time.Time
}

// NewService builds a Service from opts.
func NewService(opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = settings.DefaultGeminiTimeout
	}
	return &Service{
		analyzer: opts.Analyzer,
		cache:    opts.Cache,
		history:  opts.History,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Ready reports whether an analyzer is configured.
func (s *Service) Ready() bool { return s != nil && s.analyzer != nil }

// Cache returns the result cache, or nil when caching is disabled.
func (s *Service) Cache() *cache.Cache[Response] { return s.cache }

// Analyze validates text and returns its breakdown for userID.
func (s *Service) Analyze(ctx context.Context, userID uint64, text string) (Response, error) {
	cleaned, errValidate := ValidateText(text)
	if errValidate != nil {
		return Response{}, errValidate
	}
	if !s.Ready() {
		return Response{}, apierror.New(apierror.KindServiceUnavailable, "AI service unavailable").
			WithDetail("The analysis service is not configured. Check GEMINI_API_KEY.")
	}

	key := cache.Fingerprint(cleaned)
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			log.WithField("user_id", userID).Debug("analysis cache hit")
			hit.Metadata.Cached = true
			return hit, nil
		}
		log.WithField("user_id", userID).Debug("analysis cache miss")
	}

	started := s.now()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, errAnalyze := s.analyzer.Analyze(callCtx, cleaned)
	if errAnalyze == nil && callCtx.Err() != nil {
		errAnalyze = ai.ErrTimeout
	}
	cancel()
	elapsed := s.now().Sub(started)

	if errAnalyze != nil {
		if errors.Is(errAnalyze, ai.ErrTimeout) || errors.Is(errAnalyze, context.DeadlineExceeded) {
			log.WithField("timeout", s.timeout).Warn("analysis timed out")
			return Response{}, apierror.Wrap(apierror.KindUpstreamTimeout, "Timeout", errAnalyze).
				WithDetail("The analysis took too long. Try a shorter text.")
		}
		return Response{}, apierror.Wrap(apierror.KindUpstreamFailure, "Error processing the request", errAnalyze)
	}

	resp := Response{
		Steps:       nonNil(result.Steps),
		Ambiguities: nonNil(result.Ambiguities),
		Questions:   nonNil(result.Questions),
	}
	resp.Metadata = Metadata{
		TotalSteps:       len(resp.Steps),
		TotalAmbiguities: len(resp.Ambiguities),
		TotalQuestions:   len(resp.Questions),
		Timestamp:        s.now().UTC().Format(time.RFC3339),
		Cached:           false,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}
	log.WithFields(log.Fields{
		"user_id":     userID,
		"steps":       resp.Metadata.TotalSteps,
		"ambiguities": resp.Metadata.TotalAmbiguities,
		"questions":   resp.Metadata.TotalQuestions,
		"elapsed_ms":  resp.Metadata.ProcessingTimeMS,
	}).Info("analysis completed")

	s.persist(ctx, userID, cleaned, resp)

	if s.cache != nil {
		s.cache.Set(key, resp)
	}
	return resp, nil
}

// persist appends resp to the user's history. Failures are logged only.
func (s *Service) persist(ctx context.Context, userID uint64, text string, resp Response) {
	if s.history == nil || userID == 0 {
		return
	}
	record := &models.Analysis{
		UserID:           userID,
		OriginalText:     text,
		Steps:            encodeList(resp.Steps),
		Ambiguities:      encodeList(resp.Ambiguities),
		Questions:        encodeList(resp.Questions),
		ProcessingTimeMS: resp.Metadata.ProcessingTimeMS,
		Cached:           false,
	}
	if errAppend := s.history.Append(context.WithoutCancel(ctx), record); errAppend != nil {
		log.WithError(errAppend).WithField("user_id", userID).Error("failed to save analysis history")
		return
	}
	log.WithFields(log.Fields{"user_id": userID, "analysis_id": record.ID}).Debug("analysis saved to history")
}

func encodeList(items []string) datatypes.JSON {
	raw, errMarshal := json.Marshal(nonNil(items))
	if errMarshal != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// DecodeList reads a JSON string array column, returning an empty slice on bad input.
func DecodeList(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return []string{}
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
