// Package ai talks to the generative model that breaks tasks into steps.
package ai

import (
	"context"
	"errors"
)

// ErrTimeout is returned when the model call exceeds its deadline.
var ErrTimeout = errors.New("ai: request timed out")

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("ai: empty response")

// ErrMalformed is returned when the model text is not the expected JSON.
var ErrMalformed = errors.New("ai: malformed response")

// Result is the structured breakdown of a task.
type Result struct {
	Steps       []string `json:"steps"`
	Ambiguities []string `json:"ambiguities"`
	Questions   []string `json:"questions"`
}

// Analyzer turns free-text task descriptions into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Result, error)
}
