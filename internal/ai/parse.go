package ai

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// resultKeys lists accepted JSON keys per field, preferred first.
var resultKeys = struct {
	steps, ambiguities, questions []string
}{
	steps:       []string{"steps", "pasos"},
	ambiguities: []string{"ambiguities", "ambiguedades"},
	questions:   []string{"questions", "preguntas_sugeridas", "preguntas"},
}

// stripFences removes a surrounding ```json or ``` markdown block.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseResult decodes model text into a Result. Missing fields become empty lists.
func parseResult(raw string) (Result, error) {
	text := stripFences(raw)
	if !gjson.Valid(text) {
		return Result{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return Result{}, fmt.Errorf("%w: expected a json object", ErrMalformed)
	}

	result := Result{
		Steps:       stringList(doc, resultKeys.steps),
		Ambiguities: stringList(doc, resultKeys.ambiguities),
		Questions:   stringList(doc, resultKeys.questions),
	}
	if result.Steps == nil || result.Ambiguities == nil || result.Questions == nil {
		keys := make([]string, 0)
		doc.ForEach(func(key, _ gjson.Result) bool {
			keys = append(keys, key.String())
			return true
		})
		log.WithField("keys", keys).Warn("ai: incomplete response, filling missing fields")
	}
	if result.Steps == nil {
		result.Steps = []string{}
	}
	if result.Ambiguities == nil {
		result.Ambiguities = []string{}
	}
	if result.Questions == nil {
		result.Questions = []string{}
	}
	return result, nil
}

// stringList returns the first present key as a list of strings, or nil.
func stringList(doc gjson.Result, keys []string) []string {
	for _, key := range keys {
		value := doc.Get(key)
		if !value.Exists() {
			continue
		}
		out := []string{}
		if !value.IsArray() {
			if s := strings.TrimSpace(value.String()); s != "" {
				out = append(out, s)
			}
			return out
		}
		for _, item := range value.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
