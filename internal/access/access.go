// Package access implements the static API-key gate.
package access

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// HeaderAPIKey is the dedicated credential header.
const HeaderAPIKey = "X-API-Key"

// Reject reasons.
const (
	ReasonKeyRequired = "API key required"
	ReasonInvalidKey  = "Invalid API key"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Pass   bool
	Status int
	Reason string
	Detail string
}

// Gate checks requests against an immutable allow-list of API keys.
type Gate struct {
	enabled bool
	keys    map[string]struct{}
	exempt  map[string]struct{}
}

// NewGate builds a gate. The key list is copied; later changes to keys have no effect.
func NewGate(enabled bool, keys []string, exemptPaths []string) *Gate {
	g := &Gate{
		enabled: enabled,
		keys:    make(map[string]struct{}, len(keys)),
		exempt:  make(map[string]struct{}, len(exemptPaths)),
	}
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			g.keys[trimmed] = struct{}{}
		}
	}
	for _, path := range exemptPaths {
		g.exempt[path] = struct{}{}
	}
	return g
}

// Enabled reports whether the gate enforces keys.
func (g *Gate) Enabled() bool { return g.enabled }

// KeyCount returns the size of the allow-list.
func (g *Gate) KeyCount() int { return len(g.keys) }

// Authorize decides whether r may proceed.
func (g *Gate) Authorize(r *http.Request) Decision {
	if !g.enabled {
		return Decision{Pass: true}
	}
	if _, ok := g.exempt[r.URL.Path]; ok {
		return Decision{Pass: true}
	}

	key := Credential(r)
	if key == "" {
		return Decision{
			Status: http.StatusUnauthorized,
			Reason: ReasonKeyRequired,
			Detail: "Provide API key in X-API-Key header or Authorization: Bearer <key>",
		}
	}
	if _, ok := g.keys[key]; !ok {
		log.WithFields(log.Fields{
			"path": r.URL.Path,
			"key":  Mask(key),
		}).Warn("rejected invalid api key")
		return Decision{
			Status: http.StatusForbidden,
			Reason: ReasonInvalidKey,
			Detail: "The provided API key is not valid",
		}
	}

	log.WithFields(log.Fields{
		"path": r.URL.Path,
		"key":  Mask(key),
	}).Info("api key accepted")
	return Decision{Pass: true}
}

// Credential extracts the API key from X-API-Key or a bearer Authorization header.
func Credential(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Mask shortens a key for logging.
func Mask(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}
