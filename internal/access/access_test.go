package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var exempt = []string{"/", "/health", "/docs", "/redoc", "/openapi.json"}

func newRequest(path string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestGate_DisabledAlwaysPasses(t *testing.T) {
	gate := NewGate(false, []string{"secret-key-1"}, exempt)
	for _, headers := range []map[string]string{
		nil,
		{HeaderAPIKey: "wrong"},
		{HeaderAPIKey: "secret-key-1"},
	} {
		if d := gate.Authorize(newRequest("/api/analyze", headers)); !d.Pass {
			t.Fatalf("expected pass when disabled, got %+v", d)
		}
	}
}

func TestGate_EmptyAllowListRejectsNonExempt(t *testing.T) {
	gate := NewGate(true, nil, exempt)

	d := gate.Authorize(newRequest("/api/analyze", map[string]string{HeaderAPIKey: "anything"}))
	if d.Pass || d.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", d)
	}
	d = gate.Authorize(newRequest("/api/stats", nil))
	if d.Pass || d.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", d)
	}
	if d := gate.Authorize(newRequest("/health", nil)); !d.Pass {
		t.Fatalf("expected exempt path to pass, got %+v", d)
	}
}

func TestGate_Credentials(t *testing.T) {
	gate := NewGate(true, []string{" secret-key-1 ", "secret-key-2"}, exempt)

	cases := []struct {
		name    string
		headers map[string]string
		pass    bool
		status  int
		reason  string
	}{
		{name: "missing", pass: false, status: http.StatusUnauthorized, reason: ReasonKeyRequired},
		{name: "header", headers: map[string]string{HeaderAPIKey: "secret-key-1"}, pass: true},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer secret-key-2"}, pass: true},
		{name: "lowercase bearer", headers: map[string]string{"Authorization": "bearer secret-key-2"}, pass: true},
		{name: "invalid", headers: map[string]string{HeaderAPIKey: "nope"}, pass: false, status: http.StatusForbidden, reason: ReasonInvalidKey},
		{name: "header wins over bearer", headers: map[string]string{HeaderAPIKey: "nope", "Authorization": "Bearer secret-key-1"}, pass: false, status: http.StatusForbidden, reason: ReasonInvalidKey},
		{name: "non bearer scheme", headers: map[string]string{"Authorization": "Basic abc"}, pass: false, status: http.StatusUnauthorized, reason: ReasonKeyRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Authorize(newRequest("/api/analyze", tc.headers))
			if d.Pass != tc.pass {
				t.Fatalf("expected pass=%v, got %+v", tc.pass, d)
			}
			if !tc.pass && (d.Status != tc.status || d.Reason != tc.reason) {
				t.Fatalf("expected %d %q, got %d %q", tc.status, tc.reason, d.Status, d.Reason)
			}
		})
	}
}

func TestGate_AllowListIsCopied(t *testing.T) {
	keys := []string{"secret-key-1"}
	gate := NewGate(true, keys, exempt)
	keys[0] = "mutated"

	if d := gate.Authorize(newRequest("/api/analyze", map[string]string{HeaderAPIKey: "secret-key-1"})); !d.Pass {
		t.Fatalf("expected original key to pass, got %+v", d)
	}
	if gate.KeyCount() != 1 {
		t.Fatalf("expected 1 key, got %d", gate.KeyCount())
	}
}

func TestMask(t *testing.T) {
	if got := Mask("short"); got != "***" {
		t.Fatalf("expected ***, got %q", got)
	}
	if got := Mask("abcdefghijkl"); got != "abcdefgh..." {
		t.Fatalf("expected abcdefgh..., got %q", got)
	}
}
