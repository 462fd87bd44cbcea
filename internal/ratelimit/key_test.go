package ratelimit

import (
	"net/http/httptest"
	"testing"
)

func TestClientIdentity(t *testing.T) {
	cases := []struct {
		name      string
		forwarded string
		remote    string
		want      string
	}{
		{name: "forwarded first entry", forwarded: " 10.0.0.1 , 10.0.0.2", remote: "192.168.1.1:1234", want: "10.0.0.1"},
		{name: "remote host", remote: "192.168.1.1:1234", want: "192.168.1.1"},
		{name: "remote without port", remote: "192.168.1.1", want: "192.168.1.1"},
		{name: "empty forwarded entry falls back", forwarded: " ,10.0.0.2", remote: "192.168.1.1:1234", want: "192.168.1.1"},
		{name: "nothing available", remote: "", want: UnknownIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/analyze", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientIdentity(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsExempt(t *testing.T) {
	exempt := []string{"/health", "/docs"}
	if !IsExempt("/health", exempt) {
		t.Fatalf("expected /health exempt")
	}
	if IsExempt("/health/extra", exempt) {
		t.Fatalf("expected exact match only")
	}
	if IsExempt("/api/analyze", exempt) {
		t.Fatalf("expected /api/analyze not exempt")
	}
}
