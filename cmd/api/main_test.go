package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		ping     error
		code     int
		database string
	}{
		{"healthy", nil, http.StatusOK, "up"},
		{"degraded", errors.New("connection refused"), http.StatusServiceUnavailable, "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := healthCheck(func(context.Context) error { return tt.ping })
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["database"] != tt.database {
				t.Errorf("database = %q, want %q", body["database"], tt.database)
			}
		})
	}
}

func TestCorsMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name    string
		allowed []string
		method  string
		origin  string
		want    string
		code    int
	}{
		{"open", nil, "GET", "https://x.example", "*", http.StatusTeapot},
		{"listed origin", []string{"https://app.kiekky.com"}, "GET", "https://app.kiekky.com", "https://app.kiekky.com", http.StatusTeapot},
		{"unlisted origin", []string{"https://app.kiekky.com"}, "GET", "https://evil.example", "", http.StatusTeapot},
		{"preflight", nil, "OPTIONS", "https://x.example", "*", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/suggestions", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			corsMiddleware(tt.allowed)(next).ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("allow origin = %q, want %q", got, tt.want)
			}
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	h := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}
