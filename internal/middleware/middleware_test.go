package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		key        string
		header     string
		wantStatus int
	}{
		{"no key configured", "", "", http.StatusNoContent},
		{"valid key", "secret", "Bearer secret", http.StatusNoContent},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer wrong", http.StatusUnauthorized},
		{"missing scheme", "secret", "secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			RequireAPIKey(tt.key)(ok).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestMetricsPassesResponseThrough(t *testing.T) {
	handler := WrapHandler("test_endpoint", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		http.Error(w, "nope", http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	if w.Header().Get("X-Test") != "1" {
		t.Error("Expected handler headers to be kept")
	}
	if w.Body.String() != "nope\n" {
		t.Errorf("Expected body to be kept, got %q", w.Body.String())
	}
}
