package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "ahorro/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	var seenID string
	var seenLogger *applog.Logger
	m := NewMiddleware(func(*http.Request) string { return "203.0.113.1" }, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = applog.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/webhook", nil))

	if !strings.HasPrefix(seenID, "req_") {
		t.Errorf("generated request id = %q", seenID)
	}
	if rr.Header().Get(RequestIDHeader) != seenID {
		t.Errorf("response header = %q, want %q", rr.Header().Get(RequestIDHeader), seenID)
	}
	if seenLogger == nil || seenLogger.Component() != applog.ComponentHTTP {
		t.Errorf("request logger not stored in context: %+v", seenLogger)
	}

	// A well-formed incoming ID is kept, anything else is replaced.
	tests := []struct {
		incoming string
		keep     bool
	}{
		{"n8n-exec-42", true},
		{"bad id with spaces", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/api/webhook", nil)
		r.Header.Set(RequestIDHeader, tt.incoming)
		h.ServeHTTP(httptest.NewRecorder(), r)
		if (seenID == tt.incoming) != tt.keep {
			t.Errorf("incoming %q: got %q, keep=%v", tt.incoming, seenID, tt.keep)
		}
	}

	if got := m.GetMetrics().TotalRequests; got != 4 {
		t.Errorf("TotalRequests = %d, want 4", got)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(r.Context()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}
