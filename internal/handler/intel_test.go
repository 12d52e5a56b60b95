package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"hydra-waf/internal/intel"
)

func TestWriteLookupErrorMapsRateLimit(t *testing.T) {
	w := httptest.NewRecorder()
	writeLookupError(w, &intel.RateLimitError{Provider: "virustotal", RetryAfter: 42 * time.Second})

	if w.Code != 429 {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}
	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["retry_after"] != 42.0 {
		t.Errorf("retry_after = %v, want 42", body["retry_after"])
	}
	if body["detail"] == "" {
		t.Error("missing detail")
	}
}

func TestWriteLookupErrorMapsUpstreamFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"status", &intel.UpstreamError{Provider: "otx", Status: 500}},
		{"transport", &intel.UpstreamError{Provider: "abuseipdb", Err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeLookupError(w, tt.err)

		if w.Code != 502 {
			t.Errorf("%s: status = %d, want 502", tt.name, w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["detail"] != "Threat intel provider unreachable" {
			t.Errorf("%s: detail = %q", tt.name, body["detail"])
		}
		if body["error"] == "" {
			t.Errorf("%s: missing error field", tt.name)
		}
	}
}

func TestWriteLookupErrorDefaultsToBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	writeLookupError(w, errors.New("unknown provider"))

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["detail"] != "unknown provider" {
		t.Errorf("detail = %q", body["detail"])
	}
}
