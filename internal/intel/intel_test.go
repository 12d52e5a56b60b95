package intel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hydra-waf/internal/models"
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := New("vt-key", "otx-key", "abuse-key")
	s.vtBase = srv.URL
	s.otxBase = srv.URL
	s.abuseBase = srv.URL
	return s
}

func TestVTRiskHeuristic(t *testing.T) {
	tests := []struct {
		malicious int
		want      string
	}{
		{0, "clean"},
		{1, "medium"},
		{2, "medium"},
		{3, "high"},
		{17, "high"},
	}
	for _, tt := range tests {
		s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("x-apikey") != "vt-key" {
				t.Error("missing x-apikey header")
			}
			fmt.Fprintf(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":%d}}}}`, tt.malicious)
		}))
		got, err := s.vtLookup(context.Background(), "ip", "1.2.3.4")
		if err != nil {
			t.Fatalf("vtLookup: %v", err)
		}
		if got.Risk != tt.want {
			t.Errorf("malicious=%d: risk = %q, want %q", tt.malicious, got.Risk, tt.want)
		}
	}
}

func TestOTXRiskHeuristic(t *testing.T) {
	tests := []struct {
		pulses int
		want   string
	}{
		{0, "clean"},
		{1, "medium"},
		{4, "medium"},
		{5, "high"},
	}
	for _, tt := range tests {
		s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"pulse_info":{"count":%d}}`, tt.pulses)
		}))
		got, err := s.otxLookup(context.Background(), "domain", "evil.example")
		if err != nil {
			t.Fatalf("otxLookup: %v", err)
		}
		if got.Risk != tt.want {
			t.Errorf("pulses=%d: risk = %q, want %q", tt.pulses, got.Risk, tt.want)
		}
	}
}

func TestAbuseRiskHeuristic(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "clean"},
		{10, "low"},
		{24, "low"},
		{25, "medium"},
		{74, "medium"},
		{75, "high"},
		{100, "high"},
	}
	for _, tt := range tests {
		s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Key") != "abuse-key" {
				t.Error("missing Key header")
			}
			fmt.Fprintf(w, `{"data":{"abuseConfidenceScore":%d,"totalReports":3}}`, tt.score)
		}))
		got, err := s.abuseLookup(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("abuseLookup: %v", err)
		}
		if got.Risk != tt.want {
			t.Errorf("score=%d: risk = %q, want %q", tt.score, got.Risk, tt.want)
		}
	}
}

func TestNotFoundIsUnknown(t *testing.T) {
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, lookup := range []func() (models.TIResult, error){
		func() (models.TIResult, error) { return s.vtLookup(context.Background(), "hash", "abc") },
		func() (models.TIResult, error) { return s.otxLookup(context.Background(), "ip", "9.9.9.9") },
		func() (models.TIResult, error) { return s.abuseLookup(context.Background(), "9.9.9.9") },
	} {
		r, err := lookup()
		if err != nil {
			t.Fatalf("404 lookup: %v", err)
		}
		if got := r.Risk + "/" + r.Summary; got != "unknown/Not found" {
			t.Errorf("404 result = %q, want %q", got, "unknown/Not found")
		}
	}
}

func TestTransportFailureIsUpstreamError(t *testing.T) {
	s := New("vt-key", "", "")
	s.vtBase = "http://127.0.0.1:1" // connection refused

	_, err := s.Lookup(context.Background(), "ip", "1.2.3.4")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if ue.Provider != "virustotal" {
		t.Errorf("provider = %q", ue.Provider)
	}
}

func TestFailedLookupIsNotCached(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":5}}}}`)
	}))

	_, err := s.LookupProvider(context.Background(), "virustotal", "ip", "1.2.3.4")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want *UpstreamError with status 500", err)
	}

	// The provider recovered; the failure must not have been cached.
	result, err := s.LookupProvider(context.Background(), "virustotal", "ip", "1.2.3.4")
	if err != nil {
		t.Fatalf("lookup after recovery: %v", err)
	}
	if result.Risk != "high" {
		t.Errorf("risk = %q, want high after recovery", result.Risk)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
}

func TestNotFoundIsCached(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	for i := 0; i < 2; i++ {
		result, err := s.LookupProvider(context.Background(), "otx", "domain", "ghost.example")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if result.Summary != "Not found" {
			t.Errorf("summary = %q", result.Summary)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("provider called %d times, want 1 (404 cached)", n)
	}
}

func TestRateLimitIsTypedAndNotCached(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":0}}}}`)
	}))

	// VirusTotal allows 4 requests per minute.
	for i := 0; i < 4; i++ {
		if _, err := s.LookupProvider(context.Background(), "virustotal", "ip", fmt.Sprintf("10.0.0.%d", i)); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}

	_, err := s.LookupProvider(context.Background(), "virustotal", "ip", "10.0.0.99")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.RetryAfter <= 0 {
		t.Errorf("retry after = %v, want positive", rl.RetryAfter)
	}
	if n := atomic.LoadInt32(&calls); n != 4 {
		t.Errorf("provider called %d times, want 4 (denied call never sent)", n)
	}
}

func TestLookupSkipsUnconfiguredProviders(t *testing.T) {
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pulse_info":{"count":0}}`)
	}))
	s.vtKey = ""
	s.abuseKey = ""

	results, err := s.Lookup(context.Background(), "ip", "8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 1 || results[0].Provider != "otx" {
		t.Fatalf("results = %+v, want single otx result", results)
	}
}

func TestAbuseOnlyQueriedForIPs(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":0}}},"pulse_info":{"count":0}}`)
	}))
	s.abuseKey = "abuse-key"

	results, err := s.Lookup(context.Background(), "domain", "example.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	for _, r := range results {
		if r.Provider == "abuseipdb" {
			t.Error("abuseipdb queried for a domain indicator")
		}
	}
}

func TestIndicatorCache(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":5}}}}`)
	}))
	s.otxKey = ""
	s.abuseKey = ""

	for i := 0; i < 2; i++ {
		if _, err := s.Lookup(context.Background(), "ip", "1.2.3.4"); err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("provider called %d times, want 1 (cache miss only)", n)
	}

	if _, err := s.Lookup(context.Background(), "ip", "5.6.7.8"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("provider called %d times after new indicator, want 2", n)
	}
}

func TestFeedCaching(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"results":[{"id":"p1","name":"Test Pulse"}]}`)
	}))

	first, err := s.OTXFeed(context.Background())
	if err != nil {
		t.Fatalf("OTXFeed: %v", err)
	}
	second, err := s.OTXFeed(context.Background())
	if err != nil {
		t.Fatalf("OTXFeed (cached): %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("feed fetched %d times, want 1", calls)
	}
	if len(first) != 1 || len(second) != 1 || second[0].Name != "Test Pulse" {
		t.Errorf("unexpected feed contents: %+v", second)
	}
}

func TestFeedExpiry(t *testing.T) {
	var calls int32
	s := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"data":[{"ipAddress":"6.6.6.6","abuseConfidenceScore":99}]}`)
	}))

	if _, err := s.AbuseFeed(context.Background()); err != nil {
		t.Fatalf("AbuseFeed: %v", err)
	}

	// Force the entry stale.
	s.feeds.mu.Lock()
	entry := s.feeds.entries["abuse"]
	entry.expires = time.Now().Add(-time.Minute)
	s.feeds.entries["abuse"] = entry
	s.feeds.mu.Unlock()

	if _, err := s.AbuseFeed(context.Background()); err != nil {
		t.Fatalf("AbuseFeed after expiry: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("feed fetched %d times, want 2 after expiry", calls)
	}
}

func TestValidIndicatorType(t *testing.T) {
	for _, ok := range []string{"ip", "domain", "hash"} {
		if !ValidIndicatorType(ok) {
			t.Errorf("ValidIndicatorType(%q) = false", ok)
		}
	}
	if ValidIndicatorType("url") {
		t.Error("ValidIndicatorType(url) = true, want false")
	}
}
