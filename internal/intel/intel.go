package intel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"hydra-waf/internal/limiter"
	"hydra-waf/internal/models"
)

const (
	indicatorTTL      = 30 * time.Minute
	indicatorCacheCap = 1000
)

// Service aggregates VirusTotal, AlienVault OTX and AbuseIPDB lookups
// behind per-provider rate limiters and a shared TTL cache. Providers
// without an API key are silently skipped.
type Service struct {
	vtKey    string
	otxKey   string
	abuseKey string

	vtBase    string
	otxBase   string
	abuseBase string

	client *http.Client

	vtLimiter    *limiter.RateLimiter
	abuseLimiter *limiter.RateLimiter

	mu    sync.Mutex
	cache map[string]cachedResult

	feeds feedCache
}

type cachedResult struct {
	result  models.TIResult
	expires time.Time
}

func New(vtKey, otxKey, abuseKey string) *Service {
	return &Service{
		vtKey:        vtKey,
		otxKey:       otxKey,
		abuseKey:     abuseKey,
		vtBase:       "https://www.virustotal.com/api/v3",
		otxBase:      "https://otx.alienvault.com/api/v1",
		abuseBase:    "https://api.abuseipdb.com/api/v2",
		client:       &http.Client{Timeout: 10 * time.Second},
		vtLimiter:    limiter.New(4, 60*time.Second),
		abuseLimiter: limiter.New(1000, 86400*time.Second),
		cache:        make(map[string]cachedResult),
	}
}

var validIndicatorTypes = map[string]bool{"ip": true, "domain": true, "hash": true}

func ValidIndicatorType(t string) bool { return validIndicatorTypes[t] }

// RateLimitError reports a spent provider budget. RetryAfter says when
// the window frees up.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit reached, retry in %ds", e.Provider, int(e.RetryAfter.Seconds()))
}

// UpstreamError wraps a provider transport failure or an unexpected
// provider status.
type UpstreamError struct {
	Provider string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s lookup failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Lookup queries every configured provider for one indicator. The first
// rate-limit denial or provider failure aborts the whole lookup.
func (s *Service) Lookup(ctx context.Context, indicatorType, value string) ([]models.TIResult, error) {
	var results []models.TIResult
	if s.vtKey != "" {
		r, err := s.cached("virustotal", indicatorType, value, func() (models.TIResult, error) {
			return s.vtLookup(ctx, indicatorType, value)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if s.otxKey != "" {
		r, err := s.cached("otx", indicatorType, value, func() (models.TIResult, error) {
			return s.otxLookup(ctx, indicatorType, value)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if s.abuseKey != "" && indicatorType == "ip" {
		r, err := s.cached("abuseipdb", indicatorType, value, func() (models.TIResult, error) {
			return s.abuseLookup(ctx, value)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// LookupProvider queries a single provider by name.
func (s *Service) LookupProvider(ctx context.Context, provider, indicatorType, value string) (models.TIResult, error) {
	switch provider {
	case "virustotal":
		if s.vtKey == "" {
			return models.TIResult{}, errors.New("virustotal api key not configured")
		}
		return s.cached(provider, indicatorType, value, func() (models.TIResult, error) {
			return s.vtLookup(ctx, indicatorType, value)
		})
	case "otx":
		if s.otxKey == "" {
			return models.TIResult{}, errors.New("otx api key not configured")
		}
		return s.cached(provider, indicatorType, value, func() (models.TIResult, error) {
			return s.otxLookup(ctx, indicatorType, value)
		})
	case "abuseipdb":
		if s.abuseKey == "" {
			return models.TIResult{}, errors.New("abuseipdb api key not configured")
		}
		if indicatorType != "ip" {
			return models.TIResult{}, errors.New("abuseipdb only resolves ip indicators")
		}
		return s.cached(provider, indicatorType, value, func() (models.TIResult, error) {
			return s.abuseLookup(ctx, value)
		})
	}
	return models.TIResult{}, errors.New("unknown provider")
}

// cached returns a fresh cache entry or computes and stores one. Only real
// verdicts (including 404 misses) enter the cache; rate-limit denials and
// provider failures never do, so the next call retries the provider. The
// cache is flushed wholesale when it reaches capacity.
func (s *Service) cached(provider, indicatorType, value string, fetch func() (models.TIResult, error)) (models.TIResult, error) {
	key := cacheKey(provider, indicatorType, value)

	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.result, nil
	}
	s.mu.Unlock()

	result, err := fetch()
	if err != nil {
		return models.TIResult{}, err
	}

	s.mu.Lock()
	if len(s.cache) >= indicatorCacheCap {
		s.cache = make(map[string]cachedResult)
	}
	s.cache[key] = cachedResult{result: result, expires: time.Now().Add(indicatorTTL)}
	s.mu.Unlock()
	return result, nil
}

func cacheKey(provider, indicatorType, value string) string {
	sum := sha256.Sum256([]byte(provider + "|" + indicatorType + "|" + value))
	return hex.EncodeToString(sum[:])
}

// --- VIRUSTOTAL ---

func (s *Service) vtLookup(ctx context.Context, indicatorType, value string) (models.TIResult, error) {
	result := models.TIResult{Provider: "virustotal", Type: indicatorType, Value: value, Risk: "unknown"}

	if ok, wait := s.vtLimiter.Allow(); !ok {
		return models.TIResult{}, &RateLimitError{Provider: "virustotal", RetryAfter: wait}
	}

	var path string
	switch indicatorType {
	case "ip":
		path = "ip_addresses"
	case "domain":
		path = "domains"
	case "hash":
		path = "files"
	default:
		return models.TIResult{}, fmt.Errorf("virustotal cannot resolve %s indicators", indicatorType)
	}

	var payload struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	status, err := s.getJSON(ctx, s.vtBase+"/"+path+"/"+url.PathEscape(value),
		map[string]string{"x-apikey": s.vtKey}, &payload)
	if err != nil {
		return models.TIResult{}, &UpstreamError{Provider: "virustotal", Err: err}
	}
	if status == http.StatusNotFound {
		result.Summary = "Not found"
		return result, nil
	}
	if status != http.StatusOK {
		return models.TIResult{}, &UpstreamError{Provider: "virustotal", Status: status}
	}

	malicious := payload.Data.Attributes.LastAnalysisStats.Malicious
	switch {
	case malicious == 0:
		result.Risk = "clean"
	case malicious <= 2:
		result.Risk = "medium"
	default:
		result.Risk = "high"
	}
	result.Summary = fmt.Sprintf("%d engines flagged malicious", malicious)
	result.Raw = payload.Data.Attributes.LastAnalysisStats
	return result, nil
}

// --- ALIENVAULT OTX ---

func (s *Service) otxLookup(ctx context.Context, indicatorType, value string) (models.TIResult, error) {
	result := models.TIResult{Provider: "otx", Type: indicatorType, Value: value, Risk: "unknown"}

	var path string
	switch indicatorType {
	case "ip":
		path = "IPv4"
	case "domain":
		path = "domain"
	case "hash":
		path = "file"
	default:
		return models.TIResult{}, fmt.Errorf("otx cannot resolve %s indicators", indicatorType)
	}

	var payload struct {
		PulseInfo struct {
			Count int `json:"count"`
		} `json:"pulse_info"`
	}
	status, err := s.getJSON(ctx,
		s.otxBase+"/indicators/"+path+"/"+url.PathEscape(value)+"/general",
		map[string]string{"X-OTX-API-KEY": s.otxKey}, &payload)
	if err != nil {
		return models.TIResult{}, &UpstreamError{Provider: "otx", Err: err}
	}
	if status == http.StatusNotFound {
		result.Summary = "Not found"
		return result, nil
	}
	if status != http.StatusOK {
		return models.TIResult{}, &UpstreamError{Provider: "otx", Status: status}
	}

	pulses := payload.PulseInfo.Count
	switch {
	case pulses == 0:
		result.Risk = "clean"
	case pulses < 5:
		result.Risk = "medium"
	default:
		result.Risk = "high"
	}
	result.Summary = fmt.Sprintf("Appears in %d threat pulses", pulses)
	result.Raw = payload.PulseInfo
	return result, nil
}

// --- ABUSEIPDB ---

func (s *Service) abuseLookup(ctx context.Context, ip string) (models.TIResult, error) {
	result := models.TIResult{Provider: "abuseipdb", Type: "ip", Value: ip, Risk: "unknown"}

	if ok, wait := s.abuseLimiter.Allow(); !ok {
		return models.TIResult{}, &RateLimitError{Provider: "abuseipdb", RetryAfter: wait}
	}

	var payload struct {
		Data struct {
			AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
			TotalReports         int    `json:"totalReports"`
			CountryCode          string `json:"countryCode"`
		} `json:"data"`
	}
	status, err := s.getJSON(ctx,
		s.abuseBase+"/check?ipAddress="+url.QueryEscape(ip)+"&maxAgeInDays=90",
		map[string]string{"Key": s.abuseKey, "Accept": "application/json"}, &payload)
	if err != nil {
		return models.TIResult{}, &UpstreamError{Provider: "abuseipdb", Err: err}
	}
	if status == http.StatusNotFound {
		result.Summary = "Not found"
		return result, nil
	}
	if status != http.StatusOK {
		return models.TIResult{}, &UpstreamError{Provider: "abuseipdb", Status: status}
	}

	score := payload.Data.AbuseConfidenceScore
	switch {
	case score == 0:
		result.Risk = "clean"
	case score < 25:
		result.Risk = "low"
	case score < 75:
		result.Risk = "medium"
	default:
		result.Risk = "high"
	}
	result.Summary = fmt.Sprintf("Abuse confidence %d%%, %d reports", score, payload.Data.TotalReports)
	result.Raw = payload.Data
	return result, nil
}

// getJSON issues a GET with provider headers and decodes the body when the
// status is 200. Non-200 statuses are returned to the caller undecoded.
func (s *Service) getJSON(ctx context.Context, rawURL string, headers map[string]string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}
