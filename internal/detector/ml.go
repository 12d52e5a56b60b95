package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const scoreCacheCap = 1000

// rawRequest is the canonical payload the scoring service was trained on:
// the flattened named headers ride alongside the full header map.
type rawRequest struct {
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers"`
	UserAgent     string            `json:"user_agent"`
	Accept        string            `json:"accept"`
	Host          string            `json:"host"`
	Cookie        string            `json:"cookie"`
	ContentType   string            `json:"content_type"`
	ContentLength int               `json:"content_length"`
	Body          string            `json:"body"`
}

type mlPayload struct {
	RawRequest rawRequest `json:"raw_request"`
}

type mlResponse struct {
	Score float64 `json:"score"`
}

// MLClient scores requests against the anomaly service. Results are cached by
// request fingerprint; when the cache reaches its cap it is flushed whole
// before the next insert.
type MLClient struct {
	settings *Settings
	client   *http.Client

	mu    sync.Mutex
	cache map[string]float64
}

func NewMLClient(settings *Settings) *MLClient {
	return &MLClient{
		settings: settings,
		client:   &http.Client{Timeout: 2 * time.Second},
		cache:    make(map[string]float64),
	}
}

// Fingerprint is the stable score-cache key: body text plus the URL-decoded
// path+query.
func Fingerprint(bodyText, urlDecoded string) string {
	return bodyText + " " + urlDecoded
}

// Score returns the anomaly score for a request, consulting the cache first.
// Any failure of the scoring service degrades to 0.0: the ML layer never
// blocks traffic by being unreachable.
func (c *MLClient) Score(ctx context.Context, fingerprint, method, fullURL string, headers map[string]string, body []byte) float64 {
	c.mu.Lock()
	if score, ok := c.cache[fingerprint]; ok {
		c.mu.Unlock()
		return score
	}
	c.mu.Unlock()

	score := c.fetch(ctx, method, fullURL, headers, body)

	c.mu.Lock()
	if len(c.cache) >= scoreCacheCap {
		c.cache = make(map[string]float64)
	}
	c.cache[fingerprint] = score
	c.mu.Unlock()

	return score
}

func (c *MLClient) fetch(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) float64 {
	payload := mlPayload{RawRequest: rawRequest{
		Method:        method,
		URL:           fullURL,
		Headers:       headers,
		UserAgent:     headers["User-Agent"],
		Accept:        headers["Accept"],
		Host:          headers["Host"],
		Cookie:        headers["Cookie"],
		ContentType:   headers["Content-Type"],
		ContentLength: len(body),
		Body:          string(body),
	}}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0.0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Get().MLServiceURL, bytes.NewReader(data))
	if err != nil {
		return 0.0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0.0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0.0
	}

	var result mlResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0.0
	}
	return result.Score
}

// CacheLen reports the current cache size.
func (c *MLClient) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
