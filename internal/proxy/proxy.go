package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hydra-waf/internal/detector"
	"hydra-waf/internal/journal"
	"hydra-waf/internal/models"
	"hydra-waf/internal/signature"
)

// Handler is the inspection pipeline in front of the upstream app. Every
// request runs the same gauntlet: path gate, signature scan, ML score,
// then forward or deny.
type Handler struct {
	engine    *signature.Engine
	ml        *detector.MLClient
	settings  *detector.Settings
	journal   *journal.Journal
	ingestURL string

	upstream *http.Client
	reporter *http.Client
}

func New(engine *signature.Engine, ml *detector.MLClient, settings *detector.Settings, jrnl *journal.Journal, ingestURL string) *Handler {
	return &Handler{
		engine:    engine,
		ml:        ml,
		settings:  settings,
		journal:   jrnl,
		ingestURL: ingestURL,
		// No timeout: long upstream responses are the client's business,
		// cancellation rides on the request context.
		upstream: &http.Client{},
		reporter: &http.Client{Timeout: 2 * time.Second},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Unknown /api/ paths never reach the upstream.
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "API endpoint not found"})
		return
	}

	body, _ := io.ReadAll(r.Body)
	r.Body.Close()
	bodyText := strings.ToValidUTF8(string(body), "�")

	fullURL := r.URL.RequestURI()
	urlDecoded := decodeURL(fullURL)
	headers := flattenHeaders(r)

	// Signature scan comes first: a hit denies without spending an ML call.
	// Signature blocks live in the journal only; the control-plane ingest
	// carries ML verdicts.
	if sigID, ok := h.engine.Match(bodyText, urlDecoded); ok {
		rec := h.record(r, headers, bodyText, models.VerdictBlocked, "SIG:"+sigID, nil)
		if err := h.journal.Append(rec); err != nil {
			log.Printf("❌ Journal append failed: %v", err)
		}
		writeJSON(w, http.StatusForbidden, map[string]string{
			"detail": "Blocked by signature",
			"id":     sigID,
		})
		return
	}

	fingerprint := detector.Fingerprint(bodyText, urlDecoded)
	score := h.ml.Score(r.Context(), fingerprint, r.Method, fullURL, headers, body)
	values := h.settings.Get()
	decision := detector.Classify(score, values)

	rec := h.record(r, headers, bodyText, decision.Verdict, decision.Reason, &score)
	if decision.Verdict != models.VerdictSafe || values.LogSafeTraffic {
		if err := h.journal.Append(rec); err != nil {
			log.Printf("❌ Journal append failed: %v", err)
		}
	}
	if decision.Report {
		h.report(rec, detector.Severity(score), "ML")
	}

	if decision.Deny {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"detail": decision.Detail,
			"score":  score,
		})
		return
	}

	h.forward(w, r, body, values.UpstreamURL)
}

// forward replays the request against the upstream and streams the answer
// back unchanged.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, body []byte, upstreamURL string) {
	target := strings.TrimSuffix(upstreamURL, "/") + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	req.Header = r.Header.Clone()
	req.Header.Set("X-Forwarded-For", clientIP(r))

	resp, err := h.upstream.Do(req)
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	defer resp.Body.Close()

	for key, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (h *Handler) upstreamError(w http.ResponseWriter, err error) {
	log.Printf("❌ Upstream unreachable: %v", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"detail": "Upstream application unreachable",
		"error":  err.Error(),
	})
}

func (h *Handler) record(r *http.Request, headers map[string]string, bodyText, verdict, reason string, score *float64) models.Record {
	return models.Record{
		TS:      float64(time.Now().UnixNano()) / 1e9,
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Headers: headers,
		Body:    bodyText,
		Verdict: verdict,
		Reason:  reason,
		Score:   score,
	}
}

// report ships the event to the control plane without blocking the request.
func (h *Handler) report(rec models.Record, severity, source string) {
	if h.ingestURL == "" {
		return
	}
	ev := models.IngestEvent{Record: rec, Severity: severity, DetectionSource: source}
	go func() {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.ingestURL, bytes.NewReader(data))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.reporter.Do(req)
		if err != nil {
			log.Printf("⚠️ Event ingest failed: %v", err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

// decodeURL best-effort unescapes the path and query so encoded payloads
// cannot hide from the scanners.
func decodeURL(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func flattenHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header)+1)
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}
	headers["Host"] = r.Host
	return headers
}

func clientIP(r *http.Request) string {
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx > 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
