package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"hydra-waf/internal/models"
)

const (
	maxPromptChars = 2000
	reportTTL      = 24 * time.Hour
)

const systemPrompt = `You are a web application security analyst. Given one intercepted HTTP request,
produce a JSON object with exactly these keys:
attack_type (string), root_cause (string), risk_level (one of low|medium|high|critical),
mitigations (array of {category, description} where category is code|config|waf),
virtual_patches (array of {target, rule} where target is WAF|Nginx|App),
references (array of {standard, id, title} where standard is OWASP|CWE|NIST).
Respond with JSON only, no prose.`

// Service turns intercepted requests into structured patching reports.
// Reports are cached by the hash of the sanitized request for a day.
type Service struct {
	provider Provider

	mu    sync.Mutex
	cache map[string]cachedReport
}

type cachedReport struct {
	report  models.AnalysisReport
	expires time.Time
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider, cache: make(map[string]cachedReport)}
}

func (s *Service) ProviderName() string { return s.provider.Name() }

// Analyze produces a report for one intercepted request. Provider failures
// degrade to a fallback report carrying the error; the call itself never
// fails. Only successful analyses enter the cache, so the next identical
// request retries the provider instead of replaying the fallback. The
// second return reports a cache hit.
func (s *Service) Analyze(ctx context.Context, interceptedReq string) (models.AnalysisReport, bool) {
	sanitized := Sanitize(interceptedReq)
	key := cacheKey(sanitized)

	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.report, true
	}
	s.mu.Unlock()

	report, err := s.generate(ctx, sanitized)
	if err != nil {
		log.Printf("⚠️ Analysis failed, serving fallback report: %v", err)
		return fallbackReport(err), false
	}

	s.mu.Lock()
	s.cache[key] = cachedReport{report: report, expires: time.Now().Add(reportTTL)}
	s.mu.Unlock()
	return report, false
}

func (s *Service) generate(ctx context.Context, sanitized string) (models.AnalysisReport, error) {
	raw, err := s.provider.Generate(ctx, systemPrompt,
		"Analyze this intercepted request:\n\n"+sanitized)
	if err != nil {
		return models.AnalysisReport{}, err
	}

	var report models.AnalysisReport
	cleaned := stripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return models.AnalysisReport{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if err := validateReport(report); err != nil {
		return models.AnalysisReport{}, err
	}
	return report, nil
}

// Sanitize truncates the request and redacts credentials before it leaves
// the process.
func Sanitize(req string) string {
	if len(req) > maxPromptChars {
		req = req[:maxPromptChars]
	}

	lines := strings.Split(req, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "cookie:") || strings.HasPrefix(lower, "authorization:") {
			name, _, _ := strings.Cut(line, ":")
			lines[i] = name + ": [REDACTED]"
		}
	}
	out := strings.Join(lines, "\n")

	for _, prefix := range []string{"Bearer ", "sk-", "ghp_"} {
		out = redactAfter(out, prefix)
	}
	return out
}

// redactAfter replaces the token following each occurrence of prefix.
func redactAfter(s, prefix string) string {
	var b strings.Builder
	for {
		idx := strings.Index(s, prefix)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		b.WriteString("[REDACTED]")
		rest := s[idx+len(prefix):]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return r == ' ' || r == '\n' || r == '\r' || r == '\t' || r == '"' || r == '\''
		})
		if end < 0 {
			return b.String()
		}
		s = rest[end:]
	}
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validateReport(r models.AnalysisReport) error {
	if r.AttackType == "" || r.RootCause == "" || r.RiskLevel == "" {
		return fmt.Errorf("report missing required fields")
	}
	if len(r.Mitigations) == 0 {
		return fmt.Errorf("report has no mitigations")
	}
	// A missing key unmarshals to a nil slice; empty arrays are fine.
	if r.VirtualPatches == nil || r.References == nil {
		return fmt.Errorf("report missing virtual_patches or references")
	}
	return nil
}

func fallbackReport(cause error) models.AnalysisReport {
	return models.AnalysisReport{
		AttackType: "Security Incident (Analysis Failed)",
		RootCause:  "Automated analysis was unavailable for this request.",
		RiskLevel:  "medium",
		Mitigations: []models.Mitigation{
			{Category: "waf", Description: "Review the intercepted request manually and block the source if malicious."},
		},
		VirtualPatches: []models.VirtualPatch{},
		References: []models.Reference{
			{Standard: "OWASP", ID: "A09:2021", Title: "Security Logging and Monitoring Failures"},
		},
		Error: cause.Error(),
	}
}

func cacheKey(sanitized string) string {
	sum := sha256.Sum256([]byte(sanitized))
	return hex.EncodeToString(sum[:])
}
