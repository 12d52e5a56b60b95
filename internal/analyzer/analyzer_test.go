package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.response, f.err
}

const validJSON = `{
	"attack_type": "XSS",
	"root_cause": "Unescaped template output.",
	"risk_level": "high",
	"mitigations": [{"category": "code", "description": "Escape output."}],
	"virtual_patches": [],
	"references": []
}`

func TestAnalyzeParsesReport(t *testing.T) {
	svc := NewService(&fakeProvider{response: validJSON})

	report, cached := svc.Analyze(context.Background(), "GET /?q=<script> HTTP/1.1")
	if cached {
		t.Error("first call reported as cached")
	}
	if report.AttackType != "XSS" || report.RiskLevel != "high" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Error != "" {
		t.Errorf("unexpected error field: %q", report.Error)
	}
}

func TestAnalyzeStripsMarkdownFences(t *testing.T) {
	svc := NewService(&fakeProvider{response: "```json\n" + validJSON + "\n```"})

	report, _ := svc.Analyze(context.Background(), "GET / HTTP/1.1")
	if report.AttackType != "XSS" {
		t.Errorf("fenced response not parsed: %+v", report)
	}
}

func TestAnalyzeCaches(t *testing.T) {
	p := &fakeProvider{response: validJSON}
	svc := NewService(p)

	svc.Analyze(context.Background(), "GET /same HTTP/1.1")
	_, cached := svc.Analyze(context.Background(), "GET /same HTTP/1.1")
	if !cached {
		t.Error("second identical call not served from cache")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}

	svc.Analyze(context.Background(), "GET /other HTTP/1.1")
	if p.calls != 2 {
		t.Errorf("provider called %d times for distinct request, want 2", p.calls)
	}
}

func TestAnalyzeFallbackOnProviderError(t *testing.T) {
	svc := NewService(&fakeProvider{err: errors.New("upstream llm down")})

	report, _ := svc.Analyze(context.Background(), "GET / HTTP/1.1")
	if report.AttackType != "Security Incident (Analysis Failed)" {
		t.Errorf("attack_type = %q", report.AttackType)
	}
	if !strings.Contains(report.Error, "upstream llm down") {
		t.Errorf("error field = %q, want cause included", report.Error)
	}
	if len(report.Mitigations) == 0 {
		t.Error("fallback report has no mitigations")
	}
}

func TestAnalyzeFallbackOnInvalidJSON(t *testing.T) {
	svc := NewService(&fakeProvider{response: "I think this is SQL injection."})

	report, _ := svc.Analyze(context.Background(), "GET / HTTP/1.1")
	if report.AttackType != "Security Incident (Analysis Failed)" {
		t.Errorf("attack_type = %q, want fallback", report.AttackType)
	}
}

func TestAnalyzeFallbackOnMissingKeys(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"top level keys absent", `{"attack_type": "XSS"}`},
		{"no patch or reference keys", `{
			"attack_type": "XSS",
			"root_cause": "Unescaped template output.",
			"risk_level": "high",
			"mitigations": [{"category": "code", "description": "Escape output."}]
		}`},
	}
	for _, tt := range tests {
		svc := NewService(&fakeProvider{response: tt.response})

		report, _ := svc.Analyze(context.Background(), "GET / HTTP/1.1")
		if report.AttackType != "Security Incident (Analysis Failed)" {
			t.Errorf("%s: attack_type = %q, want fallback", tt.name, report.AttackType)
		}
	}
}

func TestAnalyzeRetriesAfterProviderRecovery(t *testing.T) {
	p := &fakeProvider{err: errors.New("transient outage")}
	svc := NewService(p)

	report, cached := svc.Analyze(context.Background(), "GET /flaky HTTP/1.1")
	if cached || report.Error == "" {
		t.Fatalf("first call: cached=%v error=%q, want fresh fallback", cached, report.Error)
	}

	p.err = nil
	p.response = validJSON
	report, cached = svc.Analyze(context.Background(), "GET /flaky HTTP/1.1")
	if cached {
		t.Error("recovered call served from cache")
	}
	if report.AttackType != "XSS" || report.Error != "" {
		t.Errorf("report after recovery = %+v, want real analysis", report)
	}
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2", p.calls)
	}

	// The successful report is the one that sticks.
	report, cached = svc.Analyze(context.Background(), "GET /flaky HTTP/1.1")
	if !cached || report.AttackType != "XSS" {
		t.Errorf("third call: cached=%v attack_type=%q", cached, report.AttackType)
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("A", 5000)
	if got := Sanitize(long); len(got) != 2000 {
		t.Errorf("len = %d, want 2000", len(got))
	}
}

func TestSanitizeRedactsCredentials(t *testing.T) {
	req := "GET /account HTTP/1.1\n" +
		"Cookie: session=abc123\n" +
		"Authorization: Basic dXNlcjpwYXNz\n" +
		"X-Token: Bearer eyJhbGciOi.payload.sig\n" +
		"X-Key: sk-live123456 trailing\n" +
		"X-GH: ghp_abcdef\n"

	got := Sanitize(req)
	for _, secret := range []string{"session=abc123", "dXNlcjpwYXNz", "eyJhbGciOi", "sk-live123456", "ghp_abcdef"} {
		if strings.Contains(got, secret) {
			t.Errorf("secret %q survived sanitization:\n%s", secret, got)
		}
	}
	if !strings.Contains(got, "Cookie: [REDACTED]") {
		t.Errorf("cookie header not redacted:\n%s", got)
	}
	if !strings.Contains(got, "GET /account") {
		t.Error("non-sensitive content was lost")
	}
}

func TestMockProviderProducesValidReport(t *testing.T) {
	svc := NewService(NewMockProvider())

	report, _ := svc.Analyze(context.Background(), "GET /?id=1' OR '1'='1 HTTP/1.1")
	if report.AttackType != "SQL Injection (Mock)" {
		t.Errorf("attack_type = %q", report.AttackType)
	}
	if report.Error != "" {
		t.Errorf("mock report carries error: %q", report.Error)
	}
	if len(report.VirtualPatches) == 0 || len(report.References) == 0 {
		t.Error("mock report missing patches or references")
	}
}
