package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hydra-waf/internal/detector"
	"hydra-waf/internal/signature"
)

func testEngine(t *testing.T) *signature.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signatures.yml")
	rules := `
- id: SQLI_UNION_SELECT
  regex: "union\\s+select"
- id: XSS_SCRIPT_TAG
  regex: "<script[\\s>]"
`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}
	engine, err := signature.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func testWAFHandler(t *testing.T) (*WAFHandler, *http.ServeMux) {
	t.Helper()
	h := NewWAFHandler(testEngine(t),
		detector.NewSettings("http://upstream", "http://scorer", true), nil, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rules", h.ListRules)
	mux.HandleFunc("PUT /api/rules/{id}", h.ToggleRule)
	mux.HandleFunc("GET /api/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/settings", h.UpdateSettings)
	return h, mux
}

func TestListRules(t *testing.T) {
	_, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Rules []signature.Rule `json:"rules"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(body.Rules))
	}
	if !body.Rules[0].Enabled {
		t.Error("rules should start enabled")
	}
}

func TestToggleRule(t *testing.T) {
	_, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/rules/SQLI_UNION_SELECT?enabled=false", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rule signature.Rule
	json.NewDecoder(w.Body).Decode(&rule)
	if rule.Enabled {
		t.Error("rule still enabled after toggle")
	}
}

func TestToggleRuleErrors(t *testing.T) {
	_, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/rules/NOPE?enabled=false", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown rule: status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/rules/XSS_SCRIPT_TAG?enabled=sideways", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad enabled param: status = %d, want 400", w.Code)
	}
}

func TestUpdateSettingsPartial(t *testing.T) {
	_, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"low_risk": 0.25}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var values detector.SettingsValues
	json.NewDecoder(w.Body).Decode(&values)
	if values.LowRisk != 0.25 {
		t.Errorf("low_risk = %v, want 0.25", values.LowRisk)
	}
	if values.VeryHighRisk != 0.85 {
		t.Errorf("untouched threshold changed: %v", values.VeryHighRisk)
	}
}

func TestUpdateSettingsRejectsBrokenLadder(t *testing.T) {
	h, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"high_risk": 0.95}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	if got := h.settings.Get().HighRisk; got != 0.70 {
		t.Errorf("high_risk mutated to %v despite rejection", got)
	}
}

func TestUpdateSettingsRejectsOutOfRange(t *testing.T) {
	_, mux := testWAFHandler(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"low_risk": 1.5}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
