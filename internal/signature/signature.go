package signature

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// RawRule is one entry of the signatures.yml sequence.
type RawRule struct {
	ID    string `yaml:"id"`
	Regex string `yaml:"regex"`
}

// Rule is the control-plane view of a signature.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

type compiledRule struct {
	id string
	re *regexp.Regexp
}

// Engine holds the compiled signature set. The startup set comes from the
// YAML file; admin-authored regex signatures are compiled in at runtime under
// ids CUSTOM_<row id>. Only the enabled flags mutate after load.
type Engine struct {
	mu      sync.RWMutex
	rules   []compiledRule
	custom  []compiledRule
	state   map[string]*Rule
	order   []string
}

// Load reads the YAML rule file and compiles every pattern
// case-insensitively. A pattern that fails to compile aborts startup.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}

	var raw []RawRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}

	e := &Engine{state: make(map[string]*Rule)}
	for _, r := range raw {
		re, err := regexp.Compile("(?i)" + r.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile signature %s: %w", r.ID, err)
		}
		e.rules = append(e.rules, compiledRule{id: r.ID, re: re})
		e.state[r.ID] = &Rule{
			ID:          r.ID,
			Name:        titleFromID(r.ID),
			Description: describePattern(r.Regex),
			Enabled:     true,
		}
		e.order = append(e.order, r.ID)
	}
	return e, nil
}

// Match tests the enabled rules against the body text and the URL-decoded
// path+query, returning the first matching rule id.
func (e *Engine) Match(bodyText, urlDecoded string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, set := range [][]compiledRule{e.rules, e.custom} {
		for _, r := range set {
			if st, ok := e.state[r.id]; ok && !st.Enabled {
				continue
			}
			if r.re.MatchString(bodyText) || r.re.MatchString(urlDecoded) {
				return r.id, true
			}
		}
	}
	return "", false
}

// Rules lists every rule with its live enabled flag, in load order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.state[id])
	}
	return out
}

// SetEnabled toggles one rule. Toggling to the current value is a no-op.
func (e *Engine) SetEnabled(id string, enabled bool) (Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[id]
	if !ok {
		return Rule{}, false
	}
	st.Enabled = enabled
	return *st, true
}

// SetCustomRules swaps the admin-authored rule set in one step. Called after
// every create/update/delete on stored regex signatures.
func (e *Engine) SetCustomRules(rules []RawRule) error {
	compiled := make([]compiledRule, 0, len(rules))
	fresh := make(map[string]*Rule, len(rules))
	var order []string
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Regex)
		if err != nil {
			return fmt.Errorf("compile signature %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{id: r.ID, re: re})
		fresh[r.ID] = &Rule{
			ID:          r.ID,
			Name:        titleFromID(r.ID),
			Description: describePattern(r.Regex),
			Enabled:     true,
		}
		order = append(order, r.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Preserve toggles for custom rules that survived the swap, then rebuild
	// the custom portion of state and order.
	for id, st := range e.state {
		if !strings.HasPrefix(id, "CUSTOM_") {
			continue
		}
		if kept, ok := fresh[id]; ok {
			kept.Enabled = st.Enabled
		}
		delete(e.state, id)
	}
	var base []string
	for _, id := range e.order {
		if !strings.HasPrefix(id, "CUSTOM_") {
			base = append(base, id)
		}
	}
	for id, st := range fresh {
		e.state[id] = st
	}
	e.custom = compiled
	e.order = append(base, order...)
	return nil
}

// ValidatePattern reports whether a pattern would compile, without mutating
// the engine. Used by the control plane before persisting custom signatures.
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	return err
}

func titleFromID(id string) string {
	words := strings.Split(strings.ToLower(id), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func describePattern(pattern string) string {
	if len(pattern) > 50 {
		return "Pattern: " + pattern[:50] + "..."
	}
	return "Pattern: " + pattern
}
