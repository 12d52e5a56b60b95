package analyzer

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider generates one completion for a system/user prompt pair. All
// providers are asked for strict JSON output.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// --- REMOTE (OpenAI-compatible endpoint, e.g. Groq) ---

type remoteProvider struct {
	llm   *openai.LLM
	model string
}

func NewRemoteProvider(baseURL, model, apiKey string) (Provider, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("remote llm init: %w", err)
	}
	return &remoteProvider{llm: llm, model: model}, nil
}

func (p *remoteProvider) Name() string { return "remote" }

func (p *remoteProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
		},
		llms.WithTemperature(0.2),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("remote llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// --- LOCAL (Ollama) ---

type localProvider struct {
	llm *ollama.LLM
}

func NewLocalProvider(serverURL, model string) (Provider, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("local llm init: %w", err)
	}
	return &localProvider{llm: llm}, nil
}

func (p *localProvider) Name() string { return "local" }

func (p *localProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
		},
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// --- MOCK (offline development and tests) ---

type mockProvider struct{}

func NewMockProvider() Provider { return mockProvider{} }

func (mockProvider) Name() string { return "mock" }

func (mockProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{
		"attack_type": "SQL Injection (Mock)",
		"root_cause": "User input concatenated into a SQL statement without parameterization.",
		"risk_level": "high",
		"mitigations": [
			{"category": "code", "description": "Use parameterized queries or an ORM for all database access."},
			{"category": "waf", "description": "Enable the SQLi signature family on the edge."}
		],
		"virtual_patches": [
			{"target": "WAF", "rule": "SecRule ARGS \"@detectSQLi\" \"id:1001,phase:2,deny\""}
		],
		"references": [
			{"standard": "OWASP", "id": "A03:2021", "title": "Injection"},
			{"standard": "CWE", "id": "CWE-89", "title": "SQL Injection"}
		]
	}`, nil
}
