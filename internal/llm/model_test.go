package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/raphaelgruber/codechat/internal/config"
)

func TestNewModelProviders(t *testing.T) {
	factory := NewModel(&http.Client{})

	tests := []struct {
		name string
		req  Request
	}{
		{"openai", Request{Provider: config.ProviderOpenAI, APIURL: config.DefaultAPIURL, APIKey: "sk-test", Model: "gpt-4o"}},
		{"ollama", Request{Provider: config.ProviderOllama, APIURL: config.DefaultOllamaURL, Model: "llama3"}},
		{"anthropic", Request{Provider: config.ProviderAnthropic, APIKey: "sk-ant-test", Model: "claude-3-5-sonnet-latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := factory(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("NewModel(%s) error = %v", tt.name, err)
			}
			if model == nil {
				t.Fatalf("NewModel(%s) returned nil model", tt.name)
			}
		})
	}
}
