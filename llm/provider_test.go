// Security tests for LLM providers to ensure error messages don't leak API keys.
package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestProviderErrorsDoNotLeakAPIKey(t *testing.T) {
	const testKey = "sk-test-invalid-key-12345xyz"

	cases := []struct {
		name    string
		build   func() Provider
		headers []string
	}{
		{"openai", func() Provider { return NewOpenAIProvider(testKey, ModelOpenAIGPT4oMini, 100, 0.7) }, []string{"Authorization:"}},
		{"anthropic", func() Provider { return NewAnthropicProvider(testKey, ModelAnthropicClaudeSonnet4, 100, 0.7) }, []string{"x-api-key:", "X-API-Key:"}},
		{"deepseek", func() Provider { return NewDeepSeekProvider(testKey, ModelDeepSeekChat, 100, 0.7) }, []string{"Authorization:"}},
		{"gemini", func() Provider { return NewGeminiProvider(testKey, ModelGeminiFlash25, 100, 0.7) }, []string{"x-goog-api-key:"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := tc.build().ChatWithFormat(ctx, []ChatMessage{UserMessage("test")}, NewJSONObjectFormat())
			if err == nil {
				t.Skip("Expected error with invalid API key, but got success - skipping leak test")
			}

			errStr := err.Error()
			if strings.Contains(errStr, testKey) {
				t.Errorf("%s error message leaked API key: %v", tc.name, errStr)
			}
			for _, h := range tc.headers {
				if strings.Contains(errStr, h) {
					t.Errorf("%s error exposed credential header %q: %v", tc.name, h, errStr)
				}
			}
		})
	}
}

// TestGeminiInitErrorPreserved verifies Gemini returns initialization errors
func TestGeminiInitErrorPreserved(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	provider := NewGeminiProvider("", ModelGeminiFlash25, 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("Expected initialization error to be returned, got nil")
	}
	if !strings.Contains(err.Error(), "failed to initialize") {
		t.Errorf("Expected initialization error, got: %v", err)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]ChatMessage{
		SystemMessage("one"),
		UserMessage("hi"),
		SystemMessage("two"),
		AssistantMessage("hello"),
	})
	if system != "one\n\ntwo" {
		t.Errorf("unexpected system prompt %q", system)
	}
	if len(rest) != 2 || rest[0].Role != "user" || rest[1].Role != "assistant" {
		t.Errorf("unexpected conversation %+v", rest)
	}
}

func TestResponseFormatJSON(t *testing.T) {
	var nilFormat *ResponseFormat
	if nilFormat.JSON() {
		t.Error("nil format must not request JSON")
	}
	if !NewJSONObjectFormat().JSON() {
		t.Error("json_object format must request JSON")
	}
	if !NewJSONSchemaFormat("plan", []byte(`{"type":"object"}`)).JSON() {
		t.Error("json_schema format must request JSON")
	}
	if (&ResponseFormat{Type: ResponseFormatText}).JSON() {
		t.Error("text format must not request JSON")
	}
}
