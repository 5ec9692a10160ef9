package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richinex/scribe/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")

	settings, err := Load(New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "gpt-4o" {
		t.Errorf("expected default model 'gpt-4o', got %q", settings.LLM.Model)
	}
	if settings.Agent.StepTimeout != 30*time.Second {
		t.Errorf("expected 30s step timeout, got %v", settings.Agent.StepTimeout)
	}
	if settings.Retrieval.TopK != 5 || settings.Retrieval.Dimension != 512 {
		t.Errorf("unexpected retrieval defaults: %+v", settings.Retrieval)
	}
	if settings.Eval.Weights.Success != 0.4 {
		t.Errorf("expected success weight 0.4, got %v", settings.Eval.Weights.Success)
	}
	if got := settings.Retrieval.DatabasePath(); got != filepath.Join("data", "documents.db") {
		t.Errorf("unexpected database path %q", got)
	}
}

func TestLoadWithAlias(t *testing.T) {
	t.Setenv("SCRIBE_LLM_PROVIDER", "claude")

	settings, err := Load(New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	t.Setenv("SCRIBE_LLM_PROVIDER", "unknown_provider")

	_, err := Load(New(), "")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadWithInvalidEnvVar(t *testing.T) {
	t.Setenv("SCRIBE_LLM_MAX_TOKENS", "not-a-number")

	_, err := Load(New(), "")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected configuration error for invalid SCRIBE_LLM_MAX_TOKENS, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	content := `
llm:
  provider: deepseek
  model: deepseek-reasoner
  timeout: 90s
retrieval:
  top_k: 8
  chunk_size: 400
  chunk_overlap: 50
agent:
  step_timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(New(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "deepseek" || settings.LLM.Model != "deepseek-reasoner" {
		t.Errorf("unexpected llm settings: %+v", settings.LLM)
	}
	if settings.LLM.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", settings.LLM.Timeout)
	}
	if settings.Retrieval.TopK != 8 || settings.Retrieval.ChunkSize != 400 {
		t.Errorf("unexpected retrieval settings: %+v", settings.Retrieval)
	}
	if settings.Agent.StepTimeout != 5*time.Second {
		t.Errorf("expected 5s step timeout, got %v", settings.Agent.StepTimeout)
	}
	if settings.Agent.MaxSteps != 8 {
		t.Errorf("expected unset keys to keep defaults, got max_steps %d", settings.Agent.MaxSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte("retrieval:\n  top_k: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCRIBE_RETRIEVAL_TOP_K", "12")

	settings, err := Load(New(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Retrieval.TopK != 12 {
		t.Errorf("expected env to win with top_k 12, got %d", settings.Retrieval.TopK)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Settings){
		"temperature":    func(s *Settings) { s.LLM.Temperature = 3 },
		"embedder":       func(s *Settings) { s.Retrieval.Embedder = "word2vec" },
		"collection":     func(s *Settings) { s.Retrieval.Collection = "../etc" },
		"top_k":          func(s *Settings) { s.Retrieval.TopK = 0 },
		"overlap":        func(s *Settings) { s.Retrieval.ChunkOverlap = s.Retrieval.ChunkSize },
		"weights":        func(s *Settings) { s.Eval.Weights.Success = 0.9 },
		"step_timeout":   func(s *Settings) { s.Agent.StepTimeout = 0 },
		"tool_retries":   func(s *Settings) { s.Agent.ToolRetries = 0 },
		"min_similarity": func(s *Settings) { s.Retrieval.MinSimilarity = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := Default()
			mutate(&s)
			if err := Validate(s); !errors.Is(err, model.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "scribe.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings, err := Load(New(), path)
	if err != nil {
		t.Fatalf("written defaults must load: %v", err)
	}
	if settings.Retrieval.Collection != "documents" {
		t.Errorf("unexpected collection %q", settings.Retrieval.Collection)
	}

	if err := WriteDefault(path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("gpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := APIKeyFor("openai")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected configuration error for missing API key, got %v", err)
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	model, err := ModelFor("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-2.5-pro" {
		t.Errorf("expected env model override, got %q", model)
	}
}

func TestNewProviderNeedsKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default().LLM
	cfg.Provider = "anthropic"
	if _, err := cfg.NewProvider(); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	p, err := cfg.NewProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider")
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 4 || providers[0] != "anthropic" {
		t.Errorf("unexpected providers %v", providers)
	}
}
