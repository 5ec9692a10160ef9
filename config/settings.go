// Package config provides application settings.
//
// Settings are loaded via Load() which handles:
// - Defaults, config file, SCRIBE_* environment variables and bound flags
// - JSON schema validation of the decoded tree
// - Provider-specific model and API key lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
)

// EnvPrefix prefixes every environment override, e.g. SCRIBE_LLM_PROVIDER.
const EnvPrefix = "SCRIBE"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `json:"llm" mapstructure:"llm" yaml:"llm"`
	Agent     AgentConfig     `json:"agent" mapstructure:"agent" yaml:"agent"`
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval" yaml:"retrieval"`
	Eval      EvalConfig      `json:"eval" mapstructure:"eval" yaml:"eval"`
	Output    OutputConfig    `json:"output" mapstructure:"output" yaml:"output"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string        `json:"provider" mapstructure:"provider" yaml:"provider"`
	Model       string        `json:"model" mapstructure:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig holds task pipeline configuration.
type AgentConfig struct {
	StepTimeout        time.Duration `json:"step_timeout" mapstructure:"step_timeout" yaml:"step_timeout"`
	ToolRetries        int           `json:"tool_retries" mapstructure:"tool_retries" yaml:"tool_retries"`
	ExpectedSteps      int           `json:"expected_steps" mapstructure:"expected_steps" yaml:"expected_steps"`
	FallbackCapability string        `json:"fallback_capability" mapstructure:"fallback_capability" yaml:"fallback_capability"`
	MaxSteps           int           `json:"max_steps" mapstructure:"max_steps" yaml:"max_steps"`
}

// RetrievalConfig holds knowledge base configuration.
type RetrievalConfig struct {
	DataDir        string  `json:"data_dir" mapstructure:"data_dir" yaml:"data_dir"`
	Collection     string  `json:"collection" mapstructure:"collection" yaml:"collection"`
	Embedder       string  `json:"embedder" mapstructure:"embedder" yaml:"embedder"`
	EmbeddingModel string  `json:"embedding_model" mapstructure:"embedding_model" yaml:"embedding_model"`
	Dimension      int     `json:"dimension" mapstructure:"dimension" yaml:"dimension"`
	ChunkSize      int     `json:"chunk_size" mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int     `json:"chunk_overlap" mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	TopK           int     `json:"top_k" mapstructure:"top_k" yaml:"top_k"`
	MinSimilarity  float64 `json:"min_similarity" mapstructure:"min_similarity" yaml:"min_similarity"`
	BatchSize      int     `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`
}

// NewProvider builds the configured LLM provider, reading its API key from
// the environment.
func (c LLMConfig) NewProvider() (llm.Provider, error) {
	pt, err := llm.ParseProviderType(c.Provider)
	if err != nil {
		return nil, err
	}
	key, err := APIKeyFor(c.Provider)
	if err != nil {
		return nil, err
	}
	return pt.Model(c.Model).
		MaxTokens(uint32(c.MaxTokens)).
		Temperature(float32(c.Temperature)).
		APIKey(key)
}

// DatabasePath is the SQLite file backing the collection.
func (r RetrievalConfig) DatabasePath() string {
	return filepath.Join(r.DataDir, r.Collection+".db")
}

// DocumentsDir is where ingest looks when given no paths.
func (r RetrievalConfig) DocumentsDir() string {
	return filepath.Join(r.DataDir, "documents")
}

// EvalConfig holds scoring configuration.
type EvalConfig struct {
	Weights   eval.Weights `json:"weights" mapstructure:"weights" yaml:"weights"`
	ReportDir string       `json:"report_dir" mapstructure:"report_dir" yaml:"report_dir"`
}

// OutputConfig holds where generated content goes. An empty Dir disables
// saving.
type OutputConfig struct {
	Dir string `json:"dir" mapstructure:"dir" yaml:"dir"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Agent: AgentConfig{
			StepTimeout:        30 * time.Second,
			ToolRetries:        3,
			ExpectedSteps:      eval.DefaultExpectedSteps,
			FallbackCapability: "query",
			MaxSteps:           8,
		},
		Retrieval: RetrievalConfig{
			DataDir:       "data",
			Collection:    "documents",
			Embedder:      "hash",
			Dimension:     512,
			ChunkSize:     1000,
			ChunkOverlap:  200,
			TopK:          5,
			MinSimilarity: 0,
			BatchSize:     100,
		},
		Eval: EvalConfig{
			Weights:   eval.DefaultWeights(),
			ReportDir: "reports",
		},
		Output: OutputConfig{Dir: "outputs"},
	}
}

// New returns a viper instance with defaults and environment overrides
// installed. Callers bind their flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("agent.step_timeout", d.Agent.StepTimeout)
	v.SetDefault("agent.tool_retries", d.Agent.ToolRetries)
	v.SetDefault("agent.expected_steps", d.Agent.ExpectedSteps)
	v.SetDefault("agent.fallback_capability", d.Agent.FallbackCapability)
	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("retrieval.data_dir", d.Retrieval.DataDir)
	v.SetDefault("retrieval.collection", d.Retrieval.Collection)
	v.SetDefault("retrieval.embedder", d.Retrieval.Embedder)
	v.SetDefault("retrieval.embedding_model", d.Retrieval.EmbeddingModel)
	v.SetDefault("retrieval.dimension", d.Retrieval.Dimension)
	v.SetDefault("retrieval.chunk_size", d.Retrieval.ChunkSize)
	v.SetDefault("retrieval.chunk_overlap", d.Retrieval.ChunkOverlap)
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.min_similarity", d.Retrieval.MinSimilarity)
	v.SetDefault("retrieval.batch_size", d.Retrieval.BatchSize)
	v.SetDefault("eval.weights.success", d.Eval.Weights.Success)
	v.SetDefault("eval.weights.efficiency", d.Eval.Weights.Efficiency)
	v.SetDefault("eval.weights.tool_usage", d.Eval.Weights.ToolUsage)
	v.SetDefault("eval.weights.reflection", d.Eval.Weights.Reflection)
	v.SetDefault("eval.report_dir", d.Eval.ReportDir)
	v.SetDefault("output.dir", d.Output.Dir)
}

// Load reads the optional config file at path, decodes the merged settings
// and validates them. Every failure is a configuration error.
func Load(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %v: %w", path, err, model.ErrConfiguration)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse config: %v: %w", err, model.ErrConfiguration)
	}

	s.LLM.Provider = normalizeProvider(s.LLM.Provider)
	s.Retrieval.Embedder = strings.ToLower(strings.TrimSpace(s.Retrieval.Embedder))
	if s.LLM.Model == "" {
		if m, err := ModelFor(s.LLM.Provider); err == nil {
			s.LLM.Model = m
		}
	}

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// WriteDefault writes the default settings as YAML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", llm.ModelOpenAIGPT4o, "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", llm.ModelAnthropicClaudeSonnet4, "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", llm.ModelDeepSeekChat, "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", llm.ModelGeminiFlash25, "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q: %w", provider, model.ErrConfiguration)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set: %w", info.apiKeyEnv, model.ErrConfiguration)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
