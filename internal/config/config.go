// Package config defines the declarative experiment configuration: methods
// with their parameters, LLM backends, datasets, retrievers, and global
// execution limits. The configuration is loaded and validated once at
// startup and passed to every component as an immutable value.
package config

import (
	"fmt"
	"sort"
	"time"
)

// Config is the root experiment configuration.
type Config struct {
	Methods    map[string]MethodParams `yaml:"methods"`
	LLMs       map[string]LLMBackend   `yaml:"llms"`
	Datasets   []string                `yaml:"datasets"`
	Retrievers []string                `yaml:"retrievers"`
	Retrieval  RetrievalConfig         `yaml:"retrieval"`
	Context    ContextConfig           `yaml:"context_retrieval"`
	Evaluation EvalConfig              `yaml:"evaluation"`
	Execution  ExecutionConfig         `yaml:"execution"`
	Paths      PathsConfig             `yaml:"paths"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// MethodParams holds method-specific hyper-parameters from the config
// document. Keys are validated against the method's parameter schema at
// startup; missing required parameters are a startup error.
type MethodParams map[string]any

// LLMBackend configures one LLM backend selectable by identifier.
type LLMBackend struct {
	// Provider is one of "openai", "openrouter", "anthropic".
	Provider string `yaml:"provider"`

	// Model is the provider-side model identifier
	// (e.g. "gpt-4.1", "qwen/qwen-2.5-72b-instruct").
	Model string `yaml:"model"`

	// APIKey for the provider. Supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (optional).
	BaseURL string `yaml:"base_url"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// Timeout applies per call, not per job.
	Timeout time.Duration `yaml:"timeout"`
}

// RetrievalConfig configures the retrieval stage.
type RetrievalConfig struct {
	// Endpoint is the base URL of the search service.
	Endpoint string `yaml:"endpoint"`

	// Depth is the number of documents retrieved per query.
	Depth int `yaml:"depth"`

	Timeout time.Duration `yaml:"timeout"`
}

// EvalConfig configures the evaluation stage.
type EvalConfig struct {
	// TrecEvalBinary is the trec_eval executable, resolved via PATH
	// when bare.
	TrecEvalBinary string `yaml:"trec_eval_binary"`
}

// ContextConfig configures context retrieval for corpus-grounded methods.
type ContextConfig struct {
	// K is the number of passages fetched per query before prompting.
	K int `yaml:"k"`

	// Retriever names the backend used for context retrieval.
	Retriever string `yaml:"retriever"`
}

// ExecutionConfig holds global concurrency and retry limits.
type ExecutionConfig struct {
	// LLMConcurrency bounds simultaneous in-flight LLM calls.
	LLMConcurrency int `yaml:"llm_concurrency"`

	// RetrievalConcurrency bounds simultaneous retrieval calls.
	RetrievalConcurrency int `yaml:"retrieval_concurrency"`

	// MaxAttempts is the per-call attempt cap (including the first).
	MaxAttempts int `yaml:"max_attempts"`

	// RetryInitialDelay is the backoff after the first failure.
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`

	// RetryMaxDelay caps the backoff between attempts.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`

	// Force recomputes artifacts even when they already exist.
	Force bool `yaml:"force"`
}

// PathsConfig locates inputs and outputs on disk.
type PathsConfig struct {
	Queries string `yaml:"queries"` // directory of {dataset}.tsv topic files
	Output  string `yaml:"output"`  // artifact root
	Prompts string `yaml:"prompts"` // prompt bank JSON
	Results string `yaml:"results"` // results SQLite database
	Qrels   string `yaml:"qrels"`   // optional qrels override directory
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Default returns a configuration with all limits set to usable values.
// Loaded documents are merged over these defaults.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			Endpoint: "http://localhost:8093",
			Depth:    1000,
			Timeout:  2 * time.Minute,
		},
		Evaluation: EvalConfig{
			TrecEvalBinary: "trec_eval",
		},
		Context: ContextConfig{
			K:         10,
			Retriever: "bm25",
		},
		Execution: ExecutionConfig{
			LLMConcurrency:       8,
			RetrievalConcurrency: 2,
			MaxAttempts:          3,
			RetryInitialDelay:    time.Second,
			RetryMaxDelay:        30 * time.Second,
		},
		Paths: PathsConfig{
			Queries: "data/queries",
			Output:  "outputs",
			Prompts: "prompts/prompts.json",
			Results: "outputs/results.db",
			Qrels:   "data/qrels",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for errors that must surface before any
// external call is made: unknown datasets and retrievers, malformed backend
// entries, nonsensical limits. Method parameter schemas are validated
// separately against the method registry.
func (c *Config) Validate() error {
	if len(c.Methods) == 0 {
		return fmt.Errorf("config: no methods configured")
	}
	if len(c.LLMs) == 0 {
		return fmt.Errorf("config: no llm backends configured")
	}
	for name, backend := range c.LLMs {
		switch backend.Provider {
		case "openai", "openrouter", "anthropic":
		case "":
			return fmt.Errorf("config: llm %q: provider is required", name)
		default:
			return fmt.Errorf("config: llm %q: unknown provider %q", name, backend.Provider)
		}
		if backend.Model == "" {
			return fmt.Errorf("config: llm %q: model is required", name)
		}
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("config: no datasets configured")
	}
	for _, ds := range c.Datasets {
		if _, ok := LookupDataset(ds); !ok {
			return fmt.Errorf("config: unknown dataset %q (available: %v)", ds, DatasetNames())
		}
	}
	if len(c.Retrievers) == 0 {
		return fmt.Errorf("config: no retrievers configured")
	}
	for _, r := range c.Retrievers {
		switch r {
		case "bm25", "splade", "bge":
		default:
			return fmt.Errorf("config: unknown retriever %q (available: bm25, splade, bge)", r)
		}
	}
	if c.Execution.LLMConcurrency <= 0 || c.Execution.RetrievalConcurrency <= 0 {
		return fmt.Errorf("config: concurrency limits must be positive")
	}
	if c.Execution.MaxAttempts <= 0 {
		return fmt.Errorf("config: max_attempts must be positive")
	}
	if c.Retrieval.Depth <= 0 {
		return fmt.Errorf("config: retrieval depth must be positive")
	}
	return nil
}

// MethodNames returns the configured method identifiers in sorted order.
func (c *Config) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for name := range c.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LLMNames returns the configured backend identifiers in sorted order.
func (c *Config) LLMNames() []string {
	names := make([]string, 0, len(c.LLMs))
	for name := range c.LLMs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
