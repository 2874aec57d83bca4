// Package config loads the YAML configuration of a captain deployment: the
// major model, named sub-agents, workspace, checkpoint database, document
// memory, limits, logging, metrics and the prompt templates of the REPL.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/tool"
)

var (
	// ErrMissingModel is returned when the major model is incompletely configured.
	ErrMissingModel = errors.New("model name, base_url and api_key are required")
	// ErrInvalidConfig wraps any other validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DefaultThreadID is the conversation thread used when none is configured.
const DefaultThreadID = "major_thread"

// BuiltinTools lists the tool names a configuration may reference.
var BuiltinTools = []string{
	tool.ShellExecToolName,
	tool.FetchURLToolName,
	tool.ReadImageToolName,
	tool.StoreMarkdownToolName,
	tool.SearchDocumentsToolName,
	tool.ListCollectionsToolName,
	tool.InternetSearchToolName,
}

// DefaultTools are given to the major model when the tools list is omitted.
// internet_search needs an API key and is opt-in.
var DefaultTools = []string{
	tool.ShellExecToolName,
	tool.FetchURLToolName,
	tool.ReadImageToolName,
	tool.StoreMarkdownToolName,
	tool.SearchDocumentsToolName,
	tool.ListCollectionsToolName,
}

// DocumentTools are the tools backed by the document store.
var DocumentTools = []string{tool.StoreMarkdownToolName, tool.SearchDocumentsToolName, tool.ListCollectionsToolName}

// ModelConfig selects and parameterizes a provider model.
type ModelConfig struct {
	Provider       string   `yaml:"provider"`
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      int64    `yaml:"max_tokens"`
	ThinkingBudget int64    `yaml:"thinking_budget"`
}

// SubAgentConfig describes a delegation target.
type SubAgentConfig struct {
	ModelConfig `yaml:",inline"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
}

// DatabaseConfig selects the checkpoint store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LimitsConfig bounds the work done per turn.
type LimitsConfig struct {
	MaxModelCalls    int     `yaml:"max_model_calls"`
	MaxParallelTools int     `yaml:"max_parallel_tools"`
	ModelRPS         float64 `yaml:"model_rps"`
	ModelBurst       int     `yaml:"model_burst"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DocumentsConfig locates the document memory. An empty Path keeps the
// documents in memory.
type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig configures the internet_search tool.
type SearchConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// PromptTemplate is a reusable REPL prompt, invoked as /<name> [args].
type PromptTemplate struct {
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

// REPLConfig configures the interactive shell.
type REPLConfig struct {
	HistoryFile string `yaml:"history_file"`
	NoHistory   bool   `yaml:"no_history"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration document.
type Config struct {
	Model     ModelConfig               `yaml:"model"`
	Tools     []string                  `yaml:"tools"`
	SubAgents map[string]SubAgentConfig `yaml:"sub_agents"`
	Workspace string                    `yaml:"workspace"`
	Database  DatabaseConfig            `yaml:"database"`
	ThreadID  string                    `yaml:"thread_id"`
	Limits    LimitsConfig              `yaml:"limits"`
	Logging   LoggingConfig             `yaml:"logging"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Documents DocumentsConfig           `yaml:"documents"`
	Search    SearchConfig              `yaml:"search"`
	Prompts   map[string]PromptTemplate `yaml:"prompts"`
	REPL      REPLConfig                `yaml:"repl"`

	// Warnings collects non fatal problems found by Validate, such as
	// skipped sub-agents.
	Warnings []string `yaml:"-"`
}

// Override adjusts a decoded configuration before defaults are applied, for
// example with command line flags.
type Override func(c *Config)

// WithWorkspace replaces the workspace directory.
func WithWorkspace(dir string) Override {
	return func(c *Config) {
		if dir != "" {
			c.Workspace = dir
		}
	}
}

// Load reads, expands, defaults and validates the file at path.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, overrides...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document. ${VAR} references are replaced with the
// environment value before decoding.
func Parse(data []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} with the value of the environment variable VAR.
// Bare $VAR is left untouched so prompts can contain dollar signs.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderOpenAI
	}
	if c.Tools == nil {
		c.Tools = append([]string(nil), DefaultTools...)
	}
	for name, sa := range c.SubAgents {
		if sa.Provider == "" {
			sa.Provider = c.Model.Provider
		}
		c.SubAgents[name] = sa
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Workspace, ".captain", "checkpoint.db")
	}
	if c.Database.Driver == DriverSQLite && c.Documents.Path == "" {
		c.Documents.Path = filepath.Join(c.Workspace, ".captain", "documents.db")
	}
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = tool.DefaultSearchBaseURL
	}
	if !c.REPL.NoHistory && c.REPL.HistoryFile == "" {
		c.REPL.HistoryFile = filepath.Join(c.Workspace, ".captain", "history.txt")
	}
	if c.ThreadID == "" {
		c.ThreadID = DefaultThreadID
	}
	if c.Limits.MaxModelCalls == 0 {
		c.Limits.MaxModelCalls = 50
	}
	if c.Limits.MaxParallelTools == 0 {
		c.Limits.MaxParallelTools = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration. Incomplete sub-agents are removed and
// reported in Warnings; everything else is fatal.
func (c *Config) Validate() error {
	if c.Model.Name == "" || c.Model.BaseURL == "" || c.Model.APIKey == "" {
		return ErrMissingModel
	}
	if err := validProvider(c.Model.Provider); err != nil {
		return err
	}
	if err := c.validTools(c.Tools); err != nil {
		return err
	}

	names := make([]string, 0, len(c.SubAgents))
	for name := range c.SubAgents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sa := c.SubAgents[name]
		var problem error
		switch {
		case sa.Name == "" || sa.BaseURL == "" || sa.APIKey == "":
			problem = errors.New("name, base_url and api_key are required")
		case name == tool.TaskToolName:
			problem = fmt.Errorf("name %q is reserved", name)
		default:
			if err := validProvider(sa.Provider); err != nil {
				problem = err
			} else if err := c.validTools(sa.Tools); err != nil {
				problem = err
			}
		}
		if problem != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("sub-agent %q skipped: %v", name, problem))
			delete(c.SubAgents, name)
		}
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Limits.MaxModelCalls < 0 || c.Limits.MaxParallelTools < 0 || c.Limits.ModelRPS < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}
	for name, p := range c.Prompts {
		if !promptName.MatchString(name) || name == ListPromptsCommand {
			return fmt.Errorf("%w: invalid prompt name %q", ErrInvalidConfig, name)
		}
		if p.Template == "" {
			return fmt.Errorf("%w: prompt %q has no template", ErrInvalidConfig, name)
		}
	}
	return nil
}

// ListPromptsCommand is the REPL command listing the prompt templates; no
// template may take its name.
const ListPromptsCommand = "list"

var promptName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PromptNames returns the configured template names in sorted order.
func (c *Config) PromptNames() []string {
	names := make([]string, 0, len(c.Prompts))
	for name := range c.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UsesDocuments reports whether the major model or any sub-agent has a tool
// backed by the document store.
func (c *Config) UsesDocuments() bool {
	if hasAny(c.Tools, DocumentTools) {
		return true
	}
	for _, sa := range c.SubAgents {
		if hasAny(sa.Tools, DocumentTools) {
			return true
		}
	}
	return false
}

func hasAny(names, set []string) bool {
	for _, n := range names {
		for _, s := range set {
			if n == s {
				return true
			}
		}
	}
	return false
}

func validProvider(p string) error {
	switch p {
	case ProviderOpenAI, ProviderAnthropic:
		return nil
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, p)
	}
}

func (c *Config) validTools(names []string) error {
	for _, n := range names {
		if n == tool.InternetSearchToolName && c.Search.APIKey == "" {
			return fmt.Errorf("%w: %s requires search.api_key", ErrInvalidConfig, n)
		}
		known := false
		for _, b := range BuiltinTools {
			if n == b {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown tool %q", ErrInvalidConfig, n)
		}
	}
	return nil
}
