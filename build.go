package captain

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/engine"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/memory"
	memsqlite "github.com/hupe1980/captain/memory/sqlite"
	"github.com/hupe1980/captain/metrics"
	"github.com/hupe1980/captain/model"
	"github.com/hupe1980/captain/model/anthropic"
	"github.com/hupe1980/captain/model/openai"
	"github.com/hupe1980/captain/session"
	"github.com/hupe1980/captain/session/sqlite"
	"github.com/hupe1980/captain/tool"
)

// RootAgentName is the name of the agent answering the user.
const RootAgentName = "captain"

// DefaultInstruction is used when the major model has no system prompt.
const DefaultInstruction = `You are {{.AgentName}}, a helpful assistant working in {{.Workspace}}.
{{- if .SubAgents}}
You can delegate focused work with the task tool to: {{range $i, $n := .SubAgents}}{{if $i}}, {{end}}{{$n}}{{end}}.
{{- end}}`

// ModelFactory builds a provider model from its configuration.
type ModelFactory func(mc config.ModelConfig) (model.Model, error)

// BuildOptions tunes FromConfig.
type BuildOptions struct {
	// Logger overrides the logger described by the configuration.
	Logger logging.Logger
	// Metrics is optional; nil disables collection.
	Metrics *metrics.Metrics
	// Tracer defaults to the global otel tracer.
	Tracer trace.Tracer
	// Models overrides provider construction.
	Models ModelFactory
	// HTTPClient is used by the fetch_url and internet_search tools.
	HTTPClient *http.Client
	// Documents overrides the document store described by the configuration.
	Documents core.DocumentStore
	// Callbacks are passed on to the engine.
	Callbacks []engine.Callback
}

// FromConfig wires providers, tools, sub-agents, the checkpoint store and the
// document memory described by cfg into a Captain.
func FromConfig(cfg *config.Config, optFns ...func(o *BuildOptions)) (*Captain, error) {
	opts := BuildOptions{Models: NewModel}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Models == nil {
		opts.Models = NewModel
	}

	logger := opts.Logger
	if logger == nil {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logger = logging.NewLogger(&logging.LoggerConfig{Level: level, Format: cfg.Logging.Format})
	}
	for _, w := range cfg.Warnings {
		logger.Warn("captain.config.warning", "warning", w)
	}

	store, closer, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	if closer != nil {
		closers = append(closers, closer)
	}
	fail := func(err error) (*Captain, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}

	deps := ToolDeps{
		HTTPClient: opts.HTTPClient,
		Documents:  opts.Documents,
		Search:     tool.SearchOptions{APIKey: cfg.Search.APIKey, BaseURL: cfg.Search.BaseURL, Client: opts.HTTPClient},
	}
	if deps.Documents == nil && cfg.UsesDocuments() {
		docs, closer, err := openDocuments(cfg.Documents)
		if err != nil {
			return fail(err)
		}
		deps.Documents = docs
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	rootModel, err := opts.Models(cfg.Model)
	if err != nil {
		return fail(fmt.Errorf("major model: %w", err))
	}
	rootTools, err := BuildTools(cfg.Tools, deps)
	if err != nil {
		return fail(err)
	}
	instruction := cfg.Model.SystemPrompt
	if instruction == "" {
		instruction = DefaultInstruction
	}
	root := &engine.Agent{
		Name:        RootAgentName,
		Instruction: instruction,
		Model:       rootModel,
		Tools:       rootTools,
	}

	names := make([]string, 0, len(cfg.SubAgents))
	for name := range cfg.SubAgents {
		names = append(names, name)
	}
	sort.Strings(names)

	subAgents := make([]*engine.Agent, 0, len(names))
	for _, name := range names {
		sc := cfg.SubAgents[name]
		m, err := opts.Models(sc.ModelConfig)
		if err != nil {
			return fail(fmt.Errorf("sub-agent %s: %w", name, err))
		}
		tools, err := BuildTools(sc.Tools, deps)
		if err != nil {
			return fail(fmt.Errorf("sub-agent %s: %w", name, err))
		}
		subAgents = append(subAgents, &engine.Agent{
			Name:        name,
			Description: sc.Description,
			Instruction: sc.SystemPrompt,
			Model:       m,
			Tools:       tools,
		})
	}

	eng, err := engine.New(func(o *engine.Options) {
		o.Root = root
		o.SubAgents = subAgents
		o.SessionStore = store
		o.Logger = logger
		o.Metrics = opts.Metrics
		o.Tracer = opts.Tracer
		o.MaxModelCalls = cfg.Limits.MaxModelCalls
		o.MaxParallelTools = cfg.Limits.MaxParallelTools
		o.ModelRate = rate.Limit(cfg.Limits.ModelRPS)
		o.ModelBurst = cfg.Limits.ModelBurst
		o.Workspace = cfg.Workspace
		o.Callbacks = opts.Callbacks
	})
	if err != nil {
		return fail(err)
	}

	logger.Info("captain.ready",
		"model", cfg.Model.Name,
		"provider", cfg.Model.Provider,
		"tools", len(rootTools),
		"sub_agents", len(subAgents),
		"database", cfg.Database.Driver,
		"workspace", cfg.Workspace,
	)

	return New(func(o *Options) {
		o.Runtime = eng
		o.ThreadID = cfg.ThreadID
		o.Logger = logger
		o.Metrics = opts.Metrics
		o.Closers = closers
	})
}

// NewModel builds an OpenAI compatible or Anthropic model.
func NewModel(mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case config.ProviderOpenAI, "":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.Name
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = mc.MaxTokens
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Name)
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			o.ThinkingBudget = mc.ThinkingBudget
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = mc.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

// ToolDeps are the shared resources builtin tools are constructed with.
type ToolDeps struct {
	// HTTPClient defaults to one with a 30s timeout.
	HTTPClient *http.Client
	// Documents backs the document tools; nil selects an in-memory store.
	Documents core.DocumentStore
	Search    tool.SearchOptions
}

// BuildTools instantiates builtin tools by name. The document tools share
// deps.Documents.
func BuildTools(names []string, deps ToolDeps) ([]tool.Tool, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Search.Client == nil {
		deps.Search.Client = deps.HTTPClient
	}
	if deps.Documents == nil {
		deps.Documents = memory.NewInMemoryStore()
	}
	tools := make([]tool.Tool, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		switch n {
		case tool.ShellExecToolName:
			tools = append(tools, tool.NewShellExecTool())
		case tool.FetchURLToolName:
			tools = append(tools, tool.NewFetchURLTool(deps.HTTPClient))
		case tool.ReadImageToolName:
			tools = append(tools, tool.NewReadImageTool())
		case tool.StoreMarkdownToolName:
			tools = append(tools, tool.NewStoreMarkdownTool(deps.Documents))
		case tool.SearchDocumentsToolName:
			tools = append(tools, tool.NewSearchDocumentsTool(deps.Documents))
		case tool.ListCollectionsToolName:
			tools = append(tools, tool.NewListCollectionsTool(deps.Documents))
		case tool.InternetSearchToolName:
			tools = append(tools, tool.NewInternetSearchTool(deps.Search))
		default:
			return nil, fmt.Errorf("unknown tool %q", n)
		}
	}
	return tools, nil
}

func openStore(db config.DatabaseConfig) (core.SessionStore, io.Closer, error) {
	switch db.Driver {
	case config.DriverMemory:
		return session.NewInMemoryStore(), nil, nil
	case config.DriverSQLite, "":
		s, err := sqlite.Open(db.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open checkpoint database: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

func openDocuments(dc config.DocumentsConfig) (core.DocumentStore, io.Closer, error) {
	if dc.Path == "" {
		return memory.NewInMemoryStore(), nil, nil
	}
	s, err := memsqlite.Open(dc.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open document database: %w", err)
	}
	return s, s, nil
}
