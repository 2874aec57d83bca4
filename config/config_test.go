package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
model:
  name: gpt-4o
  base_url: https://api.example.com/v1
  api_key: ${CAPTAIN_TEST_KEY}
`

func TestParse_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CAPTAIN_TEST_KEY", "sk-test")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, DefaultTools, cfg.Tools)
	assert.NotContains(t, cfg.Tools, "internet_search")
	assert.True(t, cfg.UsesDocuments())
	assert.Equal(t, filepath.Join(".", ".captain", "documents.db"), cfg.Documents.Path)
	assert.Equal(t, filepath.Join(".", ".captain", "history.txt"), cfg.REPL.HistoryFile)
	assert.Equal(t, "https://api.tavily.com", cfg.Search.BaseURL)
	assert.Equal(t, ".", cfg.Workspace)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join(".", ".captain", "checkpoint.db"), cfg.Database.Path)
	assert.Equal(t, DefaultThreadID, cfg.ThreadID)
	assert.Equal(t, 50, cfg.Limits.MaxModelCalls)
	assert.Equal(t, 4, cfg.Limits.MaxParallelTools)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Warnings)
}

func TestParse_MissingModel(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"no key", "model: {name: m, base_url: http://x}"},
		{"no url", "model: {name: m, api_key: k}"},
		{"env unset", "model: {name: m, base_url: http://x, api_key: '${CAPTAIN_UNSET_VAR}'}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrMissingModel)
		})
	}
}

func TestParse_SubAgents(t *testing.T) {
	doc := `
model: {provider: anthropic, name: claude, base_url: http://x, api_key: k}
sub_agents:
  researcher:
    description: Finds things
    name: gpt-4o-mini
    base_url: http://y
    api_key: k2
    tools: [fetch_url]
  broken:
    description: lacks a model name
    base_url: http://y
    api_key: k2
  task:
    name: m
    base_url: http://y
    api_key: k2
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, cfg.SubAgents, 1)
	r := cfg.SubAgents["researcher"]
	assert.Equal(t, ProviderAnthropic, r.Provider, "provider is inherited")
	assert.Equal(t, []string{"fetch_url"}, r.Tools)
	assert.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], `"broken"`)
}

func TestParse_Invalid(t *testing.T) {
	base := "model: {name: m, base_url: http://x, api_key: k}\n"
	tests := map[string]string{
		"provider": "model: {provider: nope, name: m, base_url: http://x, api_key: k}",
		"tool":     base + "tools: [rm_rf]",
		"driver":   base + "database: {driver: postgres}",
		"level":    base + "logging: {level: loud}",
		"format":   base + "logging: {format: xml}",
		"limits":   base + "limits: {max_model_calls: -1}",
		"search":   base + "tools: [internet_search]",
		"prompt":   base + "prompts: {'bad name': {template: x}}",
		"reserved": base + "prompts: {list: {template: x}}",
		"empty":    base + "prompts: {review: {description: nothing}}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: {name: m, base_url: http://x, api_key: k}
workspace: /tmp/ws
database: {driver: memory}
tools: []
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws", cfg.Workspace)
	assert.Empty(t, cfg.Database.Path)
	assert.Empty(t, cfg.Documents.Path)
	assert.Empty(t, cfg.Tools)
	assert.False(t, cfg.UsesDocuments())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnv_LeavesBareDollar(t *testing.T) {
	t.Setenv("CAPTAIN_X", "1")
	assert.Equal(t, "1 costs $5", ExpandEnv("${CAPTAIN_X} costs $5"))
}

func TestParse_WorkspaceOverrideMovesDefaultDatabase(t *testing.T) {
	cfg, err := Parse([]byte("model: {name: m, base_url: http://x, api_key: k}\nworkspace: ./a\n"), WithWorkspace("/srv/ws"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/ws", cfg.Workspace)
	assert.Equal(t, filepath.Join("/srv/ws", ".captain", "checkpoint.db"), cfg.Database.Path)

	cfg, err = Parse([]byte("model: {name: m, base_url: http://x, api_key: k}\nworkspace: ./a\n"), WithWorkspace(""))
	require.NoError(t, err)
	assert.Equal(t, "./a", cfg.Workspace)
}

func TestParse_PromptsAndSearch(t *testing.T) {
	doc := `
model: {name: m, base_url: http://x, api_key: k}
tools: [internet_search]
search: {api_key: tvly-1}
repl: {no_history: true}
prompts:
  review:
    description: Review a file
    template: "Review {{.Input}} carefully."
  explain:
    template: Explain {{.Input}}
sub_agents:
  scout:
    name: m
    base_url: http://y
    api_key: k2
    tools: [search_documents]
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"explain", "review"}, cfg.PromptNames())
	assert.Equal(t, "Review a file", cfg.Prompts["review"].Description)
	assert.Empty(t, cfg.REPL.HistoryFile)
	assert.True(t, cfg.UsesDocuments(), "sub-agent tools count")
	assert.Equal(t, "tvly-1", cfg.Search.APIKey)
}

func TestParse_SubAgentSearchWithoutKeyIsSkipped(t *testing.T) {
	doc := `
model: {name: m, base_url: http://x, api_key: k}
sub_agents:
  scout: {name: m, base_url: http://y, api_key: k2, tools: [internet_search]}
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, cfg.SubAgents)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "search.api_key")
}
