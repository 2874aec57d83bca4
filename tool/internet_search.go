package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/captain/core"
)

// InternetSearchToolName is the name of the web search tool.
const InternetSearchToolName = "internet_search"

// DefaultSearchBaseURL is the Tavily API endpoint.
const DefaultSearchBaseURL = "https://api.tavily.com"

const defaultSearchTimeout = 30 * time.Second

// SearchOptions configure the internet_search tool.
type SearchOptions struct {
	APIKey  string
	BaseURL string // defaults to DefaultSearchBaseURL
	Client  *http.Client
}

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	Topic             string `json:"topic"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeAnswer     bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// NewInternetSearchTool creates a tool running web searches through the
// Tavily search API.
func NewInternetSearchTool(opts SearchOptions) Tool {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSearchBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultSearchTimeout}
	}
	return NewFunctionTool(
		InternetSearchToolName,
		"Run a web search to find information",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":               map[string]any{"type": "string", "description": "The query to search for"},
				"max_results":         map[string]any{"type": "integer", "description": "The maximum number of results to return (default 5)", "minimum": 1},
				"topic":               map[string]any{"type": "string", "enum": []string{"general", "news", "finance"}, "description": "The topic of the search"},
				"include_raw_content": map[string]any{"type": "boolean", "description": "Whether to include raw content in the results"},
				"include_answer":      map[string]any{"type": "boolean", "description": "Whether to include an answer in the results"},
			},
			"required": []string{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			req := searchRequest{
				Query:      stringArg(args, "query"),
				MaxResults: intArg(args, "max_results", 5),
				Topic:      stringArg(args, "topic"),
			}
			if req.Topic == "" {
				req.Topic = "general"
			}
			req.IncludeRawContent, _ = args["include_raw_content"].(bool)
			req.IncludeAnswer, _ = args["include_answer"].(bool)
			return search(tc, opts, req)
		},
	)
}

func search(tc *core.ToolContext, opts SearchOptions, in searchRequest) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	url := strings.TrimSuffix(opts.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(tc.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("search: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBody)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var b strings.Builder
	if out.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n\n", out.Answer)
	}
	if len(out.Results) == 0 {
		b.WriteString("No results found.")
		return b.String(), nil
	}
	for i, r := range out.Results {
		fmt.Fprintf(&b, "%d. %s\nURL: %s\n%s\n", i+1, r.Title, r.URL, r.Content)
		if r.RawContent != "" {
			fmt.Fprintf(&b, "Raw content:\n%s\n", truncate(r.RawContent, defaultMaxContent))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n\n"), nil
}
