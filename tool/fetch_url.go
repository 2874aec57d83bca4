package tool

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hupe1980/captain/core"
)

// FetchURLToolName is the name of the URL fetch tool.
const FetchURLToolName = "fetch_url"

const (
	defaultFetchTimeout = 30 * time.Second
	maxFetchBody        = 2 << 20
	defaultMaxContent   = 10000
	fetchUserAgent      = "Mozilla/5.0 (compatible; captain/1.0)"
)

// NewFetchURLTool creates a tool fetching a URL and extracting readable text.
// A nil client uses one with a 30s timeout.
func NewFetchURLTool(client *http.Client) Tool {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return NewFunctionTool(
		FetchURLToolName,
		"Fetch and extract text content from a URL. Returns title, description, and main text content.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":                map[string]any{"type": "string", "description": "The URL to fetch"},
				"max_content_length": map[string]any{"type": "integer", "description": "Maximum content length to return (default 10000)"},
			},
			"required": []string{"url"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return fetchURL(tc, client, stringArg(args, "url"), intArg(args, "max_content_length", defaultMaxContent))
		},
	)
}

func fetchURL(tc *core.ToolContext, client *http.Client, url string, maxContent int) (string, error) {
	req, err := http.NewRequestWithContext(tc.Context(), http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	body := io.LimitReader(resp.Body, maxFetchBody)
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		return fmt.Sprintf("URL: %s\n\nContent:\n%s", url, truncate(string(raw), maxContent)), nil
	}

	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	page := extractPage(doc)

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", url)
	if page.title != "" {
		fmt.Fprintf(&b, "Title: %s\n", page.title)
	}
	if page.description != "" {
		fmt.Fprintf(&b, "Description: %s\n", page.description)
	}
	fmt.Fprintf(&b, "\nContent:\n%s", truncate(page.text, maxContent))
	return b.String(), nil
}

type page struct {
	title       string
	description string
	text        string
}

func extractPage(doc *html.Node) page {
	var p page
	var ogDescription string
	var main, body *html.Node

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if p.title == "" {
					p.title = strings.TrimSpace(textOf(n))
				}
			case atom.Meta:
				name, property, content := attr(n, "name"), attr(n, "property"), attr(n, "content")
				if name == "description" && p.description == "" {
					p.description = content
				}
				if property == "og:description" {
					ogDescription = content
				}
			case atom.Main, atom.Article:
				if main == nil {
					main = n
				}
			case atom.Body:
				body = n
			}
			if main == nil && attr(n, "role") == "main" {
				main = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.description == "" {
		p.description = ogDescription
	}
	root := main
	if root == nil {
		root = body
	}
	if root == nil {
		root = doc
	}

	var lines []string
	for _, line := range strings.Split(textOf(root), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	p.text = strings.Join(lines, "\n")
	return p
}

// textOf collects the text below n, one line per text node, skipping
// non-content elements.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Header, atom.Aside, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
