package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/memory"
)

// Document tool names.
const (
	StoreMarkdownToolName   = "store_markdown"
	SearchDocumentsToolName = "search_documents"
	ListCollectionsToolName = "list_collections"
)

const defaultSearchLimit = 5

// StoreMarkdownArgs are the arguments of store_markdown.
type StoreMarkdownArgs struct {
	Path         string `json:"path" description:"Markdown file to store, relative to the workspace"`
	Collection   string `json:"collection,omitempty" description:"Collection name (default: file name without extension)"`
	ChunkSize    int    `json:"chunk_size,omitempty" description:"Maximum characters per chunk (default 600)"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty" description:"Characters shared between neighbouring chunks (default 100)"`
}

// SearchDocumentsArgs are the arguments of search_documents.
type SearchDocumentsArgs struct {
	Query      string `json:"query" description:"Search query"`
	Collection string `json:"collection" description:"Collection to search"`
	Limit      int    `json:"limit,omitempty" description:"Maximum number of results (default 5)"`
}

// NewDocumentTools returns store_markdown, search_documents and
// list_collections backed by store.
func NewDocumentTools(store core.DocumentStore) []Tool {
	return []Tool{
		NewStoreMarkdownTool(store),
		NewSearchDocumentsTool(store),
		NewListCollectionsTool(store),
	}
}

// NewStoreMarkdownTool creates a tool splitting a workspace markdown file
// along its headings and storing the chunks in a collection. Storing the same
// file again replaces its chunks.
func NewStoreMarkdownTool(store core.DocumentStore) Tool {
	return NewFunctionToolFromStruct(
		StoreMarkdownToolName,
		"Store a markdown file in the document memory, split by its heading structure, so it can be searched later.",
		StoreMarkdownArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			var in StoreMarkdownArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			path, err := resolvePath(tc.Workspace(), in.Path)
			if err != nil {
				return nil, err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", in.Path, err)
			}

			size, overlap := in.ChunkSize, in.ChunkOverlap
			if size <= 0 {
				size = memory.DefaultChunkSize
			}
			if _, ok := args["chunk_overlap"]; !ok {
				overlap = memory.DefaultChunkOverlap
			}
			source := filepath.Base(path)
			chunks := memory.SplitMarkdown(string(raw), source, size, overlap)
			if len(chunks) == 0 {
				return fmt.Sprintf("No content found in '%s'.", in.Path), nil
			}

			collection := memory.CollectionName(in.Collection, source)
			if err := store.Store(collection, source, chunks); err != nil {
				return nil, fmt.Errorf("store %s: %w", in.Path, err)
			}
			tc.Logger().Info("documents.stored", "collection", collection, "source", source, "chunks", len(chunks))
			return fmt.Sprintf("Stored %d chunks from '%s' in collection '%s'.", len(chunks), source, collection), nil
		},
	)
}

// NewSearchDocumentsTool creates a tool searching one collection.
func NewSearchDocumentsTool(store core.DocumentStore) Tool {
	return NewFunctionToolFromStruct(
		SearchDocumentsToolName,
		"Search a document collection by keywords and return the most relevant chunks with their heading path.",
		SearchDocumentsArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			var in SearchDocumentsArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if strings.TrimSpace(in.Query) == "" {
				return nil, errors.New("query must not be empty")
			}
			limit := in.Limit
			if limit <= 0 {
				limit = defaultSearchLimit
			}
			collection := memory.CollectionName(in.Collection, "")
			results, err := store.Search(collection, in.Query, limit)
			if err != nil {
				return nil, err
			}
			return formatResults(collection, results), nil
		},
	)
}

// NewListCollectionsTool creates a tool listing the stored collections.
func NewListCollectionsTool(store core.DocumentStore) Tool {
	return NewFunctionTool(
		ListCollectionsToolName,
		"List the document collections and how many chunks each holds.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			infos, err := store.Collections()
			if err != nil {
				return nil, err
			}
			if len(infos) == 0 {
				return "No collections found.", nil
			}
			var b strings.Builder
			b.WriteString("Collections:\n")
			for _, info := range infos {
				fmt.Fprintf(&b, "- %s (%d chunks)\n", info.Name, info.Chunks)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		},
	)
}

func formatResults(collection string, results []core.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found in collection '%s'.", collection)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results in collection '%s':\n", len(results), collection)
	for i, r := range results {
		fmt.Fprintf(&b, "\n--- Result %d (score: %.3f) ---\n", i+1, r.Score)
		if r.TitlePath != "" {
			fmt.Fprintf(&b, "Title Path: %s\n", r.TitlePath)
		}
		fmt.Fprintf(&b, "Source: %s (chunk %d/%d)\n", r.Source, r.Index+1, r.SectionChunks)
		fmt.Fprintf(&b, "Content:\n%s\n", r.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// decodeArgs maps validated tool arguments onto a typed struct.
func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
