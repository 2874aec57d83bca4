package tool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/memory"
)

const notes = `# Captain

Delegates work to sub-agents.

## Storage

Threads are persisted in sqlite.

## Rendering

Markdown is rendered with glamour.
`

func TestDocumentTools_StoreSearchList(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "notes.md"), []byte(notes), 0o600))

	set := NewSet(NewDocumentTools(memory.NewInMemoryStore())...)
	store, _ := set.Get(StoreMarkdownToolName)
	search, _ := set.Get(SearchDocumentsToolName)
	list, _ := set.Get(ListCollectionsToolName)

	out, err := list.Call(newToolContext(ws), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "No collections found.", out)

	out, err = store.Call(newToolContext(ws), map[string]any{"path": "notes.md"})
	require.NoError(t, err)
	assert.Equal(t, "Stored 3 chunks from 'notes.md' in collection 'notes'.", out)

	out, err = search.Call(newToolContext(ws), map[string]any{"query": "sqlite", "collection": "notes"})
	require.NoError(t, err)
	text := out.(string)
	assert.Contains(t, text, "Found 1 results in collection 'notes':")
	assert.Contains(t, text, "--- Result 1 (score: 1.000) ---")
	assert.Contains(t, text, "Title Path: Captain > Storage")
	assert.Contains(t, text, "Source: notes.md (chunk 1/1)")
	assert.Contains(t, text, "Content:\nThreads are persisted in sqlite.")

	out, err = search.Call(newToolContext(ws), map[string]any{"query": "kubernetes", "collection": "notes"})
	require.NoError(t, err)
	assert.Equal(t, "No results found in collection 'notes'.", out)

	// stored under a second, explicit collection
	_, err = store.Call(newToolContext(ws), map[string]any{"path": "notes.md", "collection": "my docs", "chunk_size": 20.0, "chunk_overlap": 0.0})
	require.NoError(t, err)

	out, err = list.Call(newToolContext(ws), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "- my_docs (")
	assert.Contains(t, out, "- notes (3 chunks)")
}

func TestStoreMarkdown_StaysInWorkspace(t *testing.T) {
	ws := t.TempDir()
	store := NewStoreMarkdownTool(memory.NewInMemoryStore())

	_, err := store.Call(newToolContext(ws), map[string]any{"path": "../secret.md"})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = store.Call(newToolContext(ws), map[string]any{"path": "missing.md"})
	assert.Error(t, err)
}

func TestSearchDocuments_RequiresQuery(t *testing.T) {
	search := NewSearchDocumentsTool(memory.NewInMemoryStore())
	_, err := search.Call(newToolContext(""), map[string]any{"query": " ", "collection": "notes"})
	assert.Error(t, err)

	_, err = search.Call(newToolContext(""), map[string]any{"query": "x"})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
}
