package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/memory"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".captain", "documents.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_StoreAndSearch(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	chunks := memory.SplitMarkdown("# Storage\n\nThreads live in sqlite.\n\n# Models\n\nAnthropic and OpenAI.\n", "notes.md", 0, 0)
	require.NoError(t, s.Store("notes", "notes.md", chunks))

	results, err := s.Search("notes", "sqlite", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Storage", results[0].TitlePath)
	assert.Equal(t, "notes.md", results[0].Source)
	assert.Equal(t, "notes", results[0].Collection)
	assert.Equal(t, 1, results[0].SectionChunks)
	assert.Greater(t, results[0].Score, 0.0)

	// operators are matched literally
	results, err = s.Search("notes", `openai OR "NEAR(`, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Models", results[0].TitlePath)

	results, err = s.Search("elsewhere", "sqlite", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_ReplaceAndCollections(t *testing.T) {
	s, path := openTemp(t)

	require.NoError(t, s.Store("docs", "a.md", []core.DocumentChunk{{Content: "alpha"}, {Content: "beta"}}))
	require.NoError(t, s.Store("docs", "a.md", []core.DocumentChunk{{Content: "gamma"}}))
	require.NoError(t, s.Store("guides", "g.md", []core.DocumentChunk{{Content: "delta"}}))
	require.NoError(t, s.Close())

	// reopen to check persistence
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	infos, err := s.Collections()
	require.NoError(t, err)
	assert.Equal(t, []core.CollectionInfo{{Name: "docs", Chunks: 1}, {Name: "guides", Chunks: 1}}, infos)

	results, err := s.Search("docs", "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Search("docs", "gamma", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
