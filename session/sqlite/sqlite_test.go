package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
)

var _ core.SessionStore = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "captain.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_AppendAndGet(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	sess, err := s.Get("major_thread")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Len())

	require.NoError(t, s.Append("major_thread",
		core.NewTextContent("user", "describe this"),
		core.Content{Role: "user", Parts: []core.Part{
			core.TextPart{Text: "Image: a.png"},
			core.ImagePart{MimeType: "image/png", Data: "AAAA"},
		}},
	))
	require.NoError(t, s.Append("major_thread", core.Content{Role: "assistant", Parts: []core.Part{
		core.ReasoningPart{Text: "hmm", Signature: "sig"},
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "shell_exec", Arguments: `{"command":"ls"}`}},
	}}))

	sess, err = s.Get("major_thread")
	require.NoError(t, err)
	msgs := sess.History()
	require.Len(t, msgs, 3)
	assert.Equal(t, "describe this", msgs[0].Text())
	assert.Equal(t, core.ImagePart{MimeType: "image/png", Data: "AAAA"}, msgs[1].Parts[1])
	assert.Equal(t, "hmm", msgs[2].Reasoning())
	assert.Equal(t, "c1", msgs[2].FunctionCalls()[0].ID)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Append("t", core.NewTextContent("user", "remember me")))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	sess, err := s2.Get("t")
	require.NoError(t, err)
	require.Equal(t, 1, sess.Len())
	assert.Equal(t, "remember me", sess.History()[0].Text())
}

func TestStore_Delete(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	require.NoError(t, s.Append("t", core.NewTextContent("user", "x")))
	require.NoError(t, s.Delete("t"))
	require.NoError(t, s.Delete("never-existed"))

	sess, err := s.Get("t")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Len())
}

func TestStore_ThreadsAreIsolated(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append("a", core.NewTextContent("user", "1")))
	require.NoError(t, s.Append("b", core.NewTextContent("user", "2")))
	require.NoError(t, s.Append("a", core.NewTextContent("user", "3")))

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, "3", a.History()[1].Text())
}
