package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/session"
)

func texts(t *testing.T, store core.SessionStore, id string) []string {
	t.Helper()
	sess, err := store.Get(id)
	require.NoError(t, err)
	var out []string
	for _, c := range sess.History() {
		out = append(out, c.Text())
	}
	return out
}

func TestStateGate(t *testing.T) {
	store := session.NewInMemoryStore()
	g := newStateGate(store)

	held, err := g.append("t1", core.NewTextContent("user", "direct"))
	require.NoError(t, err)
	assert.False(t, held)

	g.open("t1")
	g.open("t1")
	held, err = g.append("t1", core.NewTextContent("user", "late"))
	require.NoError(t, err)
	assert.True(t, held)
	require.NoError(t, store.Append("t1", core.NewTextContent("tool", "result")))

	// other threads are not affected
	held, err = g.append("t2", core.NewTextContent("user", "other"))
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, g.close("t1"))
	assert.Equal(t, []string{"direct", "result"}, texts(t, store, "t1"), "inner close keeps holding")

	require.NoError(t, g.close("t1"))
	assert.Equal(t, []string{"direct", "result", "late"}, texts(t, store, "t1"))

	// closing an unknown thread is a no-op
	require.NoError(t, g.close("t3"))
}
