package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_LazyCreateAndAppend(t *testing.T) {
	s := NewInMemoryStore()

	sess, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", sess.ID)
	assert.Equal(t, 0, sess.Len())

	require.NoError(t, s.Append("t1", core.NewTextContent("user", "hi")))
	require.NoError(t, s.Append("t1", core.NewTextContent("assistant", "hello")))

	sess, err = s.Get("t1")
	require.NoError(t, err)
	require.Equal(t, 2, sess.Len())
	assert.Equal(t, "hello", sess.History()[1].Text())
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Append("t1", core.NewTextContent("user", "hi")))

	sess, _ := s.Get("t1")
	sess.Append(core.NewTextContent("user", "local only"))

	again, _ := s.Get("t1")
	assert.Equal(t, 1, again.Len())
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Append("t1", core.NewTextContent("user", "hi")))
	require.NoError(t, s.Delete("t1"))
	require.NoError(t, s.Delete("unknown"))

	sess, _ := s.Get("t1")
	assert.Equal(t, 0, sess.Len())
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append("t1", core.NewTextContent("user", "x"))
		}()
	}
	wg.Wait()

	sess, _ := s.Get("t1")
	assert.Equal(t, 20, sess.Len())
}
