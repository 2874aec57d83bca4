package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/hupe1980/captain/core"
)

// ScriptedStream is a core.RawStream replaying a fixed list of items. When
// Err is set it is returned after the items instead of io.EOF.
type ScriptedStream struct {
	Items []core.RawItem
	Err   error

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewScriptedStream creates a stream replaying items.
func NewScriptedStream(items ...core.RawItem) *ScriptedStream {
	return &ScriptedStream{Items: items}
}

// Next implements core.RawStream.
func (s *ScriptedStream) Next(ctx context.Context) (core.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return core.RawItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.RawItem{}, core.ErrStreamClosed
	}
	if s.pos >= len(s.Items) {
		if s.Err != nil {
			return core.RawItem{}, s.Err
		}
		return core.RawItem{}, io.EOF
	}
	item := s.Items[s.pos]
	s.pos++
	return item, nil
}

// Close implements core.RawStream.
func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// BlockingStream yields its items and then blocks until ctx is done or the
// stream is closed, emulating a turn that never finishes on its own.
type BlockingStream struct {
	Items []core.RawItem

	mu   sync.Mutex
	pos  int
	done chan struct{}
	once sync.Once
}

// NewBlockingStream creates a blocking stream.
func NewBlockingStream(items ...core.RawItem) *BlockingStream {
	return &BlockingStream{Items: items, done: make(chan struct{})}
}

// Next implements core.RawStream.
func (s *BlockingStream) Next(ctx context.Context) (core.RawItem, error) {
	s.mu.Lock()
	if s.pos < len(s.Items) {
		item := s.Items[s.pos]
		s.pos++
		s.mu.Unlock()
		return item, nil
	}
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return core.RawItem{}, ctx.Err()
	case <-s.done:
		return core.RawItem{}, core.ErrStreamClosed
	}
}

// Close implements core.RawStream.
func (s *BlockingStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// RecordingUpdater is a core.StateUpdater capturing every update.
type RecordingUpdater struct {
	Err error

	mu      sync.Mutex
	threads []string
	updates []core.Content
}

// UpdateState implements core.StateUpdater.
func (r *RecordingUpdater) UpdateState(_ context.Context, threadID string, contents ...core.Content) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for range contents {
		r.threads = append(r.threads, threadID)
	}
	r.updates = append(r.updates, contents...)
	return nil
}

// Updates returns the recorded contents.
func (r *RecordingUpdater) Updates() []core.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Content(nil), r.updates...)
}

// Threads returns the thread id of every recorded content.
func (r *RecordingUpdater) Threads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.threads...)
}
