package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/captain/core"
)

// rawStream is the channel-backed core.RawStream handed out by Engine.Stream.
// Producers write items via emit and the turn goroutine calls finish exactly
// once; a single consumer pulls with Next.
type rawStream struct {
	items  chan core.RawItem
	closed chan struct{}
	pulled chan struct{} // poked on every Next
	cancel context.CancelFunc

	emitted   atomic.Int64
	taken     atomic.Int64
	requested atomic.Int64 // items fully handled by the consumer

	closeOnce sync.Once
	err       error // written before items is closed
}

func newRawStream(buffer int, cancel context.CancelFunc) *rawStream {
	return &rawStream{
		items:  make(chan core.RawItem, buffer),
		closed: make(chan struct{}),
		pulled: make(chan struct{}, 1),
		cancel: cancel,
	}
}

// Next implements core.RawStream.
func (s *rawStream) Next(ctx context.Context) (core.RawItem, error) {
	select {
	case <-s.closed:
		return core.RawItem{}, core.ErrStreamClosed
	default:
	}

	// Asking for the next item means everything taken so far was handled.
	s.requested.Store(s.taken.Load())
	select {
	case s.pulled <- struct{}{}:
	default:
	}

	select {
	case item, ok := <-s.items:
		if !ok {
			if s.err != nil {
				return core.RawItem{}, s.err
			}
			return core.RawItem{}, io.EOF
		}
		s.taken.Add(1)
		return item, nil
	case <-s.closed:
		return core.RawItem{}, core.ErrStreamClosed
	case <-ctx.Done():
		return core.RawItem{}, ctx.Err()
	}
}

// Close implements core.RawStream. It cancels the producer.
func (s *rawStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}

// emit delivers an item unless the turn was cancelled.
func (s *rawStream) emit(ctx context.Context, item core.RawItem) error {
	select {
	case s.items <- item:
		s.emitted.Add(1)
		return nil
	case <-s.closed:
		return core.ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// barrier blocks until the consumer handled every item emitted before the
// call, i.e. came back to Next for more.
func (s *rawStream) barrier(ctx context.Context) error {
	target := s.emitted.Load()
	for s.requested.Load() < target {
		select {
		case <-s.pulled:
		case <-s.closed:
			return core.ErrStreamClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finish records the terminal error and ends the stream.
func (s *rawStream) finish(err error) {
	s.err = err
	close(s.items)
}
