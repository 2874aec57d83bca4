// Package captain provides a high-level façade over the agent engine and the
// event stream demultiplexer. Most applications interact with this package by:
//  1. Creating a Captain via FromConfig (or New with a custom runtime)
//  2. Sending user messages with Chat and rendering the returned events
//  3. Releasing the checkpoint store with Close
//
// A Captain is an explicitly constructed session object: it owns the runtime,
// the thread id, the logger and the metrics of one conversation. Every Chat
// call runs one turn through a fresh Demultiplexer, so no per-turn state
// survives into the next turn.
package captain

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/demux"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/metrics"
)

var (
	// ErrEmptyMessage is reported as an Error event when Chat receives no text.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrNoRuntime is returned by New when no runtime is configured.
	ErrNoRuntime = errors.New("captain: runtime is required")
	// ErrClosed is reported once Close was called.
	ErrClosed = errors.New("captain: closed")
)

// Turn statuses recorded in metrics and logs.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
	// StatusLimited marks a turn stopped by its model call budget.
	StatusLimited = "limited"
)

// Options configures the Captain instance.
type Options struct {
	// Runtime produces the raw stream of every turn. Required for New.
	Runtime core.Runtime

	// ThreadID is the conversation thread. Defaults to config.DefaultThreadID.
	ThreadID string

	// Logger defaults to a NoOp logger.
	Logger logging.Logger

	// Metrics is optional; nil disables collection.
	Metrics *metrics.Metrics

	// Closers are released by Close, in order.
	Closers []io.Closer
}

// Captain is the conversation façade.
type Captain struct {
	runtime  core.Runtime
	threadID string
	logger   logging.Logger
	metrics  *metrics.Metrics
	closers  []io.Closer

	mu     sync.Mutex
	closed bool
}

// New creates a Captain around an existing runtime.
func New(optFns ...func(o *Options)) (*Captain, error) {
	opts := Options{ThreadID: config.DefaultThreadID}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Runtime == nil {
		return nil, ErrNoRuntime
	}
	if opts.ThreadID == "" {
		opts.ThreadID = config.DefaultThreadID
	}
	return &Captain{
		runtime:  opts.Runtime,
		threadID: opts.ThreadID,
		logger:   logging.OrNoOp(opts.Logger),
		metrics:  opts.Metrics,
		closers:  opts.Closers,
	}, nil
}

// ThreadID returns the conversation thread of this Captain.
func (c *Captain) ThreadID() string { return c.threadID }

// Runtime returns the underlying runtime.
func (c *Captain) Runtime() core.Runtime { return c.runtime }

// Chat runs one turn for message and streams its events. The channel is
// closed when the turn ends. Problems never surface as a Go error: an empty
// message, a closed Captain or a runtime that cannot start yields a single
// Error event. Cancelling ctx stops the turn and closes the channel without a
// completion event.
func (c *Captain) Chat(ctx context.Context, message string) <-chan core.Event {
	if strings.TrimSpace(message) == "" {
		return single(core.NewErrorEvent(ErrEmptyMessage.Error()))
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return single(core.NewErrorEvent(ErrClosed.Error()))
	}

	start := time.Now()
	log := logging.ForTurn(c.logger, c.threadID, core.NewID())
	log.Info("captain.turn.start")

	src, err := c.runtime.Stream(ctx, c.threadID, core.NewTextContent("user", message))
	if err != nil {
		log.Error("captain.turn.failed", "error", err)
		c.metrics.RecordTurn(StatusError, time.Since(start))
		return single(core.NewErrorEvent("failed to start turn: " + err.Error()))
	}

	d := demux.New(func(o *demux.Options) {
		o.Injector = c.runtime
		o.ThreadID = c.threadID
		o.Logger = log
		o.Metrics = c.metrics
	})

	in := d.Run(ctx, src)
	out := make(chan core.Event)

	go func() {
		defer close(out)

		status := StatusOK
		events := 0
		defer func() {
			if ctx.Err() != nil {
				status = StatusCancelled
			}
			dur := time.Since(start)
			c.metrics.RecordTurn(status, dur)
			logging.LogTurn(log, events, dur, status)
		}()

		for ev := range in {
			events++
			if ev.Type == core.EventError {
				status = errorStatus(ev)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// drain so the demultiplexer can release the source
				for range in {
				}
				return
			}
		}
	}()

	return out
}

// ChatSync runs one turn and returns all of its events.
func (c *Captain) ChatSync(ctx context.Context, message string) []core.Event {
	return demux.Collect(ctx, c.Chat(ctx, message))
}

// History returns the messages of the conversation thread when the runtime
// keeps sessions.
func (c *Captain) History() ([]core.Content, error) {
	type sessioner interface {
		Session(threadID string) (*core.Session, error)
	}
	s, ok := c.runtime.(sessioner)
	if !ok {
		return nil, nil
	}
	sess, err := s.Session(c.threadID)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// Close releases the owned resources. It is safe to call more than once.
func (c *Captain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// errorStatus tells an exhausted call budget apart from other faults. Events
// only carry text, so the sentinel is matched on its message.
func errorStatus(ev core.Event) string {
	if strings.Contains(ev.Content, core.ErrModelCallLimit.Error()) {
		return StatusLimited
	}
	return StatusError
}

func single(ev core.Event) <-chan core.Event {
	ch := make(chan core.Event, 1)
	ch <- ev
	close(ch)
	return ch
}
