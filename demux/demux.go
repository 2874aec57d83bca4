package demux

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/metrics"
)

// Defaults for Options.
const (
	DefaultDelegationTool = "task"
	DefaultImageTool      = "read_image"
	DefaultAnswerNode     = core.NodeModel
)

// Options configures a Demultiplexer.
type Options struct {
	// Injector receives image content re-injected into the thread. Nil
	// disables re-injection.
	Injector core.StateUpdater
	// ThreadID is the conversation thread passed to Injector.
	ThreadID string
	Logger   logging.Logger
	Metrics  *metrics.Metrics
	// DelegationTool is the reserved tool name marking a sub-agent delegation.
	DelegationTool string
	// ImageTool is the tool whose tagged results carry image content.
	ImageTool string
	// AnswerNode is the execution node whose text blocks are answer text.
	AnswerNode string
}

// Demultiplexer converts raw items of one turn into output events. It owns
// the transient per-turn state and must not be shared between turns running
// concurrently.
type Demultiplexer struct {
	opts       Options
	logger     logging.Logger
	tracker    *Tracker
	reconciler *Reconciler
}

// New creates a Demultiplexer for one turn.
func New(optFns ...func(o *Options)) *Demultiplexer {
	opts := Options{
		DelegationTool: DefaultDelegationTool,
		ImageTool:      DefaultImageTool,
		AnswerNode:     DefaultAnswerNode,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	tracker := NewTracker()
	return &Demultiplexer{
		opts:       opts,
		logger:     logging.ForComponent(opts.Logger, "demux"),
		tracker:    tracker,
		reconciler: NewReconciler(tracker, opts.DelegationTool),
	}
}

// emitter collects the events of one item in order.
type emitter struct {
	events  []core.Event
	metrics *metrics.Metrics
}

func (e *emitter) emit(events ...core.Event) {
	for _, ev := range events {
		e.metrics.RecordEvent(string(ev.Type))
		if ev.Type == core.EventSubAgentStart {
			e.metrics.RecordSubAgentStart(ev.SubAgent)
		}
		e.events = append(e.events, ev)
	}
}

// Process handles one raw item to completion and returns the events it
// produced. Any fault, including a panic, is contained: events produced
// before the fault are kept and a single Error event is appended.
func (d *Demultiplexer) Process(ctx context.Context, item core.RawItem) (events []core.Event) {
	em := &emitter{metrics: d.opts.Metrics}
	d.opts.Metrics.RecordRawItem(string(item.Mode))

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("demux.item.panic", "item", item.String(), "panic", r)
			em.emit(core.NewErrorEvent(fmt.Sprintf("failed to process stream item: %v", r)))
		}
		d.opts.Metrics.SetPending(d.reconciler.Pending())
		events = em.events
	}()

	attr := Classify(item.Namespace, d.tracker)

	switch item.Mode {
	case core.ModeToken:
		em.emit(classifyToken(attr, item.Token, d.opts.AnswerNode)...)
	case core.ModeUpdate:
		d.processUpdate(ctx, em, attr, item.Update)
	default:
		d.logger.Debug("demux.item.skipped", "item", item.String())
	}
	return em.events
}

func (d *Demultiplexer) processUpdate(ctx context.Context, em *emitter, attr Attribution, updates []core.NodeUpdate) {
	for _, nu := range updates {
		for _, msg := range nu.Messages {
			switch m := msg.(type) {
			case core.RequestMessage:
				for _, inv := range m.ToolCalls {
					em.emit(d.reconciler.Call(attr, inv)...)
				}
			case core.ResultMessage:
				em.emit(d.reconciler.Result(attr, m)...)
				if attr.Root() && m.Name == d.opts.ImageTool {
					if err := d.injectImage(ctx, m.Content); err != nil {
						d.logger.Warn("demux.image.inject_failed", "tool_call_id", m.ToolCallID, "error", err)
						em.emit(core.NewErrorEvent(fmt.Sprintf("failed to inject image message: %v", err)))
					}
				}
			}
		}
	}
}

func (d *Demultiplexer) injectImage(ctx context.Context, content any) error {
	items, ok := imagePayload(content)
	if !ok {
		return nil
	}
	if d.opts.Injector == nil {
		d.logger.Debug("demux.image.no_injector")
		return nil
	}
	msg, err := imageMessage(items)
	if err != nil {
		return err
	}
	return d.opts.Injector.UpdateState(ctx, d.opts.ThreadID, msg)
}

// Run consumes src until it is exhausted, faults or ctx is cancelled, and
// streams the produced events on the returned unbuffered channel. The
// channel is closed when consumption ends; src is closed and all transient
// state is discarded. A source fault yields one terminal Error event.
// Cancellation ends the stream silently.
func (d *Demultiplexer) Run(ctx context.Context, src core.RawStream) <-chan core.Event {
	out := make(chan core.Event)

	go func() {
		defer close(out)
		defer d.Reset()
		defer func() { _ = src.Close() }()

		send := func(ev core.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			item, err := src.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, core.ErrStreamClosed) || ctx.Err() != nil {
					return
				}
				d.logger.Error("demux.source.failed", "error", err)
				send(core.NewErrorEvent(fmt.Sprintf("stream failed: %v", err)))
				return
			}
			for _, ev := range d.Process(ctx, item) {
				if !send(ev) {
					return
				}
			}
		}
	}()

	return out
}

// Pending returns the number of buffered root tool calls and results.
func (d *Demultiplexer) Pending() (calls, results int) {
	return d.reconciler.Pending()
}

// Reset discards every transient map. Unpaired entries are logged.
func (d *Demultiplexer) Reset() {
	if calls, results := d.reconciler.Pending(); calls > 0 || results > 0 {
		d.logger.Warn("demux.turn.unpaired", "calls", calls, "results", results)
	}
	d.reconciler.Reset()
	d.tracker.Reset()
	d.opts.Metrics.SetPending(0, 0)
}

// Collect drains ch until it is closed or ctx is done.
func Collect(ctx context.Context, ch <-chan core.Event) []core.Event {
	var events []core.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-ctx.Done():
			return events
		}
	}
}
