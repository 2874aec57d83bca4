// Package demux turns the raw multiplexed execution stream of one turn into
// the flat, ordered sequence of core.Event values a presentation layer
// renders.
//
// A Demultiplexer is created per turn. Every raw item is first attributed to
// the root agent or to a sub-agent (Classify, backed by a Tracker that maps
// "task:<invocation id>" namespace segments to sub-agent names). Token items
// are split into answer and reasoning blocks; update items are fed to the
// Reconciler which pairs tool calls with their results regardless of arrival
// order and frames delegations with SubAgentStart/SubAgentEnd.
//
// Processing is strictly sequential. Faults while handling an item become a
// single Error event and never stop the stream.
//
// Usage:
//
//	d := demux.New(func(o *demux.Options) { o.Injector = runtime; o.ThreadID = "t1" })
//	for ev := range d.Run(ctx, stream) {
//		render(ev)
//	}
package demux
