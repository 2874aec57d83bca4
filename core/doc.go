// Package core provides the foundational domain types shared by the
// demultiplexer, the execution engine and the presentation layer:
//
//   - Content / Part (role based conversation messages)
//   - RawItem and its payloads (the multiplexed execution stream of a turn)
//   - Event (the flat, ordered output handed to presentation layers)
//   - Runtime / RawStream (the contract between engine and demultiplexer)
//   - Session / SessionStore (conversation threads)
//   - ToolContext and ModelLimiter (scoped tool execution and call budgets)
//
// The package keeps implementation concerns (persistence, orchestration,
// providers) out of scope and exposes small interfaces for custom backends.
package core
