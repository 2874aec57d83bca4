// Package session houses concrete implementations of core.SessionStore, the
// checkpoint store that keeps conversation threads between turns.
//
// The in-memory store suits tests and ephemeral runs; session/sqlite persists
// threads across process restarts. Only the wiring layer decides which one to
// instantiate.
package session
