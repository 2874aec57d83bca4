// Package memory contains the workspace document memory: a markdown splitter
// producing core.DocumentChunk values and core.DocumentStore implementations.
// The in-memory store below serves tests and the memory database driver; the
// sqlite subpackage persists collections with full text search.
package memory
