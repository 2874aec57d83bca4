package core

// DocumentChunk is one searchable piece of a stored document.
type DocumentChunk struct {
	Content string `json:"content"`
	// TitlePath is the heading trail of the section, e.g. "Guide > Setup".
	TitlePath string `json:"title_path,omitempty"`
	// Source is the file the chunk was cut from.
	Source string `json:"source,omitempty"`
	// Index is the position of the chunk within its section.
	Index int `json:"chunk_index"`
	// SectionChunks is the number of chunks the section was split into.
	SectionChunks int `json:"total_chunks_in_section"`
}

// SearchResult is a retrieved chunk with its relevance score. Higher scores
// are better.
type SearchResult struct {
	DocumentChunk
	Collection string  `json:"collection"`
	Score      float64 `json:"score"`
}

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// DocumentStore persists chunked documents in named collections and
// retrieves them by keyword relevance.
type DocumentStore interface {
	// Store replaces the chunks previously stored for source in collection.
	Store(collection, source string, chunks []DocumentChunk) error
	Search(collection, query string, limit int) ([]SearchResult, error)
	Collections() ([]CollectionInfo, error)
}
