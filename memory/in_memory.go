package memory

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/captain/core"
)

// InMemoryStore is a process local core.DocumentStore. Search is a linear
// scan scoring each chunk by how often the query terms occur in its content
// and title path; chunks without any hit are left out.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]core.DocumentChunk // collection -> source -> chunks
}

var _ core.DocumentStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: map[string]map[string][]core.DocumentChunk{}}
}

// Store implements core.DocumentStore.
func (m *InMemoryStore) Store(collection, source string, chunks []core.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sources, ok := m.collections[collection]
	if !ok {
		sources = map[string][]core.DocumentChunk{}
		m.collections[collection] = sources
	}
	sources[source] = append([]core.DocumentChunk(nil), chunks...)
	return nil
}

// Search implements core.DocumentStore.
func (m *InMemoryStore) Search(collection, query string, limit int) ([]core.SearchResult, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	var results []core.SearchResult
	for _, chunks := range m.collections[collection] {
		for _, c := range chunks {
			if score := termScore(terms, c); score > 0 {
				results = append(results, core.SearchResult{DocumentChunk: c, Collection: collection, Score: score})
			}
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Source != results[j].Source {
			return results[i].Source < results[j].Source
		}
		return results[i].Index < results[j].Index
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Collections implements core.DocumentStore.
func (m *InMemoryStore) Collections() ([]core.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]core.CollectionInfo, 0, len(m.collections))
	for name, sources := range m.collections {
		n := 0
		for _, chunks := range sources {
			n += len(chunks)
		}
		infos = append(infos, core.CollectionInfo{Name: name, Chunks: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Terms lowercases query and splits it into letter/digit runs.
func Terms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termScore(terms []string, c core.DocumentChunk) float64 {
	content := strings.ToLower(c.Content)
	title := strings.ToLower(c.TitlePath)
	var score float64
	for _, t := range terms {
		score += float64(strings.Count(content, t))
		// title hits weigh double
		score += 2 * float64(strings.Count(title, t))
	}
	return score
}
