package memory

import (
	"path/filepath"
	"regexp"
	"strings"
)

var invalidCollectionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// CollectionName normalizes a collection name: characters other than
// letters, digits, '_' and '-' become '_', and names shorter than three
// characters get a "doc_" prefix. An empty name is derived from source, the
// file name without extension.
func CollectionName(name, source string) string {
	if name == "" {
		base := filepath.Base(source)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	name = invalidCollectionChars.ReplaceAllString(name, "_")
	if len(name) < 3 {
		name = "doc_" + name
	}
	return name
}
