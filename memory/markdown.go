package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hupe1980/captain/core"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

// separators are tried in order; the empty separator splits into runes.
var separators = []string{"\n\n", "\n", "。", ".", " ", ""}

var (
	atx             = regexp.MustCompile(`^ {0,3}#`)
	setextUnderline = regexp.MustCompile(`^ {0,3}(=+|-+)\s*$`)
)

type section struct {
	level     int
	titlePath string
	body      strings.Builder
}

type heading struct {
	level      int
	title      string
	start, end int // byte range of the heading lines in the source
}

// SplitMarkdown cuts a markdown document in two passes: first into sections
// along the heading hierarchy, then each section body into chunks of at most
// size runes with overlap runes carried over between neighbours. Code fences,
// lists and tables are kept verbatim; headings inside code blocks are ignored.
func SplitMarkdown(src, source string, size, overlap int) []core.DocumentChunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []core.DocumentChunk
	for _, sec := range sections([]byte(src)) {
		body := strings.TrimSpace(sec.body.String())
		if body == "" {
			continue
		}
		parts := splitRecursive(body, separators, size, overlap)
		for i, p := range parts {
			chunks = append(chunks, core.DocumentChunk{
				Content:       p,
				TitlePath:     sec.titlePath,
				Source:        source,
				Index:         i,
				SectionChunks: len(parts),
			})
		}
	}
	return chunks
}

// sections walks the top level headings and assigns the text between them to
// the section they open.
func sections(src []byte) []*section {
	root := &section{}
	out := []*section{root}
	stack := []*section{root}

	pos := 0
	for _, h := range headings(src) {
		stack[len(stack)-1].body.Write(src[pos:h.start])
		pos = h.end

		for len(stack) > 1 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		path := h.title
		if parent.titlePath != "" {
			path = parent.titlePath + " > " + h.title
		}
		sec := &section{level: h.level, titlePath: path}
		out = append(out, sec)
		stack = append(stack, sec)
	}
	stack[len(stack)-1].body.Write(src[pos:])
	return out
}

func headings(src []byte) []heading {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var hs []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			continue
		}
		start := lineStart(src, lines.At(0).Start)
		stop := lines.At(lines.Len() - 1).Stop
		if stop > start && src[stop-1] == '\n' {
			stop--
		}
		end := lineEnd(src, stop)
		// setext headings carry their underline on the following line
		if next := lineEnd(src, end); !atx.Match(src[start:end]) && next > end && setextUnderline.Match(src[end:next]) {
			end = next
		}
		hs = append(hs, heading{level: h.Level, title: headingText(h, src), start: start, end: end})
	}
	return hs
}

func headingText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func lineStart(src []byte, i int) int {
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

// lineEnd returns the offset just past the newline ending the line at i.
func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++
	}
	return i
}

// splitRecursive splits on the first separator present in s and recurses
// with the finer separators into pieces that are still too long.
func splitRecursive(s string, seps []string, size, overlap int) []string {
	sep, rest := "", []string(nil)
	for i, cand := range seps {
		if cand == "" || strings.Contains(s, cand) {
			sep, rest = cand, seps[i+1:]
			break
		}
	}

	var out, small []string
	flush := func() {
		if len(small) > 0 {
			out = append(out, merge(small, size, overlap)...)
			small = nil
		}
	}
	for _, p := range splitKeep(s, sep) {
		if utf8.RuneCountInString(p) <= size {
			small = append(small, p)
			continue
		}
		flush()
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, splitRecursive(p, rest, size, overlap)...)
		}
	}
	flush()
	return out
}

// splitKeep splits s on sep and keeps the separator at the start of the
// following piece.
func splitKeep(s, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(s))
		for _, r := range s {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(s, sep)
	for i := 1; i < len(parts); i++ {
		parts[i] = sep + parts[i]
	}
	return parts
}

// merge joins consecutive pieces into chunks of at most size runes. When a
// chunk is emitted, its tail of up to overlap runes starts the next one.
func merge(pieces []string, size, overlap int) []string {
	var (
		out    []string
		window []string
		total  int
	)
	emit := func() {
		if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
			out = append(out, c)
		}
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > size && len(window) > 0 {
			emit()
			for total > overlap || (total+n > size && total > 0) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	emit()
	return out
}
