// Package chunk splits extracted document text into overlapping windows
// suitable for embedding and retrieval.
//
// The splitter walks the text with a bounded window and prefers to cut at
// the coarsest separator available inside the window (paragraph break, then
// line break, then space), falling back to a hard character cut only when a
// segment has no separator at all. Adjacent chunks share a configured number
// of trailing/leading characters so passages that straddle a cut stay
// retrievable.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// separators in priority order. The empty string means a hard cut at the
// window boundary.
var separators = []string{"\n\n", "\n", " "}

// Chunk is a single window of source text plus use-case-defined metadata
// (source path, page index, document type, department). Content is never
// empty; chunks are immutable once indexed.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Splitter produces deterministic, ordered chunks for a fixed configuration.
type Splitter struct {
	maxSize int
	overlap int
}

// New creates a Splitter. overlap must be smaller than maxSize so every
// window contains new content and the walk always makes progress.
func New(maxSize, overlap int) (*Splitter, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

// Split splits text into ordered chunks. Each chunk's metadata carries its
// ordinal under "chunk" merged with the provided base metadata. Empty input
// yields an empty slice, not an error.
func (s *Splitter) Split(text string, base map[string]string) []Chunk {
	spans := s.spans(text)
	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		md := make(map[string]string, len(base)+1)
		for k, v := range base {
			md[k] = v
		}
		md["chunk"] = strconv.Itoa(i)
		chunks = append(chunks, Chunk{
			Content:  text[sp.start:sp.end],
			Metadata: md,
		})
	}
	return chunks
}

// spans computes the chunk boundaries. Every span is at most maxSize long,
// consecutive spans overlap by at most overlap characters, and the spans
// tile the input: the first starts at 0, the last ends at len(text), and
// each next span starts at or before the previous end.
func (s *Splitter) spans(text string) []span {
	if text == "" {
		return nil
	}

	var out []span
	start := 0
	for {
		end := s.cut(text, start)
		out = append(out, span{start: start, end: end})
		if end >= len(text) {
			return out
		}

		next := end - s.overlap
		if next <= start {
			// Chunk shorter than the overlap; skip the overlap rather than
			// stall or re-emit the same window.
			next = end
		}
		start = next
	}
}

// cut returns the end offset for a chunk starting at start. It prefers the
// last occurrence of the coarsest separator inside the window, keeping the
// separator attached to the chunk it terminates.
func (s *Splitter) cut(text string, start int) int {
	remaining := len(text) - start
	if remaining <= s.maxSize {
		return len(text)
	}

	window := text[start : start+s.maxSize]
	for _, sep := range separators {
		// A separator at the very front of the window would produce an
		// empty chunk; require at least one content character before it.
		if idx := strings.LastIndex(window[1:], sep); idx >= 0 {
			return start + 1 + idx + len(sep)
		}
	}

	// No separator in the window: hard cut.
	return start + s.maxSize
}
