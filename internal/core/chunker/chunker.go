// Package chunker splits extracted page text into paragraph-aware,
// overlapping chunks (spec §4.3). The shape — a buffer that accumulates
// paragraphs and flushes once full — follows the teacher's streamChunk
// accumulate/flush idiom, adapted from token-bounded fragments to
// character-bounded paragraphs.
package chunker

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 150
)

// blankLineRe splits on a blank-line boundary; it matches only whitespace,
// so splitting on it never drops a non-whitespace character.
var blankLineRe = regexp.MustCompile(`\r?\n[ \t]*\r?\n\s*`)

// sentenceBoundaryRe finds a sentence end followed by two or more spaces
// (spec §4.3). The punctuation itself stays with the preceding paragraph;
// only the run of spaces after it is treated as the (dropped) separator.
var sentenceBoundaryRe = regexp.MustCompile(`([.!?])\s{2,}`)

// Config tunes the chunker. Zero values fall back to the spec defaults.
type Config struct {
	ChunkSize int
	Overlap   int
}

func (c Config) resolved() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap <= 0 {
		c.Overlap = DefaultOverlap
	}
	return c
}

// splitParagraphs breaks text into non-empty paragraphs in source order,
// first on blank lines and then on sentence boundaries within each segment.
func splitParagraphs(text string) []string {
	var out []string
	for _, segment := range blankLineRe.Split(text, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		last := 0
		for _, m := range sentenceBoundaryRe.FindAllStringSubmatchIndex(segment, -1) {
			punctEnd := m[3] // end of the captured [.!?] group
			if part := strings.TrimSpace(segment[last:punctEnd]); part != "" {
				out = append(out, part)
			}
			last = m[1] // past the trailing run of spaces
		}
		if rest := strings.TrimSpace(segment[last:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// windowParagraph slices a too-long paragraph into fixed-size chunkSize
// windows with overlap, preserving source order. Any text left over after
// the last full window is emitted once, unoverlapped, as the final chunk —
// it is already shorter than chunkSize, so no further splitting is needed.
func windowParagraph(p string, chunkSize, overlap int) []string {
	if len(p) <= chunkSize {
		return []string{p}
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	var out []string
	start, lastEnd := 0, 0
	for start+chunkSize <= len(p) {
		end := start + chunkSize
		out = append(out, p[start:end])
		lastEnd = end
		start += step
	}
	if lastEnd < len(p) {
		out = append(out, p[lastEnd:])
	}
	return out
}

// Chunk splits text into chunks per spec §4.3: paragraphs are packed
// greedily into a buffer up to cfg.ChunkSize; a paragraph longer than
// ChunkSize is sliced into ChunkSize windows with Overlap overlap. Every
// returned chunk is non-empty, at most ChunkSize+Overlap characters, and
// chunks preserve source order.
func Chunk(text string, cfg Config) []string {
	cfg = cfg.resolved()

	paragraphs := splitParagraphs(text)
	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, buf.String())
		buf.Reset()
	}

	for _, p := range paragraphs {
		if len(p) > cfg.ChunkSize {
			flush()
			chunks = append(chunks, windowParagraph(p, cfg.ChunkSize, cfg.Overlap)...)
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(p) > cfg.ChunkSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p)
	}
	flush()

	return chunks
}
