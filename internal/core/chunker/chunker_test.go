package chunker

import (
	"strings"
	"testing"
)

func repeat(ch byte, n int) string {
	return strings.Repeat(string(ch), n)
}

func TestChunkParagraphPacking(t *testing.T) {
	p1 := repeat('a', 600)
	p2 := repeat('b', 600)
	p3 := repeat('c', 600)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := Chunk(text, Config{ChunkSize: 1500, Overlap: 150})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], p1) || !strings.Contains(chunks[0], p2) {
		t.Errorf("first chunk should contain P1 and P2, got len %d", len(chunks[0]))
	}
	if !strings.Contains(chunks[1], p3) {
		t.Errorf("second chunk should contain P3")
	}
}

func TestChunkLongParagraphWindowing(t *testing.T) {
	text := repeat('x', 3200)
	chunks := Chunk(text, Config{ChunkSize: 1500, Overlap: 150})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantLens := []int{1500, 1500, 350}
	for i, want := range wantLens {
		if len(chunks[i]) != want {
			t.Errorf("chunk %d length = %d, want %d", i, len(chunks[i]), want)
		}
	}
}

func TestChunkCoversAllNonWhitespace(t *testing.T) {
	text := "Hello world. This is paragraph one.\n\nThis is paragraph two, longer text here.  Followed by more sentences.   And even more content to pad this out nicely."
	chunks := Chunk(text, Config{ChunkSize: 40, Overlap: 5})

	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c)
	}

	strip := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}
	if strip(rebuilt.String()) != strip(text) {
		t.Errorf("chunks did not preserve all non-whitespace characters")
	}

	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk is empty")
		}
		if len(c) > 40+5 {
			t.Errorf("chunk exceeds chunkSize+overlap: len=%d", len(c))
		}
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunks := Chunk("", Config{})
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
}
