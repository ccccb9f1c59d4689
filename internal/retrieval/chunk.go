package retrieval

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// Chunk is a contiguous line range of one file.
type Chunk struct {
	ID        string
	Path      string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Text      string
}

// ChunkLines splits content into windows of at most size lines. A window
// ends early at a blank line once it is at least half full, so chunks tend
// to follow paragraph and function boundaries. Blank-only windows are
// dropped.
func ChunkLines(path string, content []byte, size int) []Chunk {
	if size <= 0 {
		size = 40
	}
	lines := bytes.Split(content, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}

	var chunks []Chunk
	start := 0
	flush := func(end int) {
		if end <= start {
			return
		}
		text := bytes.Join(lines[start:end], []byte("\n"))
		if len(bytes.TrimSpace(text)) > 0 {
			chunks = append(chunks, Chunk{
				ID:        chunkID(path, start+1, end),
				Path:      path,
				StartLine: start + 1,
				EndLine:   end,
				Text:      string(text),
			})
		}
		start = end
	}
	for i, line := range lines {
		n := i + 1 - start
		switch {
		case n >= size:
			flush(i + 1)
		case n >= size/2 && len(bytes.TrimSpace(line)) == 0:
			flush(i + 1)
		}
	}
	flush(len(lines))
	return chunks
}

func chunkID(path string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", path, start, end)))
	return fmt.Sprintf("%x", sum[:12])
}
