package chunker

import (
	"path/filepath"
	"strings"

	"hybridrag/internal/domain"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 120
)

// WindowChunker cuts text into fixed-size character windows. Consecutive
// windows share overlap characters. Windows are measured in runes so
// multi-byte text is never split mid-character.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Split returns the trimmed, non-empty windows of text.
func (c *WindowChunker) Split(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Chunk splits a file's content into records titled with the file's base name.
func (c *WindowChunker) Chunk(path, content string, roles []string) []domain.ChunkRecord {
	title := filepath.Base(path)
	roles = domain.NormalizeRoles(roles)

	windows := c.Split(content)
	records := make([]domain.ChunkRecord, len(windows))
	for i, w := range windows {
		records[i] = domain.ChunkRecord{
			Text:  w,
			Title: title,
			Path:  path,
			Roles: append([]string(nil), roles...),
		}
	}
	return records
}
