package ingest

import "strings"

// ChunkText splits text into windows of at most maxChars runes, each
// starting maxChars-overlap runes after the previous one (at least 1).
// Chunks are trimmed and empty chunks dropped.
func ChunkText(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		return nil
	}
	step := maxChars - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := min(i+maxChars, len(runes))
		if c := strings.TrimSpace(string(runes[i:end])); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}
