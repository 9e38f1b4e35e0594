package docproc

import "strings"

// Chunk splits text into overlapping windows. Windows prefer to break
// at the last period or newline inside the range; empty chunks are
// dropped and inputs at or under the chunk size pass through whole.
func (p *Processor) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) <= p.chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + p.chunkSize
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		if bp := lastBreak(runes[start:end]); bp > 0 {
			end = start + bp + 1
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - p.chunkOverlap
		if next <= start {
			// Overlap would not advance; step past the window instead.
			next = end
		}
		start = next
	}
	return chunks
}

// lastBreak finds the last sentence or line break in the window.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
