package graph

import (
	"strings"
)

const (
	// contentPreviewLen bounds how much content is stored on a node.
	// The graph holds a searchable preview; the vector store keeps the
	// full text.
	contentPreviewLen = 500

	// binaryThreshold is the non-printable ratio above which content
	// is treated as binary.
	binaryThreshold = 0.1

	binaryPlaceholder = "[Binary content - not stored in graph]"
)

// EscapeString makes a value safe to embed in a single- or
// double-quoted Cypher string: backslash, both quote kinds and
// newlines are escaped, carriage returns dropped.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContentPreview prepares document content for node storage: binary
// content becomes a placeholder, text is truncated, control
// characters map to space, non-ASCII to '?', and the result is
// escaped.
func ContentPreview(content string) string {
	if IsBinary(content) {
		return binaryPlaceholder
	}

	runes := []rune(content)
	if len(runes) > contentPreviewLen {
		runes = runes[:contentPreviewLen]
	}

	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 32:
			b.WriteRune(' ')
		case r > 127:
			b.WriteRune('?')
		default:
			b.WriteRune(r)
		}
	}
	return EscapeString(b.String())
}

// IsBinary reports whether content looks like binary data: null
// bytes, known file signatures, or more than 10% non-printable
// characters in the first 1000 runes.
func IsBinary(content string) bool {
	if content == "" {
		return false
	}

	sample := content
	if len(sample) > 1000 {
		sample = sample[:1000]
	}

	if strings.ContainsRune(sample, 0) {
		return true
	}

	for _, header := range []string{"MZ", "PK\x03\x04", "\xff\xd8\xff", "GIF87", "GIF89", "%PDF", "\x89PNG"} {
		if strings.HasPrefix(sample, header) {
			return true
		}
	}

	nonPrintable := 0
	total := 0
	for _, r := range sample {
		total++
		if (r < 32 && r != '\t' && r != '\n' && r != '\r') || r > 127 {
			nonPrintable++
		}
	}
	return total > 0 && float64(nonPrintable)/float64(total) > binaryThreshold
}

// SanitizeIdentifier strips everything but [A-Za-z0-9_] so node
// labels and relationship types can never carry query syntax. An
// identifier that sanitises to empty falls back to the given default.
func SanitizeIdentifier(s, fallback string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
