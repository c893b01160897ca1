// Package offsetmap translates byte offsets in tokenizer output to
// character offsets in editor coordinates.
//
// Backends address tokens in bytes; the editor addresses columns in
// characters. Under UTF-8 a single character occupies one to four
// bytes, so the two drift apart as soon as multi-byte content appears.
// A Map is built once per document snapshot and is immutable for the
// snapshot's lifetime; it must be rebuilt after every content change
// because character boundaries can shift arbitrarily with multi-byte
// edits.
package offsetmap

import (
	"sort"
	"unicode/utf8"

	"github.com/dshills/glint/internal/token"
)

// MaxTokenSpan is the largest character span accepted from a backend.
// Anything wider is treated as a malformed token and dropped.
const MaxTokenSpan = 10000

// Map converts byte offsets to character offsets for one content
// snapshot.
type Map struct {
	// boundaries[i] is the byte offset where character i starts.
	// A trailing entry records the total byte length, so the slice
	// always holds charCount+1 entries.
	boundaries []int
}

// Build constructs a Map for content in O(n).
func Build(content string) *Map {
	boundaries := make([]int, 0, len(content)+1)
	for i := range content {
		boundaries = append(boundaries, i)
	}
	boundaries = append(boundaries, len(content))
	return &Map{boundaries: boundaries}
}

// CharCount returns the number of characters in the snapshot.
func (m *Map) CharCount() int {
	return len(m.boundaries) - 1
}

// ByteLen returns the byte length of the snapshot.
func (m *Map) ByteLen() int {
	return m.boundaries[len(m.boundaries)-1]
}

// ByteToChar resolves a byte offset to a character offset with floor
// semantics: an offset inside a multi-byte sequence resolves to the
// character that contains it. Used for token start offsets.
func (m *Map) ByteToChar(byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= m.ByteLen() {
		return m.CharCount()
	}
	// First boundary strictly greater than byteOffset, then step back.
	idx := sort.SearchInts(m.boundaries, byteOffset+1)
	return idx - 1
}

// ByteToCharCeil resolves a byte offset with ceiling semantics: an
// offset inside a multi-byte sequence resolves to the next character
// boundary. Used for token end offsets so a span never silently
// shrinks to nothing when a backend's byte boundary falls mid-rune.
func (m *Map) ByteToCharCeil(byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= m.ByteLen() {
		return m.CharCount()
	}
	// Smallest boundary index at or after byteOffset: an exact hit is
	// the character itself, a miss is the next character over.
	return sort.SearchInts(m.boundaries, byteOffset)
}

// CharToByte returns the byte offset where the given character starts.
// Offsets past the end clamp to the byte length.
func (m *Map) CharToByte(charOffset int) int {
	if charOffset <= 0 {
		return 0
	}
	if charOffset >= m.CharCount() {
		return m.ByteLen()
	}
	return m.boundaries[charOffset]
}

// MapTokens converts byte-addressed tokens to character-addressed
// tokens, filtering out anything malformed: spans out of document
// bounds, degenerate spans (start >= end after resolution), and spans
// wider than MaxTokenSpan. Malformed input is dropped, never an error.
func (m *Map) MapTokens(tokens []token.Token) []token.Token {
	if len(tokens) == 0 {
		return nil
	}

	byteLen := m.ByteLen()
	out := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Start < 0 || t.End > byteLen || t.Start >= t.End {
			continue
		}
		start := m.ByteToChar(t.Start)
		end := m.ByteToCharCeil(t.End)
		if start >= end {
			continue
		}
		if end-start > MaxTokenSpan {
			continue
		}
		out = append(out, token.Token{
			Start: start,
			End:   end,
			Type:  t.Type,
			Class: t.Class,
		})
	}

	if !token.IsSorted(out) {
		token.Sort(out)
	}
	return out
}

// IsASCII reports whether content contains only single-byte
// characters, in which case byte and character offsets coincide.
func IsASCII(content string) bool {
	for i := 0; i < len(content); i++ {
		if content[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
