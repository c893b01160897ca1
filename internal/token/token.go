// Package token defines the classified token spans produced by the
// highlighting pipeline and the content fingerprints used to detect
// unchanged documents cheaply.
package token

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Token represents a classified span of source text.
//
// Offsets are half-open [Start, End). Backends produce byte-addressed
// tokens; after offset mapping the same type carries character offsets.
// A valid token always satisfies Start < End.
type Token struct {
	// Start is the starting offset (inclusive).
	Start int

	// End is the ending offset (exclusive).
	End int

	// Type is the semantic type as a TextMate-style scope,
	// e.g. "keyword.control" or "comment.line".
	Type string

	// Class is the rendering class derived from Type,
	// e.g. "hl-keyword". Consumers key styles off this.
	Class string
}

// Len returns the length of the token span.
func (t Token) Len() int {
	return t.End - t.Start
}

// Contains returns true if the offset falls within the token.
func (t Token) Contains(offset int) bool {
	return offset >= t.Start && offset < t.End
}

// Valid returns true if the token has a non-degenerate span.
func (t Token) Valid() bool {
	return t.Start >= 0 && t.Start < t.End
}

// Clip returns the token restricted to [start, end) and true if any
// overlap remains. The returned offsets are rebased against start.
func (t Token) Clip(start, end int) (Token, bool) {
	s := t.Start
	if s < start {
		s = start
	}
	e := t.End
	if e > end {
		e = end
	}
	if s >= e {
		return Token{}, false
	}
	return Token{Start: s - start, End: e - start, Type: t.Type, Class: t.Class}, true
}

// Sort sorts tokens in place by Start, then End.
func Sort(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].Start != tokens[j].Start {
			return tokens[i].Start < tokens[j].Start
		}
		return tokens[i].End < tokens[j].End
	})
}

// IsSorted reports whether tokens are non-decreasing in Start.
func IsSorted(tokens []Token) bool {
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Start < tokens[i-1].Start {
			return false
		}
	}
	return true
}

// Set is an ordered token sequence tied to the content snapshot it was
// computed from.
type Set struct {
	// Tokens are sorted by Start.
	Tokens []Token

	// Fingerprint identifies the content snapshot.
	Fingerprint Fingerprint
}

// NewSet builds a Set for the given content, sorting tokens if needed.
func NewSet(content string, tokens []Token) Set {
	if !IsSorted(tokens) {
		Sort(tokens)
	}
	return Set{
		Tokens:      tokens,
		Fingerprint: FingerprintOf(content),
	}
}

// Fingerprint is a cheap content identifier: length plus a 64-bit hash.
// Length is compared first so most mismatches never touch the hash.
type Fingerprint struct {
	Length int
	Hash   uint64
}

// FingerprintOf computes the fingerprint for content.
func FingerprintOf(content string) Fingerprint {
	return Fingerprint{
		Length: len(content),
		Hash:   xxhash.Sum64String(content),
	}
}

// Matches returns true if the fingerprint identifies content.
func (f Fingerprint) Matches(content string) bool {
	if f.Length != len(content) {
		return false
	}
	return f.Hash == xxhash.Sum64String(content)
}

// Equal returns true if two fingerprints are identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Length == other.Length && f.Hash == other.Hash
}
