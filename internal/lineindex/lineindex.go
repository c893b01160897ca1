// Package lineindex buckets a flat, character-addressed token list
// into per-line token lists for the rendering collaborator.
package lineindex

import (
	"strings"

	"github.com/dshills/glint/internal/token"
)

// LineRange is an inclusive range of line numbers.
type LineRange struct {
	Start int
	End   int
}

// Contains returns true if line falls within the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Lines returns the number of lines covered by the range.
func (r LineRange) Lines() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Covering returns the smallest LineRange containing every line in
// lines. Returns false if lines is empty.
func Covering(lines []int) (LineRange, bool) {
	if len(lines) == 0 {
		return LineRange{}, false
	}
	r := LineRange{Start: lines[0], End: lines[0]}
	for _, l := range lines[1:] {
		if l < r.Start {
			r.Start = l
		}
		if l > r.End {
			r.End = l
		}
	}
	return r, true
}

// Build buckets tokens into per-line lists.
//
// Tokens must be character-addressed and sorted by Start; each token is
// clipped to the lines it overlaps, with offsets rebased to column
// positions within the line. Line numbers are 0-indexed. The per-token
// scan early-exits once token.Start passes the line end, which keeps
// the whole pass linear for sorted input.
func Build(content string, tokens []token.Token) map[int][]token.Token {
	index := make(map[int][]token.Token)
	if len(tokens) == 0 {
		return index
	}

	lines := strings.Split(content, "\n")
	lineStart := 0 // running character offset of the current line start
	next := 0      // index of the first token that may overlap this line

	for lineNum, line := range lines {
		lineLen := len([]rune(line))
		lineEnd := lineStart + lineLen

		// Skip tokens that end before this line begins.
		for next < len(tokens) && tokens[next].End <= lineStart {
			next++
		}

		for i := next; i < len(tokens); i++ {
			t := tokens[i]
			if t.Start >= lineEnd {
				break
			}
			if clipped, ok := t.Clip(lineStart, lineEnd); ok {
				index[lineNum] = append(index[lineNum], clipped)
			}
		}

		lineStart = lineEnd + 1 // +1 for the newline character
	}

	return index
}

// BuildRange buckets tokens for only the lines within r, leaving the
// rest of the document out entirely. Token offsets are interpreted
// against the full content, exactly as in Build.
func BuildRange(content string, tokens []token.Token, r LineRange) map[int][]token.Token {
	full := Build(content, tokens)
	out := make(map[int][]token.Token, r.Lines())
	for line, toks := range full {
		if r.Contains(line) {
			out[line] = toks
		}
	}
	return out
}

// Merge replaces entries of dst for every line in r with the
// recomputed entries, leaving all other lines untouched. Lines inside
// r with no recomputed tokens are cleared.
func Merge(dst, recomputed map[int][]token.Token, r LineRange) {
	for line := r.Start; line <= r.End; line++ {
		if toks, ok := recomputed[line]; ok {
			dst[line] = toks
		} else {
			delete(dst, line)
		}
	}
}

// Clone returns a shallow copy of a line index. Token slices are
// shared; callers treat them as immutable.
func Clone(index map[int][]token.Token) map[int][]token.Token {
	out := make(map[int][]token.Token, len(index))
	for line, toks := range index {
		out[line] = toks
	}
	return out
}
