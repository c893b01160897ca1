package backend

import (
	"context"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/dshills/glint/internal/lineindex"
	"github.com/dshills/glint/internal/token"
)

// Grammar is the grammar-based tokenizer backend, built on chroma
// lexers. It can tokenize the whole document or a bounded line range,
// which makes it the preferred strategy for large documents.
type Grammar struct {
	mu     sync.Mutex
	lexers map[string]chroma.Lexer
}

// NewGrammar creates a grammar backend.
func NewGrammar() *Grammar {
	return &Grammar{
		lexers: make(map[string]chroma.Lexer),
	}
}

// Name identifies the backend.
func (g *Grammar) Name() string {
	return "grammar"
}

// CanTokenizeRange reports true: chroma can lex an arbitrary slice of
// the document.
func (g *Grammar) CanTokenizeRange() bool {
	return true
}

// Warm reports whether a lexer for the language is already resolved.
func (g *Grammar) Warm(languageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.lexers[languageID]
	return ok
}

// Tokenize lexes the request content, or just the requested line
// range, and returns byte-addressed tokens. Offsets are always
// relative to the full document, even for range requests. An unknown
// language yields no tokens and no error.
func (g *Grammar) Tokenize(ctx context.Context, req Request) ([]token.Token, error) {
	lexer := g.lexerFor(req.LanguageID)
	if lexer == nil {
		return nil, nil
	}

	content := req.Content
	base := 0
	if req.Range != nil {
		content, base = sliceLines(req.Content, *req.Range)
	}
	if content == "" {
		return nil, nil
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return nil, err
	}

	var out []token.Token
	offset := base
	for _, tok := range iterator.Tokens() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		length := len(tok.Value)
		scope := scopeForChroma(tok.Type)
		if scope != "" && strings.TrimSpace(tok.Value) != "" {
			out = append(out, token.Token{
				Start: offset,
				End:   offset + length,
				Type:  scope,
			})
		}
		offset += length
	}
	return out, nil
}

// lexerFor resolves and caches a lexer for a language id.
func (g *Grammar) lexerFor(languageID string) chroma.Lexer {
	if languageID == "" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if lexer, ok := g.lexers[languageID]; ok {
		return lexer
	}

	lexer := lexers.Get(languageID)
	if lexer == nil {
		return nil
	}
	lexer = chroma.Coalesce(lexer)
	g.lexers[languageID] = lexer
	return lexer
}

// sliceLines extracts the inclusive line range from content and
// returns the segment together with the byte offset of its start
// within the full document.
func sliceLines(content string, r lineindex.LineRange) (string, int) {
	lines := strings.Split(content, "\n")

	start := r.Start
	if start < 0 {
		start = 0
	}
	end := r.End
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end {
		return "", 0
	}

	base := 0
	for i := 0; i < start; i++ {
		base += len(lines[i]) + 1
	}

	return strings.Join(lines[start:end+1], "\n"), base
}

// scopeForChroma maps a chroma token type to a TextMate-style scope.
// Types with no highlighting value (plain text, whitespace) map to the
// empty string and are skipped.
func scopeForChroma(t chroma.TokenType) string {
	switch {
	case t == chroma.CommentSingle:
		return "comment.line"
	case t == chroma.CommentMultiline:
		return "comment.block"
	case t.InCategory(chroma.Comment):
		return "comment"
	case t.InSubCategory(chroma.LiteralString):
		return "string"
	case t.InSubCategory(chroma.LiteralNumber):
		return "number"
	case t == chroma.KeywordDeclaration:
		return "keyword.declaration"
	case t == chroma.KeywordNamespace:
		return "keyword.other"
	case t.InCategory(chroma.Keyword):
		return "keyword"
	case t == chroma.OperatorWord:
		return "keyword.operator"
	case t.InCategory(chroma.Operator):
		return "operator"
	case t.InCategory(chroma.Punctuation):
		return "punctuation"
	case t == chroma.NameFunction:
		return "function"
	case t == chroma.NameClass:
		return "type.class"
	case t == chroma.NameBuiltin:
		return "support.function"
	case t == chroma.NameConstant:
		return "constant"
	case t == chroma.NameTag:
		return "tag"
	case t == chroma.NameAttribute:
		return "attribute"
	case t == chroma.NameNamespace:
		return "namespace"
	case t == chroma.NameLabel:
		return "label"
	case t.InCategory(chroma.Name):
		return "identifier"
	case t == chroma.GenericHeading, t == chroma.GenericSubheading:
		return "markup.heading"
	case t == chroma.GenericEmph:
		return "markup.italic"
	case t == chroma.GenericStrong:
		return "markup.bold"
	case t.InCategory(chroma.Generic):
		return "markup"
	case t == chroma.Error:
		return "invalid"
	default:
		return ""
	}
}
