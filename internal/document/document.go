// Package document tracks open documents for the highlighting
// pipeline: their identity, content, version, and the last token set
// applied to them. It is the buffer collaborator the controller reads
// from and writes back to.
package document

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/glint/internal/token"
)

// Errors returned by the store.
var (
	ErrNotOpen     = errors.New("document not open")
	ErrAlreadyOpen = errors.New("document already open")
)

// Document is one open file.
type Document struct {
	// ID is the stable buffer identity, independent of path renames.
	ID uuid.UUID

	// Path is the file path.
	Path string

	// LanguageID identifies the language, e.g. "go".
	LanguageID string

	mu      sync.RWMutex
	content string
	version int
	tokens  []token.Token
}

// Content returns the current content.
func (d *Document) Content() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content
}

// Version returns the edit version, incremented on every change.
func (d *Document) Version() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Tokens returns the last token set applied to this document.
func (d *Document) Tokens() []token.Token {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tokens
}

// SetContent replaces the content and bumps the version.
func (d *Document) SetContent(content string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
	d.version++
	return d.version
}

// setTokens records the applied token set.
func (d *Document) setTokens(tokens []token.Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = tokens
}

// Buffer is a read-only snapshot of the active document handed to the
// controller.
type Buffer struct {
	ID         uuid.UUID
	Path       string
	LanguageID string
	Content    string
	Tokens     []token.Token
}

// Store is the registry of open documents. All methods are safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	byPath map[string]*Document
	byID   map[uuid.UUID]*Document
	active *Document
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{
		byPath: make(map[string]*Document),
		byID:   make(map[uuid.UUID]*Document),
	}
}

// Open registers a document. The language is detected from the path
// when languageID is empty.
func (s *Store) Open(path, languageID, content string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPath[path]; ok {
		return nil, ErrAlreadyOpen
	}

	if languageID == "" {
		languageID = DetectLanguage(path)
	}

	doc := &Document{
		ID:         uuid.New(),
		Path:       path,
		LanguageID: languageID,
		content:    content,
		version:    1,
	}
	s.byPath[path] = doc
	s.byID[doc.ID] = doc

	if s.active == nil {
		s.active = doc
	}
	return doc, nil
}

// Close removes a document from the store.
func (s *Store) Close(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byPath[path]
	if !ok {
		return ErrNotOpen
	}
	delete(s.byPath, path)
	delete(s.byID, doc.ID)
	if s.active == doc {
		s.active = nil
	}
	return nil
}

// Get returns the document for path.
func (s *Store) Get(path string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byPath[path]
	return doc, ok
}

// SetActive marks the document for path as active.
func (s *Store) SetActive(path string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byPath[path]
	if !ok {
		return nil, ErrNotOpen
	}
	s.active = doc
	return doc, nil
}

// ActiveBuffer returns a snapshot of the active document. Implements
// the controller's BufferSource.
func (s *Store) ActiveBuffer() (Buffer, bool) {
	s.mu.RLock()
	doc := s.active
	s.mu.RUnlock()

	if doc == nil {
		return Buffer{}, false
	}

	doc.mu.RLock()
	defer doc.mu.RUnlock()
	return Buffer{
		ID:         doc.ID,
		Path:       doc.Path,
		LanguageID: doc.LanguageID,
		Content:    doc.content,
		Tokens:     doc.tokens,
	}, true
}

// UpdateBufferTokens stores a completed tokenization against the
// owning document. Implements the controller's TokenSink. Unknown ids
// are ignored; the document may have been closed mid-flight.
func (s *Store) UpdateBufferTokens(id uuid.UUID, tokens []token.Token) {
	s.mu.RLock()
	doc, ok := s.byID[id]
	s.mu.RUnlock()

	if ok {
		doc.setTokens(tokens)
	}
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPath)
}

// languageByExtension maps file extensions to language ids understood
// by both backends.
var languageByExtension = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".java":  "java",
	".rb":    "ruby",
	".php":   "php",
	".sh":    "bash",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".sql":   "sql",
	".lua":   "lua",
	".zig":   "zig",
	".swift": "swift",
	".kt":    "kotlin",
}

// DetectLanguage resolves a language id from a file path. Unknown
// extensions return an empty id, which backends treat as "no tokens".
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	return languageByExtension[ext]
}
