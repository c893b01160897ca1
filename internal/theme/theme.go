// Package theme maps token scopes to rendering styles. Themes can be
// built in code, loaded from a chroma style, or tweaked per scope.
package theme

import (
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Style describes how one token scope renders.
type Style struct {
	// Foreground is a hex color like "#569cd6", or empty for default.
	Foreground string

	// Background is a hex color, or empty for default.
	Background string

	Bold      bool
	Italic    bool
	Underline bool
}

// Lipgloss converts the style to a lipgloss.Style for terminal output.
func (s Style) Lipgloss() lipgloss.Style {
	style := lipgloss.NewStyle()
	if s.Foreground != "" {
		style = style.Foreground(lipgloss.Color(s.Foreground))
	}
	if s.Background != "" {
		style = style.Background(lipgloss.Color(s.Background))
	}
	if s.Bold {
		style = style.Bold(true)
	}
	if s.Italic {
		style = style.Italic(true)
	}
	if s.Underline {
		style = style.Underline(true)
	}
	return style
}

// Theme defines styles for syntax highlighting.
type Theme struct {
	// Name is the display name of the theme.
	Name string

	// Foreground is the default text color.
	Foreground string

	// Background is the editor background color.
	Background string

	// ScopeStyles maps scope strings to styles. Lookup walks parent
	// scopes, so an entry for "keyword" covers "keyword.control".
	ScopeStyles map[string]Style
}

// StyleForScope returns the style for a scope string, falling back
// through parent scopes and finally to the default foreground.
func (t *Theme) StyleForScope(scope string) Style {
	for scope != "" {
		if style, ok := t.ScopeStyles[scope]; ok {
			return style
		}
		idx := -1
		for i := len(scope) - 1; i >= 0; i-- {
			if scope[i] == '.' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		scope = scope[:idx]
	}
	return Style{Foreground: t.Foreground}
}

// Default returns a dark theme in the VS Code Dark+ palette.
func Default() *Theme {
	return &Theme{
		Name:       "Default Dark",
		Foreground: "#d4d4d4",
		Background: "#1e1e1e",
		ScopeStyles: map[string]Style{
			"comment":     {Foreground: "#6a9955", Italic: true},
			"string":      {Foreground: "#ce9178"},
			"number":      {Foreground: "#b5cea8"},
			"keyword":     {Foreground: "#569cd6"},
			"operator":    {Foreground: "#d4d4d4"},
			"punctuation": {Foreground: "#808080"},
			"identifier":  {Foreground: "#9cdcfe"},
			"variable":    {Foreground: "#9cdcfe"},
			"constant":    {Foreground: "#4fc1ff"},
			"function":    {Foreground: "#dcdcaa"},
			"type":        {Foreground: "#4ec9b0"},
			"support":     {Foreground: "#dcdcaa"},
			"tag":         {Foreground: "#569cd6"},
			"attribute":   {Foreground: "#9cdcfe"},
			"namespace":   {Foreground: "#4ec9b0"},
			"label":       {Foreground: "#c8c8c8"},
			"markup":      {Foreground: "#d4d4d4"},
			"invalid":     {Foreground: "#f44747", Underline: true},
			"meta":        {Foreground: "#c586c0"},
		},
	}
}

// scopeToChroma pairs our scopes with representative chroma types so a
// chroma style can be sampled into a Theme.
var scopeToChroma = map[string]chroma.TokenType{
	"comment":     chroma.Comment,
	"string":      chroma.LiteralString,
	"number":      chroma.LiteralNumber,
	"keyword":     chroma.Keyword,
	"operator":    chroma.Operator,
	"punctuation": chroma.Punctuation,
	"identifier":  chroma.Name,
	"variable":    chroma.NameVariable,
	"constant":    chroma.NameConstant,
	"function":    chroma.NameFunction,
	"type":        chroma.NameClass,
	"support":     chroma.NameBuiltin,
	"tag":         chroma.NameTag,
	"attribute":   chroma.NameAttribute,
	"namespace":   chroma.NameNamespace,
	"label":       chroma.NameLabel,
	"markup":      chroma.Generic,
	"invalid":     chroma.Error,
}

// FromChroma builds a Theme by sampling a named chroma style, e.g.
// "monokai" or "dracula". Returns an error for unknown style names.
func FromChroma(name string) (*Theme, error) {
	chromaStyle, ok := styles.Registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown chroma style %q", name)
	}

	background := chromaStyle.Get(chroma.Background)
	foreground := ""
	if background.Colour.IsSet() {
		foreground = background.Colour.String()
	}

	t := &Theme{
		Name:        name,
		Foreground:  foreground,
		ScopeStyles: make(map[string]Style, len(scopeToChroma)),
	}
	if background.Background.IsSet() {
		t.Background = background.Background.String()
	}

	for scope, chromaType := range scopeToChroma {
		entry := chromaStyle.Get(chromaType)
		style := Style{
			Bold:      entry.Bold == chroma.Yes,
			Italic:    entry.Italic == chroma.Yes,
			Underline: entry.Underline == chroma.Yes,
		}
		if entry.Colour.IsSet() {
			style.Foreground = entry.Colour.String()
		}
		t.ScopeStyles[scope] = style
	}

	return t, nil
}

// Load resolves a theme by name: the built-in default, or any chroma
// style name.
func Load(name string) (*Theme, error) {
	switch name {
	case "", "default", "dark":
		return Default(), nil
	default:
		return FromChroma(name)
	}
}
