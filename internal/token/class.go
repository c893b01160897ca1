package token

import "strings"

// classForScope maps scope prefixes to rendering classes. Lookup walks
// the scope hierarchy from most to least specific, so "keyword.control"
// resolves through "keyword" when no exact entry exists.
var classForScope = map[string]string{
	"comment":     "hl-comment",
	"string":      "hl-string",
	"number":      "hl-number",
	"keyword":     "hl-keyword",
	"operator":    "hl-operator",
	"punctuation": "hl-punctuation",
	"identifier":  "hl-identifier",
	"variable":    "hl-variable",
	"constant":    "hl-constant",
	"function":    "hl-function",
	"type":        "hl-type",
	"storage":     "hl-storage",
	"support":     "hl-support",
	"markup":      "hl-markup",
	"invalid":     "hl-invalid",
	"meta":        "hl-meta",
	"tag":         "hl-tag",
	"attribute":   "hl-attribute",
	"namespace":   "hl-namespace",
	"label":       "hl-label",
}

// ClassFor returns the rendering class for a scope string.
// Unknown scopes get the default "hl-text" class.
func ClassFor(scope string) string {
	for scope != "" {
		if class, ok := classForScope[scope]; ok {
			return class
		}
		idx := strings.LastIndexByte(scope, '.')
		if idx < 0 {
			break
		}
		scope = scope[:idx]
	}
	return "hl-text"
}

// Classify fills in the Class field for every token whose class is
// unset, deriving it from the token's Type scope.
func Classify(tokens []Token) {
	for i := range tokens {
		if tokens[i].Class == "" {
			tokens[i].Class = ClassFor(tokens[i].Type)
		}
	}
}
