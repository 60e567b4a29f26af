package router

import (
	"strings"
	"unicode"
)

var (
	catalogKeywords = map[string]bool{"menu": true, "catalog": true, "catalogue": true, "products": true, "list": true}
	restartKeywords = map[string]bool{"start": true, "restart": true, "reset": true}
	humanKeywords   = map[string]bool{"help": true, "agent": true, "human": true, "seller": true, "person": true}
)

// normalize lowercases text and collapses inner whitespace.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// isCatalogRequest matches when the whole message is a catalog keyword.
func isCatalogRequest(text string) bool {
	return catalogKeywords[normalize(text)]
}

// isRestart matches when the whole message is a restart keyword.
func isRestart(text string) bool {
	return restartKeywords[normalize(text)]
}

// wantsHuman matches when any word of the message asks for a person.
func wantsHuman(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if humanKeywords[w] {
			return true
		}
	}
	return false
}
