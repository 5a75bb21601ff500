// Package ingredients splits a label's ingredient text into ordered tokens.
package ingredients

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	prefixRE = regexp.MustCompile(`^\s*ingredients:?\s*`)
	splitRE  = regexp.MustCompile(`[,;.]`)
	parenRE  = regexp.MustCompile(`\([^)]*\)`)
	spaceRE  = regexp.MustCompile(`\s+`)
)

// MinTokenLen is the shortest fragment kept as an ingredient.
const MinTokenLen = 2

// Tokenize lower-cases text, drops a leading "ingredients:" label and splits the
// remainder on commas, semicolons and periods. Parenthesized asides are removed
// and fragments made only of digits or punctuation are dropped. Order is kept
// and repeated ingredients are not merged.
func Tokenize(text string) []string {
	out := []string{}
	text = strings.ToLower(text)
	text = prefixRE.ReplaceAllString(text, "")
	if strings.TrimSpace(text) == "" {
		return out
	}
	for _, frag := range splitRE.Split(text, -1) {
		frag = strings.TrimSpace(frag)
		frag = parenRE.ReplaceAllString(frag, "")
		frag = strings.TrimSpace(spaceRE.ReplaceAllString(frag, " "))
		if len([]rune(frag)) < MinTokenLen {
			continue
		}
		if symbolsOnly(frag) {
			continue
		}
		out = append(out, frag)
	}
	return out
}

// Join renders tokens the way they are sent for classification.
func Join(tokens []string) string {
	return strings.Join(tokens, ", ")
}

// symbolsOnly reports whether s has no letters (and no underscore), i.e. it is
// made of digits, punctuation and spaces only.
func symbolsOnly(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || r == '_' {
			return false
		}
	}
	return true
}
