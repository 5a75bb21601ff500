package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// snippet shortens s to at most max runes for logging.
func snippet(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

// normalizeOCRText collapses whitespace and replaces newlines/tabs.
func normalizeOCRText(t string) string {
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	return strings.Join(strings.Fields(t), " ")
}

var (
	artifacts = strings.NewReplacer("|", "", "ï¿½", "", "�", "")
	// ingredient section markers, most specific first
	sectionMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)INGREDIENTS`),
		regexp.MustCompile(`(?i)INGRED`),
	}
)

// CleanText single-spaces recognized text, drops table bars and encoding
// artifacts, and discards everything before the ingredient section marker
// when one is present.
func CleanText(t string) string {
	t = normalizeOCRText(artifacts.Replace(normalizeOCRText(t)))
	for _, re := range sectionMarkers {
		if loc := re.FindStringIndex(t); loc != nil {
			return t[loc[0]:]
		}
	}
	return t
}
