package classify

import (
	"errors"
	"regexp"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object found in response")

var (
	thinkRE         = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fenceRE         = regexp.MustCompile("```(?i:json)?")
	trailingCommaRE = regexp.MustCompile(`,(\s*[}\]])`)
)

// StripThinkBlocks removes <think>...</think> reasoning sections some models
// emit ahead of their answer.
func StripThinkBlocks(s string) string {
	return thinkRE.ReplaceAllString(s, "")
}

// ExtractBracketSpan keeps the text from the first '{' to the last '}'.
func ExtractBracketSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// StripFences removes Markdown code fence markers.
func StripFences(s string) string {
	return fenceRE.ReplaceAllString(s, "")
}

// StripCommentLines drops lines that are // comments.
func StripCommentLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "//") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// StripTrailingCommas removes a comma directly before a closing brace or bracket.
func StripTrailingCommas(s string) string {
	return trailingCommaRE.ReplaceAllString(s, "$1")
}

// Sanitize applies the repair rules in order and returns text ready for
// json decoding.
func Sanitize(raw string) (string, error) {
	s, ok := ExtractBracketSpan(StripThinkBlocks(strings.TrimSpace(raw)))
	if !ok {
		return "", &MalformedResponseError{Raw: raw, Err: errNoJSONObject}
	}
	s = StripFences(s)
	s = StripCommentLines(s)
	s = StripTrailingCommas(s)
	return s, nil
}
