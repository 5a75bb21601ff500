package ocr

import "unicode/utf8"

// Best selects the result with the highest confidence among those with
// non-empty text. Equal confidence prefers the longer text; a full tie keeps
// the earlier result.
func Best(results []Result) (Result, bool) {
	var best Result
	found := false
	for _, r := range results {
		if CleanText(r.Text) == "" {
			continue
		}
		if !found || better(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func better(a, b Result) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return textLen(a.Text) > textLen(b.Text)
}

func textLen(s string) int {
	return utf8.RuneCountInString(normalizeOCRText(s))
}
