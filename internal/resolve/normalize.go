package resolve

import (
	"regexp"
	"strings"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
}

var punct = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normalizeText lowercases, strips punctuation and stopwords, and
// collapses whitespace so "VS Code — editor" and "vs code editor"
// compare equal.
func normalizeText(s string) string {
	s = punct.ReplaceAllString(strings.ToLower(s), " ")
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func tokens(s string) []string {
	return strings.Fields(normalizeText(s))
}

var ordinalWords = map[string]int{
	"first": 0, "second": 1, "third": 2, "fourth": 3, "fifth": 4,
	"sixth": 5, "seventh": 6, "eighth": 7, "ninth": 8, "tenth": 9,
}

// Reference shapes treated as ordinals: "the second one", "2nd window",
// "window 3", "number 2", "#2". A digit inside a longer title phrase is
// not an ordinal.
var (
	ordinalWordRef  = regexp.MustCompile(`^(?:the\s+)?(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)(?:\s+(?:one|window))?$`)
	ordinalDigitRef = regexp.MustCompile(`^(?:the\s+)?(?:window\s+|number\s+|#)?(\d{1,2})(?:st|nd|rd|th)?(?:\s+(?:one|window))?$`)
)

// ordinalIndex returns the zero-based index a reference names, or -1
// when the reference is not an ordinal.
func ordinalIndex(reference string) int {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if m := ordinalWordRef.FindStringSubmatch(ref); m != nil {
		return ordinalWords[m[1]]
	}
	if m := ordinalDigitRef.FindStringSubmatch(ref); m != nil {
		n := 0
		for _, c := range m[1] {
			n = n*10 + int(c-'0')
		}
		if n >= 1 {
			return n - 1
		}
	}
	return -1
}
