// Package processing turns fetched items into scored, categorized topics and clusters.
package processing

import (
	"html"
	"regexp"
	"strings"
)

// Word characters are Unicode letters, digits and underscore. RE2's \w and \b
// are ASCII only, so word boundaries come from matching whole runs instead.
var (
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
	spaceRe    = regexp.MustCompile(`\s+`)
	tokenRe    = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)
	shortWords = map[string]bool{
		"ai": true, "ml": true, "hr": true, "pr": true, "ux": true,
		"ui": true, "qa": true, "ci": true, "cd": true,
	}
)

// CleanText removes HTML markup, colour codes, URLs and short noise tokens.
func CleanText(text string) string {
	text = html.UnescapeString(text)
	text = tagRe.ReplaceAllString(text, " ")
	text = dropWords(text, isHexColour)
	text = urlRe.ReplaceAllString(text, " ")
	text = dropWords(text, isShortNoise)
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// dropWords blanks every whole word for which drop is true.
func dropWords(text string, drop func(string) bool) string {
	return wordRe.ReplaceAllStringFunc(text, func(w string) string {
		if drop(w) {
			return " "
		}
		return w
	})
}

// isHexColour matches six lower-case hex digits, e.g. a stripped "#1a2b3c".
func isHexColour(w string) bool {
	if len(w) != 6 {
		return false
	}
	for i := 0; i < len(w); i++ {
		if c := w[i]; !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// isShortNoise matches one or two lower-case ASCII letters that are not a known
// abbreviation.
func isShortNoise(w string) bool {
	if len(w) > 2 || shortWords[w] {
		return false
	}
	for i := 0; i < len(w); i++ {
		if c := w[i]; c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// cleanForClustering is CleanText without the short-token pass.
func cleanForClustering(text string) string {
	text = html.UnescapeString(text)
	text = tagRe.ReplaceAllString(text, " ")
	text = dropWords(text, isHexColour)
	text = urlRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// tokenize lower-cases doc and returns word tokens of two or more characters
// with stop words removed.
func tokenize(doc string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(doc), -1)
	out := raw[:0]
	for _, tok := range raw {
		if !isStopWord(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// ngrams returns every n-gram of tokens with min <= n <= max, joined by a space.
func ngrams(tokens []string, min, max int) []string {
	if min < 1 {
		min = 1
	}
	var out []string
	for n := min; n <= max; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if n == 1 {
				out = append(out, tokens[i])
				continue
			}
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
