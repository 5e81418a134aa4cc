package slug

import (
	"regexp"
	"strings"
)

// Fixed transliteration table for characters seen in competition names.
// This is a product decision, not general Unicode folding: locale-specific
// expansions like ss for the sharp s are expected by the outbound URLs.
var charMap = map[rune]string{
	'ā': "a", 'á': "a", 'ǎ': "a", 'à': "a", 'ã': "a", 'ä': "a", 'å': "a",
	'ē': "e", 'é': "e", 'ě': "e", 'è': "e", 'ê': "e", 'ë': "e",
	'ī': "i", 'í': "i", 'ǐ': "i", 'ì': "i", 'ï': "i",
	'ō': "o", 'ó': "o", 'ǒ': "o", 'ò': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ū': "u", 'ú': "u", 'ǔ': "u", 'ù': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
	'ñ': "n", 'ņ': "n",
	'ś': "s", 'š': "s",
	'ź': "z", 'ž': "z",
	'č': "c",
	'ř': "r",
	'ģ': "g",
	'ķ': "k",
	'ļ': "l",
	'ß': "ss",
	'æ': "ae",
}

var nPattern = regexp.MustCompile(`'\s*n\s*'`)

// Make derives the URL-safe slug of a competition display name: lowercase,
// accent folding per charMap, "'n'" patterns collapsed to a plain n,
// apostrophes stripped, every remaining alphanumeric word title-cased and
// concatenated. Total over any input; the empty string maps to itself.
func Make(name string) string {
	if name == "" {
		return ""
	}

	var folded strings.Builder
	for _, r := range strings.ToLower(name) {
		if repl, ok := charMap[r]; ok {
			folded.WriteString(repl)
		} else {
			folded.WriteRune(r)
		}
	}

	s := nPattern.ReplaceAllString(folded.String(), "n")
	s = strings.ReplaceAll(s, "'", "")

	// Title-case each alphanumeric word, dropping everything else.
	var out strings.Builder
	startOfWord := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			if startOfWord {
				out.WriteRune(r - 'a' + 'A')
			} else {
				out.WriteRune(r)
			}
			startOfWord = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
			startOfWord = false
		default:
			startOfWord = true
		}
	}
	return out.String()
}
