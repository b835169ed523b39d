package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters that carry no combining mark and so survive NFD decomposition
var foldReplacer = strings.NewReplacer(
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
)

// ASCIIFold strips diacritics so "Hội An" becomes "Hoi An". Characters with
// no ASCII equivalent are replaced with '-'.
func ASCIIFold(s string) string {
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldReplacer.Replace(s))
	if err != nil {
		folded = s
	}

	var result strings.Builder
	result.Grow(len(folded))
	for _, r := range folded {
		if r < 128 && unicode.IsPrint(r) {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
