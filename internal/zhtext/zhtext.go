// Package zhtext provides the Chinese-script helpers used when deciding
// whether a person's metadata still needs work and when normalizing merged
// values before they are written back.
package zhtext

import (
	"strings"
	"unicode"

	"github.com/siongui/gojianfan"
	"golang.org/x/text/width"
)

// ContainsHan reports whether s contains at least one Han character.
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// ToSimplified converts traditional Chinese text to simplified Chinese.
// Text that is already simplified (or not Chinese at all) passes through
// unchanged.
func ToSimplified(s string) string {
	if s == "" {
		return s
	}
	return gojianfan.T2S(s)
}

// FoldWidth narrows full-width ASCII variants so that names coming from
// different catalogs compare equal regardless of input method width.
func FoldWidth(s string) string {
	return width.Narrow.String(s)
}

// EqualNames compares two person names case-insensitively after width
// folding and whitespace trimming.
func EqualNames(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a = strings.TrimSpace(FoldWidth(a))
	b = strings.TrimSpace(FoldWidth(b))
	return strings.EqualFold(a, b)
}
