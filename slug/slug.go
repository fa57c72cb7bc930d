// Package slug derives filesystem-safe filename stems from free text such as
// email subjects.
package slug

import (
	"strings"
	"unicode"
)

// MaxLen bounds the slug length to stay clear of filesystem path limits.
const MaxLen = 50

// keep reports whether a rune may appear in a filename stem. Anything else,
// including the filesystem-unsafe set \ / * ? : " < > | and stray
// punctuation, is dropped.
func keep(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}

// Make strips characters unsafe in filenames, collapses whitespace runs into
// single underscores and truncates the result to MaxLen runes. Removal is
// lossy and intentional. Empty input yields an empty slug; callers must
// substitute a placeholder before using it as a filename stem.
func Make(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inSpace = true
		case !keep(r):
			continue
		default:
			if inSpace && b.Len() > 0 {
				b.WriteByte('_')
			}
			inSpace = false
			b.WriteRune(r)
		}
	}

	runes := []rune(b.String())
	if len(runes) > MaxLen {
		runes = runes[:MaxLen]
	}
	return string(runes)
}

// Title reverses the slug transform for display: underscores become spaces.
// The reversal is approximate, subjects that contained underscores or were
// truncated cannot be recovered exactly.
func Title(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
