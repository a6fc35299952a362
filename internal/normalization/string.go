package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Title trims and single-spaces a display title. Case is kept.
func Title(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Slug lowercases s, strips accents, and joins alphanumeric runs with '-'.
// The result is at most 48 bytes and may be empty.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(strings.TrimSpace(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	for len(out) > 48 {
		if i := strings.LastIndexByte(out[:48], '-'); i > 0 {
			out = out[:i]
		} else {
			out = strings.TrimRight(truncateRunes(out, 48), "-")
		}
	}
	return out
}

// TagName tidies a user supplied tag label: trimmed, single spaced, at most 40 bytes.
func TagName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncateRunes(s, 40)
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}
