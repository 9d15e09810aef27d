package core

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSlugLength bounds generated slugs, suffix included.
	MaxSlugLength = 64
	fallbackSlug  = "tag"
)

// Slugify derives a URL-safe slug from a tag name: diacritics are folded
// ("Café" -> "cafe"), runs of anything outside [a-z0-9] become a single
// dash, and leading/trailing dashes are trimmed. Names with nothing
// sluggable left (emoji, CJK) get "tag".
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '&':
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
			}
			b.WriteString("and-")
			dash = true
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// SlugCandidate returns the n-th candidate for base: base itself for n <= 1,
// otherwise base-n, trimmed so the result stays within MaxSlugLength.
func SlugCandidate(base string, n int) string {
	if n <= 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) <= MaxSlugLength {
		return base + suffix
	}
	trim := MaxSlugLength - len(suffix)
	if trim < 1 {
		trim = 1
	}
	return strings.TrimRight(base[:trim], "-") + suffix
}
