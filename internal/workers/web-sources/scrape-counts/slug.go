package scrapecounts

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugStopWords = map[string]struct{}{
	"of":  {},
	"the": {},
	"and": {},
	"at":  {},
	"for": {},
	"in":  {},
}

// NormalizeSlug turns an entity name into the URL slug used by the report
// site: accents folded, lower-cased, stop words dropped, alphanumeric runs
// joined with '-'. NormalizeSlug(NormalizeSlug(x)) == NormalizeSlug(x).
//
//	"University of Michigan" -> "university-michigan"
//	"Ernst & Young U.S. LLP" -> "ernst-young-u-s-llp"
func NormalizeSlug(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	words := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := slugStopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	// A name made only of stop words keeps them.
	if len(kept) == 0 {
		kept = words
	}
	return strings.Join(kept, "-")
}
