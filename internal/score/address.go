package score

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/listing-dedup/internal/model"
)

// Component weights within the address score. Street similarity carries the
// most signal; colonia and city give partial credit when the street text
// doesn't line up across platforms.
const (
	streetWeight  = 0.60
	coloniaWeight = 0.25
	cityWeight    = 0.15
)

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// scoreAddress returns textual similarity between the two listings'
// normalized address fields.
func scoreAddress(a, b *model.Listing) float64 {
	street := tokenSimilarity(NormalizeText(a.Address), NormalizeText(b.Address))

	score := streetWeight * street
	if textEqual(a.Colonia, b.Colonia) {
		score += coloniaWeight
	}
	if textEqual(a.City, b.City) {
		score += cityWeight
	}
	return score
}

// NormalizeText lowercases, strips diacritics, and collapses punctuation so
// "Av. Juárez 12-B" and "av juarez 12 b" compare equal.
func NormalizeText(s string) string {
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)

	var sb strings.Builder
	sb.Grow(len(out))
	for _, r := range out {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// textEqual reports whether two fields are non-empty and equal after
// normalization.
func textEqual(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	return na != "" && na == nb
}

// tokenSimilarity computes Jaccard similarity on word sets of two
// already-normalized strings.
func tokenSimilarity(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}

	var intersection int
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
