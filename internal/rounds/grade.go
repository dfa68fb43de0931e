package rounds

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"storyguess/pkg/protocol"
)

// Grade reports whether a guess identifies the subtopic's misinformation.
// Matching is forgiving: players paraphrase rather than quote, so near-exact
// text and strong content-word overlap both count.
func Grade(guess string, st protocol.Subtopic) bool {
	g := normalize(guess)
	target := normalize(st.Misinformation)
	if g == "" || target == "" {
		return false
	}

	if g == target {
		return true
	}
	if levenshtein.ComputeDistance(g, target) <= 2 {
		return true
	}
	if strings.Contains(g, target) {
		return true
	}
	if strings.Contains(target, g) && len(g) >= len(target)/2 {
		return true
	}
	return overlap(g, target) >= 0.6
}

// overlap is the fraction of the target's content words present in the guess.
func overlap(guess, target string) float64 {
	words := map[string]bool{}
	for _, w := range strings.Fields(guess) {
		words[w] = true
	}

	total, hits := 0, 0
	for _, w := range strings.Fields(target) {
		if stopwords[w] {
			continue
		}
		total++
		if words[w] {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "it": true, "its": true, "is": true,
	"was": true, "were": true, "be": true, "been": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "by": true, "with": true,
	"and": true, "or": true, "that": true, "this": true,
	"has": true, "have": true, "had": true, "about": true, "than": true,
}
