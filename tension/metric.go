package tension

import (
	"strings"
	"unicode"
)

// Metric compares two texts. Implementations must be deterministic and safe
// for concurrent use.
type Metric interface {
	// Contradicts reports whether a and b take opposing positions.
	Contradicts(a, b string) bool
	// Similarity returns a score in [0,1]; 1 means identical content.
	Similarity(a, b string) float64
}

// LexicalMetric is a dependency-free Metric. Two texts contradict when their
// stance polarities (from affirming and negating cue words) are opposite
// and their content vocabularies diverge by at least MinDivergence.
type LexicalMetric struct {
	MinDivergence float64
}

// DefaultMetric is the Metric used when none is configured.
var DefaultMetric Metric = LexicalMetric{MinDivergence: 0.5}

// Contradicts implements Metric.
func (m LexicalMetric) Contradicts(a, b string) bool {
	pa, pb := Polarity(a), Polarity(b)
	if pa == 0 || pb == 0 || (pa > 0) == (pb > 0) {
		return false
	}
	return 1-m.Similarity(a, b) >= m.MinDivergence
}

// Similarity implements Metric as the Jaccard index of content tokens.
func (LexicalMetric) Similarity(a, b string) float64 {
	return Jaccard(ContentTokens(a), ContentTokens(b))
}

var affirming = set(
	"yes", "should", "must", "will", "embrace", "pursue", "opportunity", "benefit",
	"agree", "support", "advantage", "growth", "definitely", "promising", "succeed",
	"worth", "favor", "favour", "recommend", "go",
)

var negating = set(
	"no", "not", "never", "shouldn't", "won't", "cannot", "can't", "don't", "avoid",
	"risk", "risky", "reject", "against", "doubt", "fail", "failure", "danger",
	"unlikely", "disagree", "weak", "wrong", "stop",
)

var stopwords = set(
	"the", "and", "for", "that", "this", "with", "but", "are", "was", "were", "its",
	"has", "have", "had", "from", "into", "than", "then", "they", "them", "their",
	"would", "could", "there", "what", "which", "when", "while", "about", "also",
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Polarity returns the number of affirming minus negating cue words.
func Polarity(text string) int {
	score := 0
	for _, w := range Tokens(text) {
		if _, ok := affirming[w]; ok {
			score++
		}
		if _, ok := negating[w]; ok {
			score--
		}
	}
	return score
}

// Tokens lower-cases text and splits it into words. Apostrophes inside a
// word are kept so contractions stay whole.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// ContentTokens returns the distinct tokens of at least three runes that
// are not stopwords.
func ContentTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range Tokens(text) {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Jaccard returns |a∩b| / |a∪b|, or 1 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
