// Package sentiment provides a single-pass lexicon check used to drive the
// consecutive-negative escalation policy. It is deliberately simple: the
// router only needs negative / not-negative, not a calibrated score.
package sentiment

import "strings"

// Label is the coarse sentiment of one message.
type Label int

const (
	Neutral Label = iota
	Positive
	Negative
)

func (l Label) String() string {
	switch l {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "neutral"
	}
}

// Trilingual lexicons. Multi-word entries are matched as substrings,
// single words as whole tokens.
var negativeTerms = []string{
	"ridiculous", "terrible", "horrible", "awful", "disgusting", "dirty",
	"disappointed", "disappointing", "unacceptable", "worst", "useless",
	"nobody is helping", "no one is helping", "not helping", "waste of",
	"angry", "furious", "refund", "complaint", "complain", "broken",
	"teruk", "kotor", "marah", "kecewa", "tak puas hati", "lambat sangat",
	"太差", "很脏", "生气", "失望", "投诉", "太慢",
}

var positiveTerms = []string{
	"thanks", "thank you", "great", "awesome", "perfect", "love", "nice",
	"excellent", "wonderful", "appreciate", "helpful",
	"terima kasih", "bagus", "baik", "hebat",
	"谢谢", "很好", "太棒了",
}

// Analyze returns the sentiment label for one message.
// Negative wins ties: a message that is both angry and polite still counts
// toward the escalation streak.
func Analyze(text string) Label {
	lower := strings.ToLower(text)
	if lower == "" {
		return Neutral
	}

	neg := countHits(lower, negativeTerms)
	pos := countHits(lower, positiveTerms)

	// Exclamation-heavy messages with negative words read angrier.
	if neg > 0 && strings.Count(lower, "!") >= 1 {
		neg++
	}

	switch {
	case neg > 0 && neg >= pos:
		return Negative
	case pos > 0:
		return Positive
	default:
		return Neutral
	}
}

func countHits(lower string, terms []string) int {
	hits := 0
	tokens := tokenize(lower)
	for _, term := range terms {
		if strings.ContainsRune(term, ' ') || !isASCII(term) {
			if strings.Contains(lower, term) {
				hits++
			}
			continue
		}
		for _, tok := range tokens {
			if tok == term {
				hits++
				break
			}
		}
	}
	return hits
}

func tokenize(lower string) []string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
