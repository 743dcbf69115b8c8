package intent

import "strings"

// Substring and fuzzy matching only apply to queries at least this long.
// Shorter queries must hit a keyword exactly; this prevents one- or
// two-letter typos from matching half the keyword table.
const (
	tier2MinWords = 4
	tier2MinChars = 18
)

// fuzzyMatcher holds the configured intentName → keyword lists.
type fuzzyMatcher struct {
	keywords map[string][]string
}

func newFuzzyMatcher(keywords map[string][]string) *fuzzyMatcher {
	m := &fuzzyMatcher{keywords: make(map[string][]string, len(keywords))}
	for intent, kws := range keywords {
		normalized := make([]string, 0, len(kws))
		for _, kw := range kws {
			kw = normalizeQuery(kw)
			if kw != "" {
				normalized = append(normalized, kw)
			}
		}
		m.keywords[intent] = normalized
	}
	return m
}

// match returns the best-scoring intent for the query.
//
// Rules:
//   - a full-string match always wins (confidence 1.0)
//   - substring and edit-distance matches apply only when the query has at
//     least tier2MinWords words AND tier2MinChars characters
func (m *fuzzyMatcher) match(query string) (string, float64) {
	query = normalizeQuery(query)
	if query == "" {
		return "", 0
	}

	tokens := strings.Fields(query)
	longEnough := len(tokens) >= tier2MinWords && len(query) >= tier2MinChars

	bestIntent, bestScore := "", 0.0
	for intent, kws := range m.keywords {
		for _, kw := range kws {
			score := scoreKeyword(query, tokens, kw, longEnough)
			if score > bestScore {
				bestIntent, bestScore = intent, score
			}
		}
	}
	return bestIntent, bestScore
}

func scoreKeyword(query string, tokens []string, kw string, longEnough bool) float64 {
	if query == kw {
		return 1.0
	}
	if !longEnough {
		return 0
	}

	// Phrase keyword contained in a long query.
	if strings.Contains(" "+query+" ", " "+kw+" ") {
		return 0.90
	}

	// Bounded edit distance against individual tokens (typos).
	if !strings.ContainsRune(kw, ' ') {
		best := 0.0
		for _, tok := range tokens {
			maxLen := len(tok)
			if len(kw) > maxLen {
				maxLen = len(kw)
			}
			if maxLen < 4 {
				continue // too short for a meaningful typo match
			}
			dist := boundedLevenshtein(tok, kw, 2)
			if dist < 0 {
				continue
			}
			score := 1.0 - float64(dist)/float64(maxLen)
			if score > best {
				best = score
			}
		}
		return best
	}
	return 0
}

func normalizeQuery(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r > 127:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// boundedLevenshtein returns the edit distance between a and b, or -1 when
// it exceeds bound.
func boundedLevenshtein(a, b string, bound int) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la-lb > bound || lb-la > bound {
		return -1
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > bound {
			return -1
		}
		prev, cur = cur, prev
	}
	if prev[lb] > bound {
		return -1
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
