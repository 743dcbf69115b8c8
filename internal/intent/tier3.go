package intent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Embedder produces a vector for a piece of text. Satisfied by
// provider.Embedder via a small adapter in the router wiring.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// tier3TopK example utterances vote for the winning intent.
const tier3TopK = 5

// semanticMatcher compares message embeddings against a curated
// intentName → example utterances set.
type semanticMatcher struct {
	embedder Embedder

	mu       sync.RWMutex
	examples map[string][]string
	vectors  []exampleVector // built lazily on first classification
	built    bool
}

type exampleVector struct {
	intent string
	vec    []float32
}

func newSemanticMatcher(embedder Embedder, examples map[string][]string) *semanticMatcher {
	return &semanticMatcher{
		embedder: embedder,
		examples: examples,
	}
}

// setExamples replaces the utterance set and invalidates cached vectors.
func (m *semanticMatcher) setExamples(examples map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.examples = examples
	m.vectors = nil
	m.built = false
}

// ensureVectors embeds the example set once. Failures leave the cache
// unbuilt so the next call retries.
func (m *semanticMatcher) ensureVectors(ctx context.Context) error {
	m.mu.RLock()
	built := m.built
	m.mu.RUnlock()
	if built {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built {
		return nil
	}

	// Deterministic embed order so retries after partial failure behave
	// the same way.
	intents := make([]string, 0, len(m.examples))
	for intent := range m.examples {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	var vectors []exampleVector
	for _, intent := range intents {
		for _, utterance := range m.examples[intent] {
			vec, err := m.embedder.EmbedText(ctx, utterance)
			if err != nil {
				return fmt.Errorf("embed example for %s: %w", intent, err)
			}
			vectors = append(vectors, exampleVector{intent: intent, vec: vec})
		}
	}
	m.vectors = vectors
	m.built = true
	return nil
}

// match embeds the message, takes the top-k most similar examples, and
// aggregates their similarity by intent.
func (m *semanticMatcher) match(ctx context.Context, text string) (string, float64, error) {
	if m.embedder == nil {
		return "", 0, fmt.Errorf("no embedder configured")
	}
	if err := m.ensureVectors(ctx); err != nil {
		return "", 0, err
	}

	queryVec, err := m.embedder.EmbedText(ctx, text)
	if err != nil {
		return "", 0, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 {
		return "", 0, nil
	}

	type scored struct {
		intent string
		sim    float64
	}
	top := make([]scored, 0, len(m.vectors))
	for _, ev := range m.vectors {
		top = append(top, scored{intent: ev.intent, sim: cosineSimilarity(queryVec, ev.vec)})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].sim > top[j].sim })
	if len(top) > tier3TopK {
		top = top[:tier3TopK]
	}

	// Aggregate: mean similarity of each intent's entries in the top-k,
	// weighted by how many entries it placed there.
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range top {
		sums[s.intent] += s.sim
		counts[s.intent]++
	}

	bestIntent, bestScore := "", 0.0
	for intent, sum := range sums {
		mean := sum / float64(counts[intent])
		weight := float64(counts[intent]) / float64(len(top))
		score := mean * (0.7 + 0.3*weight)
		if score > bestScore {
			bestIntent, bestScore = intent, score
		}
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return bestIntent, bestScore, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
