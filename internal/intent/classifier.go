package intent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rainbow-desk/rainbow/internal/language"
	"github.com/rainbow-desk/rainbow/internal/provider"
)

// ClassifierOptions wires the classifier's collaborators.
type ClassifierOptions struct {
	Settings Settings
	Keywords map[string][]string // intentName -> keyword list (T2)
	Examples map[string][]string // intentName -> example utterances (T3)
	Embedder Embedder            // nil disables T3
	Selector ChatSelector        // nil disables T4
	Detector *language.Detector
	Logger   *slog.Logger
}

// Classifier runs the tiers in order and stops at the first acceptance.
type Classifier struct {
	mu       sync.RWMutex
	settings Settings

	detector *language.Detector
	fuzzy    *fuzzyMatcher
	semantic *semanticMatcher
	llm      *llmClassifier
	logger   *slog.Logger
}

func NewClassifier(opts ClassifierOptions) *Classifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	detector := opts.Detector
	if detector == nil {
		detector = language.NewDetector()
	}
	keywords := opts.Keywords
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	examples := opts.Examples
	if examples == nil {
		examples = DefaultExamples()
	}
	return &Classifier{
		settings: opts.Settings,
		detector: detector,
		fuzzy:    newFuzzyMatcher(keywords),
		semantic: newSemanticMatcher(opts.Embedder, examples),
		llm:      newLLMClassifier(opts.Selector),
		logger:   logger.With("component", "intent"),
	}
}

// SetSettings swaps the tier configuration. Safe for concurrent use.
func (c *Classifier) SetSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// SetKeywords replaces the T2 keyword table, typically after a config
// store reload.
func (c *Classifier) SetKeywords(keywords map[string][]string) {
	c.mu.Lock()
	c.fuzzy = newFuzzyMatcher(keywords)
	c.mu.Unlock()
}

// SetExamples replaces the T3 utterance set and drops cached embeddings.
func (c *Classifier) SetExamples(examples map[string][]string) {
	c.semantic.setExamples(examples)
}

// Classify runs the tier pipeline on one guest message. contextMsgs is the
// recent conversation, newest last; each tier takes only as many as its
// settings allow. The returned Result always carries the detected language,
// even when every tier fails.
func (c *Classifier) Classify(ctx context.Context, text string, contextMsgs []provider.Message) Result {
	start := time.Now()

	c.mu.RLock()
	settings := c.settings
	fuzzy := c.fuzzy
	c.mu.RUnlock()

	detected := c.detector.Detect(text)
	result := Result{Intent: Unknown, Tier: Tier4, DetectedLang: detected}

	if settings.T1.Enabled {
		if name, ok := classifyTier1(text); ok {
			result.Intent = name
			result.Confidence = 1.0
			result.Tier = Tier1
			result.ResponseTime = time.Since(start)
			return result
		}
	}

	if settings.T2.Enabled {
		if name, score := fuzzy.match(text); score >= settings.T2.Threshold && name != "" {
			result.Intent = name
			result.Confidence = score
			result.Tier = Tier2
			result.ResponseTime = time.Since(start)
			return result
		}
	}

	if settings.T3.Enabled {
		name, score, err := c.semantic.match(ctx, text)
		switch {
		case err != nil:
			c.logger.Warn("semantic tier failed, falling through", "error", err)
		case score >= settings.T3.Threshold && name != "":
			result.Intent = name
			result.Confidence = score
			result.Tier = Tier3
			result.ResponseTime = time.Since(start)
			return result
		}
	}

	if settings.T4.Enabled {
		name, model, err := c.llm.classify(ctx, text, tail(contextMsgs, settings.T4.ContextMessages))
		if err != nil {
			c.logger.Warn("llm tier failed", "error", err)
		} else {
			result.Intent = name
			result.Confidence = 0.85
			result.Tier = Tier4
			result.Model = model
			result.ResponseTime = time.Since(start)
			return result
		}
	}

	result.Confidence = 0
	result.ResponseTime = time.Since(start)
	return result
}

func tail(msgs []provider.Message, n int) []provider.Message {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}
