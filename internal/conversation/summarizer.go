package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rainbow-desk/rainbow/internal/provider"
)

const (
	// SummarizeThreshold is the default number of unsummarized turns
	// that trigger a fold.
	SummarizeThreshold = 20
	// SummarizeKeepTail is the default number of recent turns that stay
	// verbatim.
	SummarizeKeepTail = 10
)

// ChatFunc sends a summarization request to the provider layer.
type ChatFunc func(ctx context.Context, task provider.Task, req *provider.ChatRequest) (*provider.Result, error)

// Summarizer folds long conversations into a running summary so the
// prompt window stays bounded while names, dates and booking details
// survive.
type Summarizer struct {
	store     *Store
	chat      ChatFunc
	threshold int
	keepTail  int
	logger    *slog.Logger
}

type SummarizerOptions struct {
	Store     *Store
	Chat      ChatFunc
	Threshold int // unsummarized turns that trigger a fold; 0 = default
	KeepTail  int // recent turns kept verbatim; 0 = default
	Logger    *slog.Logger
}

func NewSummarizer(opts SummarizerOptions) *Summarizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = SummarizeThreshold
	}
	keepTail := opts.KeepTail
	if keepTail <= 0 {
		keepTail = SummarizeKeepTail
	}
	return &Summarizer{
		store:     opts.Store,
		chat:      opts.Chat,
		threshold: threshold,
		keepTail:  keepTail,
		logger:    logger.With("component", "summarizer"),
	}
}

// MaybeSummarize folds older turns into the conversation summary once the
// unsummarized backlog reaches the threshold. A failed provider call
// leaves the conversation untouched; the next turn retries.
func (s *Summarizer) MaybeSummarize(ctx context.Context, phone string) error {
	count, err := s.store.UnsummarizedCount(phone)
	if err != nil {
		return err
	}
	if count < s.threshold {
		return nil
	}

	conv, err := s.store.Get(phone)
	if err != nil {
		return err
	}
	msgs, err := s.store.messagesAfter(conv.Phone, conv.SummarySeq, 0)
	if err != nil {
		return err
	}
	if len(msgs) <= s.keepTail {
		return nil
	}

	toFold := msgs[:len(msgs)-s.keepTail]
	uptoSeq := toFold[len(toFold)-1].Seq

	var transcript strings.Builder
	if conv.Summary != "" {
		transcript.WriteString("Previous summary:\n")
		transcript.WriteString(conv.Summary)
		transcript.WriteString("\n\nNew messages:\n")
	}
	for _, m := range toFold {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	res, err := s.chat(ctx, provider.TaskSummarization, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "Summarize this guest conversation for a hostel front desk. " +
				"Keep every name, room or unit number, date, amount, and booking detail exactly as stated. " +
				"Keep unresolved requests and promises made to the guest. Write a compact paragraph."},
			{Role: "user", Content: transcript.String()},
		},
		MaxTokens:   400,
		Temperature: 0.2,
	})
	if err != nil {
		s.logger.Warn("summarization failed, keeping full history", "phone", conv.Phone, "error", err)
		return err
	}

	summary := strings.TrimSpace(res.Content)
	if summary == "" {
		return fmt.Errorf("summarizer returned empty text")
	}
	if err := s.store.ApplySummary(conv.Phone, summary, uptoSeq); err != nil {
		return err
	}
	s.logger.Info("conversation summarized", "phone", conv.Phone, "folded", len(toFold), "upto_seq", uptoSeq)
	return nil
}
