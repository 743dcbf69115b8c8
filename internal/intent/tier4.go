package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rainbow-desk/rainbow/internal/provider"
)

// llmClassifier asks an LLM to pick one intent from the taxonomy.
type llmClassifier struct {
	selector ChatSelector
}

// ChatSelector is the subset of provider.Selector the classifier needs.
type ChatSelector interface {
	Chat(ctx context.Context, task provider.Task, req *provider.ChatRequest) (*provider.Result, error)
}

func newLLMClassifier(selector ChatSelector) *llmClassifier {
	return &llmClassifier{selector: selector}
}

// classify sends the message plus the intent taxonomy and parses a
// single-intent answer. The raw answer goes through the synonym map, so a
// paraphrasing model still lands on a canonical intent.
func (c *llmClassifier) classify(ctx context.Context, text string, contextMsgs []provider.Message) (intent string, model string, err error) {
	if c.selector == nil {
		return "", "", fmt.Errorf("no provider configured")
	}

	var sb strings.Builder
	sb.WriteString("You classify guest messages for a hostel front desk.\n")
	sb.WriteString("Reply with exactly one intent name from this list, nothing else.\n")
	sb.WriteString("Classify regardless of the language of the message.\n\n")
	for _, info := range Taxonomy {
		fmt.Fprintf(&sb, "%s: %s\n", info.Name, info.Description)
	}
	sb.WriteString("unknown: none of the above\n")

	messages := make([]provider.Message, 0, len(contextMsgs)+2)
	messages = append(messages, provider.Message{Role: "system", Content: sb.String()})
	messages = append(messages, contextMsgs...)
	messages = append(messages, provider.Message{Role: "user", Content: text})

	res, err := c.selector.Chat(ctx, provider.TaskClassification, &provider.ChatRequest{
		Messages:    messages,
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		return "", "", err
	}

	return MapLLMIntentToSpecific(res.Content), res.Model, nil
}
