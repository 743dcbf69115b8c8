package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/intent"
	"github.com/rainbow-desk/rainbow/internal/knowledge"
	"github.com/rainbow-desk/rainbow/internal/language"
	"github.com/rainbow-desk/rainbow/internal/provider"
	"github.com/rainbow-desk/rainbow/internal/sentiment"
	"github.com/rainbow-desk/rainbow/internal/workflow"
)

// Notifier delivers staff alerts and ops events. Implementations are
// best-effort; the engine never fails a turn on a notification error.
type Notifier interface {
	StaffAlert(ctx context.Context, subject, body string)
	OpsEvent(ctx context.Context, event string, fields map[string]any)
}

// Response is the full outcome of one processed turn, shaped for the
// preview API and the channel dispatcher.
type Response struct {
	Reply            string          `json:"reply"`
	Intent           string          `json:"intent"`
	Confidence       float64         `json:"confidence"`
	Tier             string          `json:"tier"`
	Model            string          `json:"model,omitempty"`
	DetectedLanguage string          `json:"detectedLanguage"`
	ResponseTimeMs   int64           `json:"responseTimeMs"`
	KBFilesUsed      []string        `json:"kbFilesUsed"`
	Action           string          `json:"action"`
	Usage            *provider.Usage `json:"usage,omitempty"`
	PredictionID     int64           `json:"predictionId,omitempty"`
	PendingReview    bool            `json:"pendingReview,omitempty"`
}

// staffContactRe spots a guest asking for a human, answered from code so
// it works with every provider down.
var staffContactRe = regexp.MustCompile(`(?i)\b(staff (number|phone)|contact (the )?staff|talk to (a )?(human|person)|real person|speak to someone|nombor staf|cakap dengan orang)\b|人工|员工电话|找人`)

// Engine processes one guest turn end to end.
type Engine struct {
	cfg        *config.Config
	store      *conversation.Store
	summarizer *conversation.Summarizer
	classifier *intent.Classifier
	executor   *workflow.Executor
	retriever  *knowledge.Retriever
	selector   intent.ChatSelector
	policy     *Policy
	detector   *language.Detector
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

type EngineOptions struct {
	Config     *config.Config
	Store      *conversation.Store
	Summarizer *conversation.Summarizer
	Classifier *intent.Classifier
	Executor   *workflow.Executor
	Retriever  *knowledge.Retriever
	Selector   intent.ChatSelector
	Notifier   Notifier
	Logger     *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:        opts.Config,
		store:      opts.Store,
		summarizer: opts.Summarizer,
		classifier: opts.Classifier,
		executor:   opts.Executor,
		retriever:  opts.Retriever,
		selector:   opts.Selector,
		detector:   language.NewDetector(),
		notifier:   opts.Notifier,
		logger:     logger.With("component", "router"),
		now:        time.Now,
	}
	e.policy = NewPolicy(opts.Config.Router, opts.Config.Assistant, DefaultRouteTable(), opts.Executor.WorkflowForIntent)
	return e
}

// Policy exposes the routing policy for config reloads.
func (e *Engine) Policy() *Policy { return e.policy }

// HandleMessage runs one turn: language, workflow continuation,
// classification, routing, reply generation, persistence. It always
// returns a usable Response; provider failures degrade to a static
// fallback in the resolved language.
func (e *Engine) HandleMessage(ctx context.Context, phone, text, pushName string) (*Response, error) {
	start := e.now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Router.RequestDeadline)
	defer cancel()

	conv, firstContact, err := e.store.GetOrCreate(phone, pushName)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	phone = conv.Phone

	detected := e.detector.Detect(text)
	lang := language.ResolveReply(detected, conv.Language)
	if language.ShouldUpdateStored(detected, conv.Language) {
		if err := e.store.SetLanguage(phone, detected.Lang); err != nil {
			e.logger.Warn("persist language failed", "phone", phone, "error", err)
		}
	}

	if _, err := e.store.AppendMessage(&conversation.Message{
		Phone: phone, Role: "user", Content: text, Lang: detected.Lang,
	}); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// An active workflow owns the turn.
	if e.executor.Active(phone) {
		return e.workflowTurn(ctx, phone, text, lang, detected, start)
	}

	if staffContactRe.MatchString(text) {
		resp := &Response{
			Reply:            knowledge.StaffPhonesReply(lang),
			Intent:           "staff_contact",
			Confidence:       1.0,
			Tier:             string(intent.Tier1),
			DetectedLanguage: detected.Lang,
			Action:           ActionStaticReply.String(),
		}
		return e.finish(ctx, phone, resp, start)
	}

	history, err := e.store.History(phone, 30)
	if err != nil {
		e.logger.Warn("load history failed", "phone", phone, "error", err)
	}
	contextMsgs := toProviderMessages(history)
	// Drop the user message we just appended; the classifier gets it
	// separately.
	if n := len(contextMsgs); n > 0 {
		contextMsgs = contextMsgs[:n-1]
	}

	result := e.classifier.Classify(ctx, text, tailMessages(contextMsgs, e.cfg.Router.ClassifyContextMessages))

	pred, err := e.store.LogPrediction(&conversation.Prediction{
		Phone:          phone,
		MessageText:    text,
		Intent:         result.Intent,
		Confidence:     result.Confidence,
		Tier:           string(result.Tier),
		Model:          result.Model,
		DetectedLang:   result.DetectedLang.Lang,
		ResponseTimeMs: result.ResponseTime.Milliseconds(),
	})
	if err != nil {
		e.logger.Warn("log prediction failed", "phone", phone, "error", err)
	}

	repeatCount, err := e.store.RecordIntent(phone, result.Intent)
	if err != nil {
		e.logger.Warn("record intent failed", "phone", phone, "error", err)
	}
	negative := sentiment.Analyze(text) == sentiment.Negative
	streak, err := e.store.RecordSentiment(phone, negative)
	if err != nil {
		e.logger.Warn("record sentiment failed", "phone", phone, "error", err)
	}

	action := e.policy.Decide(policyInput{
		Result:        result,
		Conversation:  conv,
		FirstContact:  firstContact,
		RepeatCount:   repeatCount,
		NegativeTurns: streak,
		Now:           e.now(),
	})

	resp := &Response{
		Intent:           result.Intent,
		Confidence:       result.Confidence,
		Tier:             string(result.Tier),
		Model:            result.Model,
		DetectedLanguage: detected.Lang,
		Action:           action.Kind.String(),
	}
	if pred != nil {
		resp.PredictionID = pred.ID
	}

	switch action.Kind {
	case ActionStaticReply:
		resp.Reply = StaticReply(result.Intent, lang, e.cfg.Assistant.Name)
		if resp.Reply == "" {
			e.llmReply(ctx, resp, phone, text, lang, result.Intent, contextMsgs)
		}

	case ActionLLMReply:
		e.llmReply(ctx, resp, phone, text, lang, result.Intent, contextMsgs)

	case ActionWorkflow:
		prompt, err := e.executor.Start(phone, action.WorkflowID, lang)
		if err != nil {
			e.logger.Error("workflow start failed", "workflow", action.WorkflowID, "error", err)
			resp.Reply = fallbackReply(lang)
			break
		}
		if intent.IsEmergency(result.Intent) {
			e.alertStaff(ctx, phone, result.Intent, text, action.Reason)
			resp.Reply = urgencyAck(lang) + "\n" + prompt
		} else {
			resp.Reply = prompt
		}

	case ActionEscalate:
		e.alertStaff(ctx, phone, result.Intent, text, action.Reason)
		switch action.Reason {
		case "emergency":
			resp.Reply = urgencyAck(lang)
		case "repeated_question", "negative_sentiment":
			resp.Reply = frustrationAck(lang)
		default:
			resp.Reply = escalationAck(lang)
		}
		if action.Reason == "negative_sentiment" {
			if err := e.store.MarkSentimentEscalated(phone, e.now()); err != nil {
				e.logger.Warn("mark sentiment escalation failed", "phone", phone, "error", err)
			}
		}
		if action.Reason == "repeated_question" {
			if err := e.store.ResetRepeat(phone); err != nil {
				e.logger.Warn("reset repeat failed", "phone", phone, "error", err)
			}
		}

	case ActionStaffReview:
		e.llmReply(ctx, resp, phone, text, lang, result.Intent, contextMsgs)
		resp.PendingReview = true
		e.alertStaff(ctx, phone, result.Intent, text, "copilot_draft:\n"+resp.Reply)
		resp.Reply = reviewNotice(lang)
	}

	return e.finish(ctx, phone, resp, start)
}

// workflowTurn feeds the message into the active workflow session.
func (e *Engine) workflowTurn(ctx context.Context, phone, text, lang string, detected language.Detection, start time.Time) (*Response, error) {
	cancelled := intent.IsCancellation(text)
	turn, err := e.executor.HandleTurn(ctx, phone, text, cancelled)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Reply:            turn.Reply,
		Intent:           "workflow",
		Confidence:       1.0,
		Tier:             string(intent.Tier1),
		DetectedLanguage: detected.Lang,
		Action:           ActionWorkflow.String(),
	}
	if turn.Cancelled {
		resp.Action = "workflow_cancelled"
	} else if turn.Done {
		resp.Action = "workflow_completed"
	}
	return e.finish(ctx, phone, resp, start)
}

// llmReply fills resp.Reply with a knowledge-grounded provider answer, or
// the static fallback when providers fail or the deadline passes.
func (e *Engine) llmReply(ctx context.Context, resp *Response, phone, text, lang, intentName string, history []provider.Message) {
	kb := e.retriever.Retrieve(intentName, text)
	resp.KBFilesUsed = kb.Files

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s, the assistant for a small hostel. Reply in the guest's language (%s). Be warm and brief.\n", e.cfg.Assistant.Name, lang)
	if kb.Healthy {
		for _, seg := range kb.Segments {
			fmt.Fprintf(&sys, "\n--- %s ---\n%s\n", seg.File, seg.Content)
		}
	} else {
		sys.WriteString("\nYou are operating in static fallback mode: the knowledge base is unavailable. Answer only from the conversation with short, static replies, never guess hostel facts, and refer the guest to staff for anything you cannot answer.\n")
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: sys.String()})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: text})

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Router.ProviderCallDeadline)
	defer cancel()

	res, err := e.selector.Chat(callCtx, provider.TaskChat, &provider.ChatRequest{
		Messages:    messages,
		MaxTokens:   500,
		Temperature: 0.5,
	})
	if err != nil {
		e.logger.Error("provider reply failed", "phone", phone, "intent", intentName, "error", err)
		resp.Reply = fallbackReply(lang)
		return
	}
	resp.Reply = strings.TrimSpace(res.Content)
	resp.Model = res.Model
	resp.Usage = &res.Usage
}

// finish stamps timing, persists the assistant turn with its provenance
// (model, action, knowledge files, token usage), and runs summarization.
func (e *Engine) finish(ctx context.Context, phone string, resp *Response, start time.Time) (*Response, error) {
	resp.ResponseTimeMs = e.now().Sub(start).Milliseconds()
	if resp.Reply != "" && !resp.PendingReview {
		msg := &conversation.Message{
			Phone: phone, Role: "assistant", Content: resp.Reply, Intent: resp.Intent, Tier: resp.Tier,
			Model:          resp.Model,
			Confidence:     resp.Confidence,
			ResponseTimeMs: resp.ResponseTimeMs,
			KBFiles:        resp.KBFilesUsed,
			Action:         resp.Action,
		}
		if resp.Usage != nil {
			msg.PromptTokens = resp.Usage.PromptTokens
			msg.CompletionTokens = resp.Usage.CompletionTokens
			msg.TotalTokens = resp.Usage.TotalTokens
		}
		if _, err := e.store.AppendMessage(msg); err != nil {
			e.logger.Warn("persist reply failed", "phone", phone, "error", err)
		}
	}
	if e.summarizer != nil {
		if err := e.summarizer.MaybeSummarize(ctx, phone); err != nil {
			e.logger.Warn("summarization skipped", "phone", phone, "error", err)
		}
	}
	if e.notifier != nil {
		e.notifier.OpsEvent(ctx, "turn_processed", map[string]any{
			"phone":  phone,
			"intent": resp.Intent,
			"tier":   resp.Tier,
			"action": resp.Action,
			"ms":     resp.ResponseTimeMs,
		})
	}
	return resp, nil
}

func (e *Engine) alertStaff(ctx context.Context, phone, intentName, text, reason string) {
	if e.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Guest %s needs attention (%s)", phone, intentName)
	body := fmt.Sprintf("Reason: %s\nLast message: %s", reason, text)
	e.notifier.StaffAlert(ctx, subject, body)
}

// tailMessages caps the context handed to classification; reply
// generation still sees the full window. Zero means no cap.
func tailMessages(msgs []provider.Message, n int) []provider.Message {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

func toProviderMessages(msgs []conversation.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role != "user" && role != "assistant" && role != "system" {
			role = "user"
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out
}
