// Package conversation persists guest conversations, their messages, and
// intent prediction history in SQLite.
package conversation

import "time"

// ResponseMode controls how replies for a conversation are delivered.
const (
	ModeAuto    = "auto"    // reply immediately
	ModeCopilot = "copilot" // draft replies for staff approval
	ModeOff     = "off"     // never reply automatically
)

// Conversation is one guest thread, keyed by normalized phone number.
type Conversation struct {
	Phone        string   `json:"phone"`
	DisplayName  string   `json:"display_name"`
	Unit         string   `json:"unit"`
	Language     string   `json:"language"` // durable preference, empty until learned
	Tags         []string `json:"tags"`
	Favourite    bool     `json:"favourite"`
	Pinned       bool     `json:"pinned"`
	Archived     bool     `json:"archived"`
	ResponseMode string   `json:"response_mode"`

	Summary    string `json:"summary"`
	SummarySeq int64  `json:"summary_seq"` // messages up to this seq are folded into Summary

	UnknownCount   int    `json:"unknown_count"`
	RepeatCount    int    `json:"repeat_count"`
	LastIntent     string `json:"last_intent"`
	NegativeStreak int    `json:"negative_streak"`

	// Lifetime provider spend for this guest, accumulated from every
	// assistant turn that carried usage numbers.
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`

	LastSentimentEscalationAt *time.Time `json:"last_sentiment_escalation_at,omitempty"`
	LastReadAt                *time.Time `json:"last_read_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// Message is one turn in a conversation. Seq is monotonic per phone and
// orders messages even when wall-clock timestamps collide. Assistant
// turns additionally carry how the reply was produced: model, routing
// action, knowledge files, timing and token usage.
type Message struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Lang      string    `json:"lang,omitempty"`
	Summary   bool      `json:"summary"` // true for stored summary markers
	CreatedAt time.Time `json:"created_at"`

	Model            string   `json:"model,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
	ResponseTimeMs   int64    `json:"response_time_ms,omitempty"`
	KBFiles          []string `json:"kb_files,omitempty"`
	Action           string   `json:"action,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	TotalTokens      int      `json:"total_tokens,omitempty"`
}

// Prediction is one logged classification, the raw material for the
// accuracy report.
type Prediction struct {
	ID             int64     `json:"id"`
	Phone          string    `json:"phone"`
	MessageText    string    `json:"message_text"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Tier           string    `json:"tier"`
	Model          string    `json:"model,omitempty"`
	DetectedLang   string    `json:"detected_lang"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Feedback       string    `json:"feedback,omitempty"` // "", correct, incorrect
	ActualIntent   string    `json:"actual_intent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	FeedbackCorrect   = "correct"
	FeedbackIncorrect = "incorrect"
)
