// Package config provides configuration types and loading for rainbow.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Paths        PathsConfig        `json:"paths"`
	Assistant    AssistantConfig    `json:"assistant"`
	Conversation ConversationConfig `json:"conversation"`
	Knowledge    KnowledgeConfig    `json:"knowledge"`
	Providers    []ProviderConfig   `json:"providers"`
	Router       RouterConfig       `json:"router"`
	Workflow     WorkflowConfig     `json:"workflow"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Channels     ChannelsConfig     `json:"channels"`
	Notify       NotifyConfig       `json:"notify"`
	Gateway      GatewayConfig      `json:"gateway"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace    string `json:"workspace" envconfig:"WORKSPACE"`
	DatabasePath string `json:"databasePath" envconfig:"DATABASE_PATH"`
	ConfigDir    string `json:"configDir" envconfig:"CONFIG_DIR"`
	KnowledgeDir string `json:"knowledgeDir" envconfig:"KNOWLEDGE_DIR"`
}

// AssistantConfig groups assistant identity and operating-mode settings.
type AssistantConfig struct {
	Name               string   `json:"name" envconfig:"ASSISTANT_NAME"`
	DefaultLanguage    string   `json:"defaultLanguage" envconfig:"DEFAULT_LANGUAGE"`
	CopilotMode        bool     `json:"copilotMode" envconfig:"COPILOT_MODE"`
	AutoApproveIntents []string `json:"autoApproveIntents"`
}

// ConversationConfig groups conversation-history settings.
type ConversationConfig struct {
	SummarizationThreshold int `json:"summarizationThreshold" envconfig:"SUMMARIZATION_THRESHOLD"`
	SummaryKeepTail        int `json:"summaryKeepTail" envconfig:"SUMMARY_KEEP_TAIL"`
}

// KnowledgeConfig groups knowledge-base settings.
type KnowledgeConfig struct {
	FailureThreshold int           `json:"failureThreshold"`
	AlertThrottle    time.Duration `json:"alertThrottle"`
}

// ProviderConfig describes one LLM provider endpoint.
type ProviderConfig struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // "cloud" or "local"
	APIKey   string `json:"apiKey,omitempty"`
	APIBase  string `json:"apiBase,omitempty"`
	Model    string `json:"model"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
	// Task-pinned model overrides, keyed by task ("classification", "chat", "ocr").
	TaskModels map[string]string `json:"taskModels,omitempty"`
}

// RouterConfig groups routing-policy thresholds.
type RouterConfig struct {
	RepeatEscalateAfter     int           `json:"repeatEscalateAfter"`
	NegativeEscalateAfter   int           `json:"negativeEscalateAfter"`
	SentimentCooldown       time.Duration `json:"sentimentCooldown"`
	RequestDeadline         time.Duration `json:"requestDeadline"`
	ProviderCallDeadline    time.Duration `json:"providerCallDeadline"`
	ClassifyContextMessages int           `json:"classifyContextMessages"`
}

// WorkflowConfig groups workflow-executor settings.
type WorkflowConfig struct {
	IdleTimeout time.Duration `json:"idleTimeout"`
}

// SchedulerConfig groups scheduled-message settings.
type SchedulerConfig struct {
	Enabled       bool          `json:"enabled" envconfig:"SCHEDULER_ENABLED"`
	TickInterval  time.Duration `json:"tickInterval"`
	MaxRetries    int           `json:"maxRetries"`
	CheckoutHour  int           `json:"checkoutHour"`
	CheckoutSpec  string        `json:"checkoutSpec,omitempty"`
	AdvanceNotice []int         `json:"advanceNotice"`
}

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	Enabled          bool     `json:"enabled" envconfig:"WHATSAPP_ENABLED"`
	AllowFrom        []string `json:"allowFrom"`
	DropUnauthorized bool     `json:"dropUnauthorized" envconfig:"WHATSAPP_DROP_UNAUTHORIZED"`
}

// NotifyConfig configures staff notification sinks.
type NotifyConfig struct {
	StaffPhones []string          `json:"staffPhones"`
	Slack       SlackNotifyConfig `json:"slack"`
	Kafka       KafkaNotifyConfig `json:"kafka"`
}

// SlackNotifyConfig configures Slack staff alerts.
type SlackNotifyConfig struct {
	Enabled bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	Token   string `json:"token" envconfig:"SLACK_TOKEN"`
	Channel string `json:"channel" envconfig:"SLACK_CHANNEL"`
}

// KafkaNotifyConfig configures the ops event stream.
type KafkaNotifyConfig struct {
	Enabled bool     `json:"enabled" envconfig:"KAFKA_ENABLED"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic" envconfig:"KAFKA_TOPIC"`
}

// GatewayConfig configures the HTTP API.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" envconfig:"GATEWAY_ENABLED"`
	Addr    string `json:"addr" envconfig:"GATEWAY_ADDR"`
	Token   string `json:"token" envconfig:"GATEWAY_TOKEN"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Name:            "Rainbow",
			DefaultLanguage: "en",
		},
		Conversation: ConversationConfig{
			SummarizationThreshold: 20,
			SummaryKeepTail:        10,
		},
		Knowledge: KnowledgeConfig{
			FailureThreshold: 3,
			AlertThrottle:    time.Hour,
		},
		Router: RouterConfig{
			RepeatEscalateAfter:     2,
			NegativeEscalateAfter:   3,
			SentimentCooldown:       30 * time.Minute,
			RequestDeadline:         45 * time.Second,
			ProviderCallDeadline:    30 * time.Second,
			ClassifyContextMessages: 5,
		},
		Workflow: WorkflowConfig{
			IdleTimeout: 15 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			TickInterval:  30 * time.Second,
			MaxRetries:    3,
			CheckoutHour:  9,
			AdvanceNotice: []int{1},
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    ":8099",
		},
	}
}
