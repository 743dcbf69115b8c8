package router

import (
	"time"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/intent"
)

// RouteTable maps intents to action names from the routing config file:
// "static", "llm", "escalate" or "workflow:<id>".
type RouteTable map[string]string

// DefaultRouteTable is the shipped routing.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		"greeting":    "static",
		"thanks":      "static",
		"goodbye":     "static",
		"card_locked": "static",
	}
}

// policyInput is everything Decide needs about one turn.
type policyInput struct {
	Result        intent.Result
	Conversation  *conversation.Conversation
	FirstContact  bool
	RepeatCount   int
	NegativeTurns int
	Now           time.Time
}

// Policy turns a classification plus conversation state into an Action.
type Policy struct {
	cfg        config.RouterConfig
	assistant  config.AssistantConfig
	routes     RouteTable
	workflowFn func(intentName string) (string, bool)
}

func NewPolicy(cfg config.RouterConfig, assistant config.AssistantConfig, routes RouteTable, workflowFn func(string) (string, bool)) *Policy {
	if routes == nil {
		routes = DefaultRouteTable()
	}
	if workflowFn == nil {
		workflowFn = func(string) (string, bool) { return "", false }
	}
	return &Policy{cfg: cfg, assistant: assistant, routes: routes, workflowFn: workflowFn}
}

// SetRoutes swaps the routing table after a config reload.
func (p *Policy) SetRoutes(routes RouteTable) {
	if routes != nil {
		p.routes = routes
	}
}

// Decide applies the routing rules in priority order. Safety rules come
// first: emergencies and frustration signals always beat the routing
// table.
func (p *Policy) Decide(in policyInput) Action {
	name := in.Result.Intent

	if intent.IsEmergency(name) {
		if id, ok := p.workflowFn(name); ok {
			return Action{Kind: ActionWorkflow, WorkflowID: id, Reason: "emergency"}
		}
		return Action{Kind: ActionEscalate, Reason: "emergency"}
	}

	// The guest asked the same thing again after two identical answers.
	if in.RepeatCount >= p.cfg.RepeatEscalateAfter && p.cfg.RepeatEscalateAfter > 0 {
		return Action{Kind: ActionEscalate, Reason: "repeated_question"}
	}

	// Three negative messages in a row, at most once per cooldown.
	if in.NegativeTurns >= p.cfg.NegativeEscalateAfter && p.cfg.NegativeEscalateAfter > 0 {
		last := in.Conversation.LastSentimentEscalationAt
		if last == nil || in.Now.Sub(*last) >= p.cfg.SentimentCooldown {
			return Action{Kind: ActionEscalate, Reason: "negative_sentiment"}
		}
	}

	if in.FirstContact && name == "greeting" {
		return Action{Kind: ActionStaticReply, Reason: "first_contact_greeting"}
	}

	if p.assistant.CopilotMode && !p.autoApproved(name) {
		return Action{Kind: ActionStaffReview, Reason: "copilot_mode"}
	}

	if id, ok := p.workflowFn(name); ok {
		return Action{Kind: ActionWorkflow, WorkflowID: id, Reason: "workflow_intent"}
	}

	switch route := p.routes[name]; {
	case route == "static":
		return Action{Kind: ActionStaticReply, Reason: "routing_table"}
	case route == "escalate":
		return Action{Kind: ActionEscalate, Reason: "routing_table"}
	case len(route) > len("workflow:") && route[:len("workflow:")] == "workflow:":
		return Action{Kind: ActionWorkflow, WorkflowID: route[len("workflow:"):], Reason: "routing_table"}
	}

	return Action{Kind: ActionLLMReply, Reason: "default"}
}

func (p *Policy) autoApproved(name string) bool {
	for _, a := range p.assistant.AutoApproveIntents {
		if a == name {
			return true
		}
	}
	return false
}
