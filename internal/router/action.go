// Package router decides what happens with each classified guest message
// and orchestrates one conversational turn end to end.
package router

// ActionKind enumerates the routing outcomes. Every switch over it must
// handle all kinds; the default branch is a bug, not a fallback.
type ActionKind int

const (
	ActionStaticReply ActionKind = iota // canned reply, no provider call
	ActionLLMReply                      // knowledge-grounded provider reply
	ActionWorkflow                      // start or continue a workflow
	ActionEscalate                      // alert staff, acknowledge guest
	ActionStaffReview                   // draft a reply, hold for staff approval
)

func (k ActionKind) String() string {
	switch k {
	case ActionStaticReply:
		return "static_reply"
	case ActionLLMReply:
		return "llm_reply"
	case ActionWorkflow:
		return "workflow"
	case ActionEscalate:
		return "escalate"
	case ActionStaffReview:
		return "staff_review"
	}
	return "unknown"
}

// Action is the routing decision for one turn.
type Action struct {
	Kind       ActionKind
	WorkflowID string // set for ActionWorkflow
	Reason     string // why this action was chosen, for logs and ops events
}
