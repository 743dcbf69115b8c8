package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// SideEffect runs when a step that names it completes. Effects are
// best-effort and run in the background on a session snapshot; a slow
// or failed effect never blocks the guest-facing flow.
type SideEffect func(ctx context.Context, phone string, session *Session) error

// Session is the live state of one guest's workflow.
type Session struct {
	WorkflowID   string            `json:"workflow_id"`
	StepID       string            `json:"step_id"`
	Lang         string            `json:"lang"`
	Slots        map[string]string `json:"slots"`
	lastSlot     string
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Turn is the outcome of feeding one guest message to the executor.
type Turn struct {
	Reply     string
	Done      bool
	Cancelled bool
}

// correctionRe spots a guest fixing their previous answer.
var correctionRe = regexp.MustCompile(`(?i)\b(actually|sorry,? i meant|no,? i meant|i mean|eh silap|salah tadi)\b|其实|说错了`)

// Executor holds workflow definitions and the per-phone sessions.
type Executor struct {
	mu          sync.Mutex
	defs        map[string]*Definition
	byIntent    map[string]string
	sessions    map[string]*Session
	effects     map[string]SideEffect
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type ExecutorOptions struct {
	Definitions []Definition
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 15 * time.Minute
	}
	e := &Executor{
		defs:        map[string]*Definition{},
		byIntent:    map[string]string{},
		sessions:    map[string]*Session{},
		effects:     map[string]SideEffect{},
		idleTimeout: idle,
		logger:      logger.With("component", "workflow"),
		now:         time.Now,
	}
	if err := e.SetDefinitions(opts.Definitions); err != nil {
		return nil, err
	}
	return e, nil
}

// SetDefinitions replaces the definition set. Active sessions keep the
// definition they started with only if its id survives the reload;
// otherwise the next turn cancels them gracefully.
func (e *Executor) SetDefinitions(defs []Definition) error {
	byID := make(map[string]*Definition, len(defs))
	byIntent := make(map[string]string, len(defs))
	for i := range defs {
		d := defs[i]
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := byID[d.ID]; dup {
			return fmt.Errorf("duplicate workflow id %s", d.ID)
		}
		byID[d.ID] = &d
		if d.Intent != "" {
			byIntent[d.Intent] = d.ID
		}
	}
	e.mu.Lock()
	e.defs = byID
	e.byIntent = byIntent
	e.mu.Unlock()
	return nil
}

// RegisterEffect binds a named side effect.
func (e *Executor) RegisterEffect(name string, fn SideEffect) {
	e.mu.Lock()
	e.effects[name] = fn
	e.mu.Unlock()
}

// WorkflowForIntent returns the workflow id an intent triggers, if any.
func (e *Executor) WorkflowForIntent(intent string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byIntent[intent]
	return id, ok
}

// Active reports whether the guest has a live session.
func (e *Executor) Active(phone string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[phone]
	return ok
}

// ActiveEmergency reports whether the guest's live session belongs to an
// emergency workflow. Emergency sessions consume every turn; routing must
// not divert their answers to other intents.
func (e *Executor) ActiveEmergency(phone string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[phone]
	if !ok {
		return false
	}
	def, ok := e.defs[sess.WorkflowID]
	return ok && def.Emergency
}

// Start opens a session and returns the first prompt.
func (e *Executor) Start(phone, workflowID, lang string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.defs[workflowID]
	if !ok {
		return "", fmt.Errorf("unknown workflow %s", workflowID)
	}
	now := e.now()
	e.sessions[phone] = &Session{
		WorkflowID:   workflowID,
		StepID:       def.Steps[0].ID,
		Lang:         lang,
		Slots:        map[string]string{},
		StartedAt:    now,
		LastActivity: now,
	}
	return promptIn(def.Steps[0].Prompt, lang), nil
}

// HandleTurn feeds one guest message into the active session.
//
// Order of checks: cancellation first, then correction, then the current
// step's validation. A validation failure repeats the step without
// advancing.
func (e *Executor) HandleTurn(ctx context.Context, phone, text string, cancelled bool) (Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[phone]
	if !ok {
		return Turn{}, fmt.Errorf("no active workflow for %s", phone)
	}
	def, ok := e.defs[sess.WorkflowID]
	if !ok {
		delete(e.sessions, phone)
		return Turn{Reply: cancelMessage(sess.Lang), Cancelled: true}, nil
	}
	sess.LastActivity = e.now()

	if cancelled && !def.Emergency {
		delete(e.sessions, phone)
		return Turn{Reply: cancelMessage(sess.Lang), Cancelled: true}, nil
	}

	step := def.step(sess.StepID)
	if step == nil {
		delete(e.sessions, phone)
		return Turn{Reply: cancelMessage(sess.Lang), Cancelled: true}, nil
	}

	// Correction of the previous answer, e.g. "actually 3".
	if sess.lastSlot != "" && correctionRe.MatchString(text) {
		if turn, handled := e.handleCorrection(def, sess, step, text); handled {
			return turn, nil
		}
	}

	value := strings.TrimSpace(text)
	if step.Validation != "" {
		re := regexp.MustCompile(step.Validation)
		match := re.FindString(text)
		if match == "" {
			msg := promptIn(step.ValidationMessage, sess.Lang)
			if msg == "" {
				msg = promptIn(step.Prompt, sess.Lang)
			}
			return Turn{Reply: msg}, nil
		}
		value = match
	}
	if step.Slot != "" {
		sess.Slots[step.Slot] = value
		sess.lastSlot = step.Slot
	}

	e.spawnEffects(ctx, phone, sess, step.SideEffects)

	next := step.Next
	for _, b := range step.Branches {
		if strings.EqualFold(strings.TrimSpace(b.Equals), value) {
			next = b.Next
			break
		}
	}

	if next == "" {
		delete(e.sessions, phone)
		return Turn{Reply: promptIn(def.Completion, sess.Lang), Done: true}, nil
	}

	sess.StepID = next
	nextStep := def.step(next)
	return Turn{Reply: promptIn(nextStep.Prompt, sess.Lang)}, nil
}

// handleCorrection re-binds the most recent slot from the correction text
// and acknowledges with the corrected value before repeating the current
// question.
func (e *Executor) handleCorrection(def *Definition, sess *Session, current *Step, text string) (Turn, bool) {
	prevStep := stepForSlot(def, sess.lastSlot)
	if prevStep == nil {
		return Turn{}, false
	}

	corrected := correctionRe.ReplaceAllString(text, "")
	corrected = strings.Trim(corrected, " ,.!。，")
	if prevStep.Validation != "" {
		re := regexp.MustCompile(prevStep.Validation)
		corrected = re.FindString(corrected)
	}
	if corrected == "" {
		return Turn{}, false
	}

	sess.Slots[sess.lastSlot] = corrected
	ack := fmt.Sprintf("%s %s. %s", ackPrefix(sess.Lang), corrected, promptIn(current.Prompt, sess.Lang))
	return Turn{Reply: ack}, true
}

func stepForSlot(def *Definition, slot string) *Step {
	for i := range def.Steps {
		if def.Steps[i].Slot == slot {
			return &def.Steps[i]
		}
	}
	return nil
}

// spawnEffects runs the step's side effects in the background so the
// guest reply is never held up behind a slow notification. Called with
// e.mu held; the goroutine works on a snapshot of the session and a
// context detached from the request deadline.
func (e *Executor) spawnEffects(ctx context.Context, phone string, sess *Session, names []string) {
	if len(names) == 0 {
		return
	}
	cp := *sess
	cp.Slots = make(map[string]string, len(sess.Slots))
	for k, v := range sess.Slots {
		cp.Slots[k] = v
	}
	fns := make(map[string]SideEffect, len(names))
	for _, name := range names {
		fn, ok := e.effects[name]
		if !ok {
			e.logger.Warn("unregistered side effect", "effect", name, "workflow", sess.WorkflowID)
			continue
		}
		fns[name] = fn
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		for _, name := range names {
			fn, ok := fns[name]
			if !ok {
				continue
			}
			if err := fn(ctx, phone, &cp); err != nil {
				e.logger.Warn("side effect failed", "effect", name, "workflow", cp.WorkflowID, "error", err)
			}
		}
	}()
}

// ExpireIdle cancels sessions idle past the timeout and returns the
// check-in message to send each affected guest.
func (e *Executor) ExpireIdle() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	expired := map[string]string{}
	for phone, sess := range e.sessions {
		if now.Sub(sess.LastActivity) >= e.idleTimeout {
			expired[phone] = idleMessage(sess.Lang)
			delete(e.sessions, phone)
		}
	}
	return expired
}

// Cancel force-closes a session, e.g. when staff take over.
func (e *Executor) Cancel(phone string) {
	e.mu.Lock()
	delete(e.sessions, phone)
	e.mu.Unlock()
}

// Session returns a copy of the live session for inspection.
func (e *Executor) Session(phone string) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[phone]
	if !ok {
		return Session{}, false
	}
	cp := *sess
	cp.Slots = make(map[string]string, len(sess.Slots))
	for k, v := range sess.Slots {
		cp.Slots[k] = v
	}
	return cp, true
}

func cancelMessage(lang string) string {
	switch lang {
	case "ms":
		return "Baik, saya batalkan. Beritahu saya jika perlu apa-apa lagi."
	case "zh":
		return "好的，已取消。有其他需要随时告诉我。"
	default:
		return "No problem, I've cancelled that. Let me know if you need anything else."
	}
}

func idleMessage(lang string) string {
	switch lang {
	case "ms":
		return "Masih ada? Saya batalkan permintaan tadi buat masa ini. Mesej saja bila dah sedia."
	case "zh":
		return "还在吗？我先取消刚才的请求，准备好随时再找我。"
	default:
		return "Still there? I've paused that request for now. Just message me when you're ready."
	}
}

func ackPrefix(lang string) string {
	switch lang {
	case "ms":
		return "Baik, saya tukar kepada"
	case "zh":
		return "好的，改为"
	default:
		return "Got it, changed to"
	}
}
