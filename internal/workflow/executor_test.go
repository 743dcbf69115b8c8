package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := NewExecutor(ExecutorOptions{Definitions: DefaultDefinitions()})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestBookingFlowHappyPath(t *testing.T) {
	e := newTestExecutor(t)

	reply, err := e.Start("601111", "booking", "en")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "guests") {
		t.Errorf("first prompt = %q", reply)
	}

	turn, err := e.HandleTurn(context.Background(), "601111", "2", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(turn.Reply, "check in") {
		t.Errorf("second prompt = %q", turn.Reply)
	}

	turn, _ = e.HandleTurn(context.Background(), "601111", "this friday", false)
	if !strings.Contains(turn.Reply, "nights") {
		t.Errorf("third prompt = %q", turn.Reply)
	}

	turn, _ = e.HandleTurn(context.Background(), "601111", "2 nights", false)
	if !turn.Done {
		t.Fatal("workflow should complete")
	}
	if e.Active("601111") {
		t.Error("session should be closed after completion")
	}
}

func TestValidationFailureRepeatsStep(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := e.Start("601111", "booking", "en"); err != nil {
		t.Fatal(err)
	}

	turn, err := e.HandleTurn(context.Background(), "601111", "a few", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(turn.Reply, "number of guests") {
		t.Errorf("validation message = %q", turn.Reply)
	}
	sess, _ := e.Session("601111")
	if sess.StepID != "guests" {
		t.Errorf("step advanced to %s on invalid input", sess.StepID)
	}

	if _, err := e.HandleTurn(context.Background(), "601111", "2", false); err != nil {
		t.Fatal(err)
	}
	turn, err = e.HandleTurn(context.Background(), "601111", "whenever really", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(turn.Reply, "Which date") {
		t.Errorf("date validation message = %q", turn.Reply)
	}
	sess, _ = e.Session("601111")
	if sess.StepID != "dates" {
		t.Errorf("step advanced to %s on an unparseable date", sess.StepID)
	}
}

func TestCheckInDateFormats(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"this friday", "friday"},
		{"12 March please", "12 March"},
		{"2026-03-12", "2026-03-12"},
		{"maybe 14/3", "14/3"},
		{"esok boleh?", "esok"},
		{"明天入住", "明天"},
		{"星期五", "星期五"},
	}
	for _, tt := range tests {
		e := newTestExecutor(t)
		if _, err := e.Start("601111", "booking", "en"); err != nil {
			t.Fatal(err)
		}
		if _, err := e.HandleTurn(context.Background(), "601111", "2", false); err != nil {
			t.Fatal(err)
		}
		if _, err := e.HandleTurn(context.Background(), "601111", tt.text, false); err != nil {
			t.Fatal(err)
		}
		sess, _ := e.Session("601111")
		if sess.Slots["check_in_date"] != tt.want {
			t.Errorf("check_in_date for %q = %q, want %q", tt.text, sess.Slots["check_in_date"], tt.want)
		}
	}
}

func TestCorrectionUpdatesPreviousSlot(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := e.Start("601111", "booking", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleTurn(context.Background(), "601111", "2", false); err != nil {
		t.Fatal(err)
	}

	turn, err := e.HandleTurn(context.Background(), "601111", "actually 3", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(turn.Reply, "3") {
		t.Errorf("correction ack %q should echo the corrected value", turn.Reply)
	}

	sess, _ := e.Session("601111")
	if sess.Slots["guests"] != "3" {
		t.Errorf("guests slot = %q, want 3", sess.Slots["guests"])
	}
	if sess.StepID != "dates" {
		t.Errorf("correction moved the flow to %s", sess.StepID)
	}
}

func TestCancellationExitsGraciously(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := e.Start("601111", "booking", "en"); err != nil {
		t.Fatal(err)
	}

	turn, err := e.HandleTurn(context.Background(), "601111", "never mind", true)
	if err != nil {
		t.Fatal(err)
	}
	if !turn.Cancelled {
		t.Fatal("expected cancellation")
	}
	if !strings.Contains(turn.Reply, "cancelled") {
		t.Errorf("cancel reply = %q", turn.Reply)
	}
	if e.Active("601111") {
		t.Error("session should be gone")
	}
}

func TestEmergencyWorkflowIgnoresCancellation(t *testing.T) {
	e := newTestExecutor(t)
	if _, err := e.Start("601111", "theft_report", "en"); err != nil {
		t.Fatal(err)
	}
	if !e.ActiveEmergency("601111") {
		t.Fatal("theft report should be an emergency session")
	}

	turn, err := e.HandleTurn(context.Background(), "601111", "stop, my wallet", true)
	if err != nil {
		t.Fatal(err)
	}
	if turn.Cancelled {
		t.Error("emergency workflow must not cancel mid-flow")
	}
	if !e.Active("601111") {
		t.Error("session should stay open")
	}
}

func TestSideEffectsRun(t *testing.T) {
	e := newTestExecutor(t)
	notified := make(chan string, 1)
	e.RegisterEffect("notify_staff", func(_ context.Context, phone string, sess *Session) error {
		notified <- sess.Slots["item"]
		return nil
	})

	if _, err := e.Start("601111", "theft_report", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleTurn(context.Background(), "601111", "my wallet", false); err != nil {
		t.Fatal(err)
	}
	select {
	case item := <-notified:
		if item != "my wallet" {
			t.Errorf("notified with %q, want the collected item", item)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("side effect never ran")
	}
}

func TestSideEffectsDoNotBlockReply(t *testing.T) {
	e := newTestExecutor(t)
	release := make(chan struct{})
	started := make(chan struct{})
	e.RegisterEffect("notify_staff", func(_ context.Context, _ string, _ *Session) error {
		close(started)
		<-release
		return nil
	})
	defer close(release)

	if _, err := e.Start("601111", "theft_report", "en"); err != nil {
		t.Fatal(err)
	}
	turn, err := e.HandleTurn(context.Background(), "601111", "my wallet", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(turn.Reply, "last see it") {
		t.Errorf("reply = %q, want the next prompt while the effect is in flight", turn.Reply)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("side effect never started")
	}
}

func TestSideEffectOutlivesCancelledRequest(t *testing.T) {
	e := newTestExecutor(t)
	gotErr := make(chan error, 1)
	e.RegisterEffect("notify_staff", func(ctx context.Context, _ string, _ *Session) error {
		gotErr <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := e.Start("601111", "theft_report", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleTurn(ctx, "601111", "my wallet", false); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case err := <-gotErr:
		if err != nil {
			t.Errorf("effect context err = %v, want nil after the request ends", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("side effect never ran")
	}
}

func TestTurnsAndExpiryConcurrently(t *testing.T) {
	e := newTestExecutor(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := e.Start("601111", "booking", "en"); err != nil {
				t.Error(err)
				return
			}
			_, _ = e.HandleTurn(context.Background(), "601111", "2", false)
			_, _ = e.HandleTurn(context.Background(), "601111", "this friday", false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.ExpireIdle()
			e.Cancel("601111")
			_, _ = e.Session("601111")
		}
	}()
	wg.Wait()
}

func TestExpireIdle(t *testing.T) {
	e := newTestExecutor(t)
	base := time.Now()
	e.now = func() time.Time { return base }

	if _, err := e.Start("601111", "booking", "en"); err != nil {
		t.Fatal(err)
	}

	e.now = func() time.Time { return base.Add(10 * time.Minute) }
	if expired := e.ExpireIdle(); len(expired) != 0 {
		t.Errorf("expired too early: %v", expired)
	}

	e.now = func() time.Time { return base.Add(16 * time.Minute) }
	expired := e.ExpireIdle()
	msg, ok := expired["601111"]
	if !ok {
		t.Fatal("session should expire after the idle timeout")
	}
	if !strings.Contains(msg, "Still there?") {
		t.Errorf("idle message = %q", msg)
	}
	if e.Active("601111") {
		t.Error("expired session should be removed")
	}
}

func TestSetDefinitionsRejectsDangling(t *testing.T) {
	defs := []Definition{{
		ID:     "broken",
		Intent: "x",
		Steps: []Step{{
			ID:     "a",
			Prompt: map[string]string{"en": "hi"},
			Next:   "missing",
		}},
	}}
	if _, err := NewExecutor(ExecutorOptions{Definitions: defs}); err == nil {
		t.Fatal("expected validation error for dangling next")
	}
}

func TestWorkflowForIntent(t *testing.T) {
	e := newTestExecutor(t)
	id, ok := e.WorkflowForIntent("booking_inquiry")
	if !ok || id != "booking" {
		t.Errorf("WorkflowForIntent = %q/%v, want booking", id, ok)
	}
	if _, ok := e.WorkflowForIntent("wifi"); ok {
		t.Error("wifi should not trigger a workflow")
	}
}
