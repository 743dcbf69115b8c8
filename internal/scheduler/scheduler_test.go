package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rainbow-desk/rainbow/internal/config"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStoreWithDB(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string // "phone|text"
	fails int      // fail this many sends before succeeding
}

func (f *fakeSender) SendText(ctx context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, phone+"|"+text)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAdmin struct {
	alerts []string
}

func (f *fakeAdmin) StaffAlert(ctx context.Context, subject, body string) {
	f.alerts = append(f.alerts, subject)
}

func newTestScheduler(t *testing.T, sender *fakeSender, admin *fakeAdmin) (*Scheduler, *Store) {
	t.Helper()
	store := setupStore(t)
	s := New(Options{
		Store:    store,
		Sender:   sender,
		Notifier: admin,
		Config: config.SchedulerConfig{
			Enabled:      true,
			TickInterval: 30 * time.Second,
			MaxRetries:   3,
			CheckoutHour: 9,
		},
	})
	return s, store
}

func TestScheduleRejectsPastFireAt(t *testing.T) {
	store := setupStore(t)
	err := store.Schedule(&Task{
		Phone:   "60123456789",
		Payload: "hello",
		FireAt:  time.Now().Add(-time.Minute),
	})
	if err == nil {
		t.Fatal("expected error for past fire_at")
	}
}

func TestScheduleRejectsUnknownRepeat(t *testing.T) {
	store := setupStore(t)
	err := store.Schedule(&Task{
		Phone:   "60123456789",
		Payload: "hello",
		FireAt:  time.Now().Add(time.Hour),
		Repeat:  "fortnightly",
	})
	if err == nil {
		t.Fatal("expected error for unknown repeat rule")
	}
}

func TestSweepDispatchesDueTasksInOrder(t *testing.T) {
	sender := &fakeSender{}
	s, store := newTestScheduler(t, sender, nil)

	base := time.Now()
	// Same fire_at; creation order must decide.
	fireAt := base.Add(50 * time.Millisecond)
	for i := 0; i < 3; i++ {
		err := store.Schedule(&Task{
			Phone:   "60123456789",
			Payload: fmt.Sprintf("msg-%d", i),
			FireAt:  fireAt,
		})
		if err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Not yet due.
	err := store.Schedule(&Task{Phone: "60123456789", Payload: "later", FireAt: base.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(time.Second) }
	s.Sweep(context.Background())

	if sender.count() != 3 {
		t.Fatalf("sent %d messages, want 3", sender.count())
	}
	for i, want := range []string{"msg-0", "msg-1", "msg-2"} {
		if !strings.HasSuffix(sender.sent[i], "|"+want) {
			t.Errorf("send %d = %q, want payload %q", i, sender.sent[i], want)
		}
	}

	pending, err := store.List(StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Payload != "later" {
		t.Fatalf("pending = %+v, want only the future task", pending)
	}
}

func TestTaskNeverFiresEarly(t *testing.T) {
	sender := &fakeSender{}
	s, store := newTestScheduler(t, sender, nil)

	base := time.Now()
	if err := store.Schedule(&Task{Phone: "601", Payload: "early?", FireAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(59 * time.Minute) }
	s.Sweep(context.Background())
	if sender.count() != 0 {
		t.Fatal("task dispatched before fire_at")
	}

	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	s.Sweep(context.Background())
	if sender.count() != 1 {
		t.Fatal("task not dispatched after fire_at")
	}
}

func TestFailedDispatchRetriesThenFails(t *testing.T) {
	sender := &fakeSender{fails: 10}
	admin := &fakeAdmin{}
	s, store := newTestScheduler(t, sender, admin)

	base := time.Now()
	task := &Task{Phone: "601", Payload: "doomed", FireAt: base.Add(10 * time.Millisecond)}
	if err := store.Schedule(task); err != nil {
		t.Fatal(err)
	}

	// Each sweep advances past the backoff window.
	for i := 1; i <= 3; i++ {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		s.Sweep(context.Background())
	}

	got, err := store.List(StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Attempts != 3 {
		t.Fatalf("failed tasks = %+v, want one with 3 attempts", got)
	}
	if len(admin.alerts) != 1 {
		t.Fatalf("admin alerts = %v, want exactly one", admin.alerts)
	}
	if sender.count() != 0 {
		t.Fatal("nothing should have been delivered")
	}
}

func TestRepeatTaskSpawnsNextOnDispatch(t *testing.T) {
	sender := &fakeSender{}
	s, store := newTestScheduler(t, sender, nil)

	base := time.Now()
	fireAt := base.Add(10 * time.Millisecond)
	if err := store.Schedule(&Task{Phone: "601", Payload: "daily hello", FireAt: fireAt, Repeat: RepeatDaily}); err != nil {
		t.Fatal(err)
	}

	// Dispatch happens two hours late; the next occurrence must stay
	// anchored to the original fire_at, not to the late dispatch.
	late := base.Add(2 * time.Hour)
	s.now = func() time.Time { return late }
	store.now = func() time.Time { return late }
	s.Sweep(context.Background())

	if sender.count() != 1 {
		t.Fatalf("sent %d, want 1", sender.count())
	}
	pending, err := store.List(StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, want the spawned occurrence", pending)
	}
	want := fireAt.AddDate(0, 0, 1)
	if got := pending[0].FireAt; got.Unix() != want.Unix() {
		t.Errorf("next fire_at = %s, want %s", got, want)
	}
}

func TestCancelOnlyTouchesPending(t *testing.T) {
	sender := &fakeSender{}
	s, store := newTestScheduler(t, sender, nil)

	base := time.Now()
	task := &Task{Phone: "601", Payload: "bye", FireAt: base.Add(10 * time.Millisecond)}
	if err := store.Schedule(task); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return base.Add(time.Second) }
	s.Sweep(context.Background())

	if err := store.Cancel(task.ID); err != sql.ErrNoRows {
		t.Fatalf("cancel of sent task = %v, want sql.ErrNoRows", err)
	}
}

func TestNextOccurrenceSkipsMissedIntervals(t *testing.T) {
	from := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	got := nextOccurrence(from, RepeatDaily, now)
	want := time.Date(2026, 8, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("daily = %s, want %s", got, want)
	}

	got = nextOccurrence(from, RepeatWeekly, now)
	want = time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("weekly = %s, want %s", got, want)
	}

	got = nextOccurrence(from, RepeatMonthly, now)
	want = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("monthly = %s, want %s", got, want)
	}
}

func TestCheckoutReminderMatchesAdvanceNotice(t *testing.T) {
	sender := &fakeSender{}
	s, store := newTestScheduler(t, sender, nil)

	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	stays := []Stay{
		{Phone: "601", Unit: "A-3-2", CheckoutDate: "2026-08-26", AdvanceNotice: []int{1}},
		{Phone: "602", Unit: "B-1-1", CheckoutDate: "2026-08-28", AdvanceNotice: []int{1}}, // 3 days out
		{Phone: "603", Unit: "C-2-5", CheckoutDate: "2026-08-25", AdvanceNotice: []int{0}}, // today
	}
	for i := range stays {
		if err := store.UpsertStay(&stays[i]); err != nil {
			t.Fatal(err)
		}
	}

	s.CheckoutSweep(context.Background())

	if sender.count() != 2 {
		t.Fatalf("sent %d reminders, want 2: %v", sender.count(), sender.sent)
	}
	joined := strings.Join(sender.sent, "\n")
	if !strings.Contains(joined, "601|") || !strings.Contains(joined, "603|") {
		t.Errorf("wrong recipients: %v", sender.sent)
	}
	if !strings.Contains(joined, "A-3-2") {
		t.Errorf("reminder should name the unit: %v", sender.sent)
	}

	// Second sweep the same day sends nothing.
	s.CheckoutSweep(context.Background())
	if sender.count() != 2 {
		t.Fatalf("duplicate reminders sent: %v", sender.sent)
	}
}

func TestCheckoutReminderLanguage(t *testing.T) {
	sender := &fakeSender{}
	store := setupStore(t)
	s := New(Options{
		Store:   store,
		Sender:  sender,
		LangFor: func(phone string) string { return "ms" },
		Config: config.SchedulerConfig{
			Enabled:      true,
			CheckoutHour: 9,
			TickInterval: 30 * time.Second,
			MaxRetries:   3,
		},
	})
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := store.UpsertStay(&Stay{Phone: "601", Unit: "A-1", CheckoutDate: "2026-08-26", AdvanceNotice: []int{1}}); err != nil {
		t.Fatal(err)
	}
	s.CheckoutSweep(context.Background())

	if sender.count() != 1 || !strings.Contains(sender.sent[0], "daftar keluar") {
		t.Fatalf("want Malay reminder, got %v", sender.sent)
	}
}
