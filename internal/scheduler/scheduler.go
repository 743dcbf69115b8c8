package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/workflow"
)

// Sender delivers one outbound text to a guest.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
}

// AdminNotifier receives alerts when a task exhausts its retries.
type AdminNotifier interface {
	StaffAlert(ctx context.Context, subject, body string)
}

const (
	minTick      = 10 * time.Second
	maxTick      = 60 * time.Second
	retryBase    = 30 * time.Second
	retryCeiling = 10 * time.Minute
)

// Scheduler sweeps the task queue on a single ticker and runs the daily
// checkout-reminder job. Only the sweep goroutine mutates task state;
// everything else goes through the store.
type Scheduler struct {
	store     *Store
	sender    Sender
	notifier  AdminNotifier
	workflows *workflow.Executor
	langFor   func(phone string) string
	cfg       config.SchedulerConfig
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

type Options struct {
	Store     *Store
	Sender    Sender
	Notifier  AdminNotifier
	Workflows *workflow.Executor        // optional, for idle session expiry
	LangFor   func(phone string) string // optional, reply language lookup
	Config    config.SchedulerConfig
	Logger    *slog.Logger
}

func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	langFor := opts.LangFor
	if langFor == nil {
		langFor = func(string) string { return "en" }
	}
	return &Scheduler{
		store:     opts.Store,
		sender:    opts.Sender,
		notifier:  opts.Notifier,
		workflows: opts.Workflows,
		langFor:   langFor,
		cfg:       opts.Config,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

func (s *Scheduler) tickInterval() time.Duration {
	t := s.cfg.TickInterval
	if t < minTick {
		t = minTick
	}
	if t > maxTick {
		t = maxTick
	}
	return t
}

func (s *Scheduler) checkoutSpec() string {
	if s.cfg.CheckoutSpec != "" {
		return s.cfg.CheckoutSpec
	}
	return fmt.Sprintf("0 %d * * *", s.cfg.CheckoutHour)
}

// Run sweeps until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.checkoutSpec(), func() { s.CheckoutSweep(ctx) }); err != nil {
		return fmt.Errorf("checkout schedule %q: %w", s.checkoutSpec(), err)
	}
	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	s.logger.Info("scheduler started", "tick", s.tickInterval(), "checkout", s.checkoutSpec())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep dispatches every due task and expires idle workflow sessions.
// One pass is bounded: it only sees tasks already due when it starts.
func (s *Scheduler) Sweep(ctx context.Context) {
	if s.workflows != nil {
		for phone, msg := range s.workflows.ExpireIdle() {
			if err := s.sender.SendText(ctx, phone, msg); err != nil {
				s.logger.Warn("idle workflow notice failed", "phone", phone, "error", err)
			}
		}
	}

	now := s.now()
	due, err := s.store.Due(now)
	if err != nil {
		s.logger.Error("due query failed", "error", err)
		return
	}
	for i := range due {
		s.dispatch(ctx, &due[i], now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, t *Task, now time.Time) {
	err := s.sender.SendText(ctx, t.Phone, t.Payload)
	if err == nil {
		if err := s.store.MarkSent(t.ID); err != nil {
			s.logger.Error("mark sent failed", "task", t.ID, "error", err)
		}
		s.logger.Info("scheduled message sent", "task", t.ID, "phone", t.Phone, "repeat", t.Repeat)
		s.spawnNext(t, now)
		return
	}

	attempts := t.Attempts + 1
	if attempts >= s.cfg.MaxRetries {
		s.logger.Error("scheduled message failed permanently",
			"task", t.ID, "phone", t.Phone, "attempts", attempts, "error", err)
		if e := s.store.MarkFailed(t.ID, attempts, err.Error()); e != nil {
			s.logger.Error("mark failed failed", "task", t.ID, "error", e)
		}
		if s.notifier != nil {
			s.notifier.StaffAlert(ctx,
				fmt.Sprintf("Scheduled message to %s failed", t.Phone),
				fmt.Sprintf("Gave up after %d attempts: %v\nPayload: %s", attempts, err, t.Payload))
		}
		return
	}

	delay := retryDelay(attempts)
	s.logger.Warn("scheduled message failed, retrying",
		"task", t.ID, "phone", t.Phone, "attempt", attempts, "retry_in", delay, "error", err)
	if e := s.store.Retry(t.ID, now.Add(delay), attempts, err.Error()); e != nil {
		s.logger.Error("retry update failed", "task", t.ID, "error", e)
	}
}

// spawnNext creates the following occurrence of a repeat task. It runs
// on successful dispatch, not on creation, so a late send never drags
// the schedule with it: the next fire time stays anchored to the
// original fire_at.
func (s *Scheduler) spawnNext(t *Task, now time.Time) {
	if t.Repeat == RepeatNone || t.Repeat == "" {
		return
	}
	next := nextOccurrence(t.FireAt, t.Repeat, now)
	child := &Task{
		Phone:   t.Phone,
		Payload: t.Payload,
		FireAt:  next,
		Repeat:  t.Repeat,
		Creator: t.Creator,
	}
	if err := s.store.Schedule(child); err != nil {
		s.logger.Error("spawn next occurrence failed", "task", t.ID, "error", err)
		return
	}
	s.logger.Info("next occurrence scheduled", "task", child.ID, "fire_at", next)
}

func nextOccurrence(from time.Time, repeat string, now time.Time) time.Time {
	next := from
	for !next.After(now) {
		switch repeat {
		case RepeatDaily:
			next = next.AddDate(0, 0, 1)
		case RepeatWeekly:
			next = next.AddDate(0, 0, 7)
		case RepeatMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			return now.Add(24 * time.Hour)
		}
	}
	return next
}

func retryDelay(attempt int) time.Duration {
	d := retryBase << (attempt - 1)
	if d > retryCeiling || d <= 0 {
		d = retryCeiling
	}
	return d
}

// CheckoutSweep sends reminders to guests whose checkout is N days out
// for an N in their advance-notice set, at most once per day each.
func (s *Scheduler) CheckoutSweep(ctx context.Context) {
	stays, err := s.store.Stays()
	if err != nil {
		s.logger.Error("stays query failed", "error", err)
		return
	}

	now := s.now()
	today := now.Format("2006-01-02")
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, st := range stays {
		if st.LastNotified == today {
			continue
		}
		checkout, err := time.ParseInLocation("2006-01-02", st.CheckoutDate, now.Location())
		if err != nil {
			s.logger.Warn("bad checkout date", "phone", st.Phone, "date", st.CheckoutDate)
			continue
		}
		daysLeft := int(checkout.Sub(midnight).Hours() / 24)
		if daysLeft < 0 {
			continue
		}
		notice := st.AdvanceNotice
		if len(notice) == 0 {
			notice = s.cfg.AdvanceNotice
		}
		if !containsInt(notice, daysLeft) {
			continue
		}

		msg := checkoutMessage(s.langFor(st.Phone), st.Unit, st.CheckoutDate, s.cfg.CheckoutHour, daysLeft)
		if err := s.sender.SendText(ctx, st.Phone, msg); err != nil {
			s.logger.Warn("checkout reminder failed", "phone", st.Phone, "error", err)
			continue
		}
		if err := s.store.MarkNotified(st.Phone, today); err != nil {
			s.logger.Error("mark notified failed", "phone", st.Phone, "error", err)
		}
		s.logger.Info("checkout reminder sent", "phone", st.Phone, "days_left", daysLeft)
	}
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func checkoutMessage(lang, unit, date string, hour, daysLeft int) string {
	when := fmt.Sprintf("%s at %02d:00", date, hour)
	switch lang {
	case "ms":
		if daysLeft == 0 {
			return fmt.Sprintf("Peringatan: daftar keluar untuk unit %s adalah hari ini sebelum %02d:00. Perlukan simpanan bagasi atau lanjutan? Balas di sini.", unit, hour)
		}
		return fmt.Sprintf("Peringatan: daftar keluar untuk unit %s adalah pada %s. Perlukan simpanan bagasi atau lanjutan? Balas di sini.", unit, when)
	case "zh":
		if daysLeft == 0 {
			return fmt.Sprintf("提醒：%s 房间今天 %02d:00 前退房。需要寄存行李或续住请回复这里。", unit, hour)
		}
		return fmt.Sprintf("提醒：%s 房间将于 %s 退房。需要寄存行李或续住请回复这里。", unit, when)
	default:
		if daysLeft == 0 {
			return fmt.Sprintf("Reminder: checkout for unit %s is today before %02d:00. Reply here if you need luggage storage or want to extend.", unit, hour)
		}
		return fmt.Sprintf("Reminder: checkout for unit %s is on %s. Reply here if you need luggage storage or want to extend.", unit, when)
	}
}
