// Package scheduler delivers messages at future instants: one-off and
// repeating scheduled sends, plus the daily checkout-reminder job.
package scheduler

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Repeat rules.
const (
	RepeatNone    = "none"
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id         TEXT PRIMARY KEY,
	phone      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	fire_at    TIMESTAMP NOT NULL,
	repeat     TEXT NOT NULL DEFAULT 'none',
	creator    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(status, fire_at);

CREATE TABLE IF NOT EXISTS stays (
	phone          TEXT PRIMARY KEY,
	guest_name     TEXT NOT NULL DEFAULT '',
	unit           TEXT NOT NULL DEFAULT '',
	checkout_date  TEXT NOT NULL,
	advance_notice TEXT NOT NULL DEFAULT '',
	last_notified  TEXT NOT NULL DEFAULT ''
);
`

// Task is one scheduled send. FireAt is the earliest instant it may
// dispatch; it is never dispatched before that.
type Task struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Payload   string    `json:"payload"`
	FireAt    time.Time `json:"fireAt"`
	Repeat    string    `json:"repeat"`
	Creator   string    `json:"creator,omitempty"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stay tracks a checked-in guest for checkout reminders. CheckoutDate
// and LastNotified are local dates in 2006-01-02 form.
type Stay struct {
	Phone         string
	GuestName     string
	Unit          string
	CheckoutDate  string
	AdvanceNotice []int
	LastNotified  string
}

// Store persists scheduled tasks and stays in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open scheduler db: %w", err)
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an existing connection, applying the schema.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply scheduler schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func validRepeat(r string) bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

// Schedule inserts a pending task. FireAt must be in the future.
func (s *Store) Schedule(t *Task) error {
	if t.Phone == "" || t.Payload == "" {
		return fmt.Errorf("schedule: phone and payload are required")
	}
	if !t.FireAt.After(s.now()) {
		return fmt.Errorf("schedule: fire_at %s is not in the future", t.FireAt.Format(time.RFC3339))
	}
	if t.Repeat == "" {
		t.Repeat = RepeatNone
	}
	if !validRepeat(t.Repeat) {
		return fmt.Errorf("schedule: unknown repeat rule %q", t.Repeat)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = StatusPending
	t.CreatedAt = s.now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO scheduled_tasks (id, phone, payload, fire_at, repeat, creator, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Phone, t.Payload, t.FireAt.UTC(), t.Repeat, t.Creator, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("schedule task: %w", err)
	}
	return nil
}

// Cancel marks a pending task cancelled. Sent and failed tasks are
// immutable history.
func (s *Store) Cancel(id string) error {
	res, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE id = ? AND status = ?`,
		StatusCancelled, id, StatusPending)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Due returns pending tasks whose fire_at has passed, oldest fire_at
// first, ties broken by creation order.
func (s *Store) Due(now time.Time) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT id, phone, payload, fire_at, repeat, creator, status, attempts, last_error, created_at
		FROM scheduled_tasks
		WHERE status = ? AND fire_at <= ?
		ORDER BY fire_at ASC, created_at ASC, id ASC`,
		StatusPending, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// List returns tasks filtered by status, newest first. An empty status
// returns everything.
func (s *Store) List(status string) ([]Task, error) {
	query := `
		SELECT id, phone, payload, fire_at, repeat, creator, status, attempts, last_error, created_at
		FROM scheduled_tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Phone, &t.Payload, &t.FireAt, &t.Repeat,
			&t.Creator, &t.Status, &t.Attempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkSent finalizes a successfully dispatched task.
func (s *Store) MarkSent(id string) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE id = ?`, StatusSent, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// Retry pushes a failed dispatch into the future and records the error.
// The task stays pending so the sweep picks it up again.
func (s *Store) Retry(id string, fireAt time.Time, attempts int, lastErr string) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_tasks SET fire_at = ?, attempts = ?, last_error = ? WHERE id = ?`,
		fireAt.UTC(), attempts, lastErr, id)
	if err != nil {
		return fmt.Errorf("retry task: %w", err)
	}
	return nil
}

// MarkFailed gives up on a task after exhausting retries.
func (s *Store) MarkFailed(id string, attempts int, lastErr string) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
		StatusFailed, attempts, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// UpsertStay records or updates a checked-in guest.
func (s *Store) UpsertStay(st *Stay) error {
	if st.Phone == "" || st.CheckoutDate == "" {
		return fmt.Errorf("upsert stay: phone and checkout date are required")
	}
	if _, err := time.Parse("2006-01-02", st.CheckoutDate); err != nil {
		return fmt.Errorf("upsert stay: bad checkout date %q: %w", st.CheckoutDate, err)
	}
	_, err := s.db.Exec(`
		INSERT INTO stays (phone, guest_name, unit, checkout_date, advance_notice, last_notified)
		VALUES (?, ?, ?, ?, ?, '')
		ON CONFLICT(phone) DO UPDATE SET
			guest_name = excluded.guest_name,
			unit = excluded.unit,
			checkout_date = excluded.checkout_date,
			advance_notice = excluded.advance_notice`,
		st.Phone, st.GuestName, st.Unit, st.CheckoutDate, joinNotice(st.AdvanceNotice))
	if err != nil {
		return fmt.Errorf("upsert stay: %w", err)
	}
	return nil
}

// RemoveStay drops a guest after checkout.
func (s *Store) RemoveStay(phone string) error {
	_, err := s.db.Exec(`DELETE FROM stays WHERE phone = ?`, phone)
	if err != nil {
		return fmt.Errorf("remove stay: %w", err)
	}
	return nil
}

// Stays returns every tracked stay.
func (s *Store) Stays() ([]Stay, error) {
	rows, err := s.db.Query(`
		SELECT phone, guest_name, unit, checkout_date, advance_notice, last_notified FROM stays`)
	if err != nil {
		return nil, fmt.Errorf("query stays: %w", err)
	}
	defer rows.Close()
	var out []Stay
	for rows.Next() {
		var st Stay
		var notice string
		if err := rows.Scan(&st.Phone, &st.GuestName, &st.Unit, &st.CheckoutDate, &notice, &st.LastNotified); err != nil {
			return nil, fmt.Errorf("scan stay: %w", err)
		}
		st.AdvanceNotice = parseNotice(notice)
		out = append(out, st)
	}
	return out, rows.Err()
}

// MarkNotified records that a checkout reminder went out on the given
// local date, preventing a second send the same day.
func (s *Store) MarkNotified(phone, day string) error {
	_, err := s.db.Exec(`UPDATE stays SET last_notified = ? WHERE phone = ?`, day, phone)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func joinNotice(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func parseNotice(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
