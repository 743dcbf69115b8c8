package conversation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists conversations, messages, predictions and tags.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle and applies the schema.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying handle for shared access (e.g. the scheduler).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// NormalizePhone strips everything but digits so "+60 12-345 6789" and
// "60123456789" key the same conversation.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GetOrCreate returns the conversation for phone, creating it on first
// contact. The second return value is true when the row was just created.
func (s *Store) GetOrCreate(phone, displayName string) (*Conversation, bool, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, false, fmt.Errorf("phone has no digits")
	}

	conv, err := s.Get(phone)
	if err == nil {
		if displayName != "" && conv.DisplayName == "" {
			_, _ = s.db.Exec(`UPDATE conversations SET display_name = ?, updated_at = datetime('now') WHERE phone = ?`, displayName, phone)
			conv.DisplayName = displayName
		}
		return conv, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	_, err = s.db.Exec(`INSERT INTO conversations (phone, display_name) VALUES (?, ?)`, phone, displayName)
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	conv, err = s.Get(phone)
	return conv, true, err
}

// Get returns the conversation for a normalized phone, or sql.ErrNoRows.
func (s *Store) Get(phone string) (*Conversation, error) {
	phone = NormalizePhone(phone)
	row := s.db.QueryRow(`SELECT phone, COALESCE(display_name,''), COALESCE(unit,''), COALESCE(language,''),
		COALESCE(tags,'[]'), favourite, pinned, archived, COALESCE(response_mode,'auto'),
		COALESCE(summary,''), summary_seq, unknown_count, repeat_count, COALESCE(last_intent,''),
		negative_streak, prompt_tokens, completion_tokens, total_tokens,
		last_sentiment_escalation_at, last_read_at, created_at, updated_at
		FROM conversations WHERE phone = ?`, phone)

	var c Conversation
	var tagsJSON string
	var escalatedAt, readAt sql.NullTime
	err := row.Scan(&c.Phone, &c.DisplayName, &c.Unit, &c.Language,
		&tagsJSON, &c.Favourite, &c.Pinned, &c.Archived, &c.ResponseMode,
		&c.Summary, &c.SummarySeq, &c.UnknownCount, &c.RepeatCount, &c.LastIntent,
		&c.NegativeStreak, &c.PromptTokens, &c.CompletionTokens, &c.TotalTokens,
		&escalatedAt, &readAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		c.Tags = nil
	}
	if escalatedAt.Valid {
		c.LastSentimentEscalationAt = &escalatedAt.Time
	}
	if readAt.Valid {
		c.LastReadAt = &readAt.Time
	}
	return &c, nil
}

// List returns conversations, pinned first, then most recently updated.
func (s *Store) List(includeArchived bool) ([]Conversation, error) {
	query := `SELECT phone FROM conversations`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY pinned DESC, updated_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phones = append(phones, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Conversation, 0, len(phones))
	for _, p := range phones {
		c, err := s.Get(p)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// AppendMessage stores one turn with the next per-phone sequence number.
func (s *Store) AppendMessage(msg *Message) (*Message, error) {
	msg.Phone = NormalizePhone(msg.Phone)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE phone = ?`, msg.Phone).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}
	msg.Seq = seq

	kbFiles, err := json.Marshal(msg.KBFiles)
	if err != nil {
		return nil, fmt.Errorf("marshal kb files: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO messages (phone, seq, role, content, intent, tier, lang,
		model, confidence, response_time_ms, kb_files, action,
		prompt_tokens, completion_tokens, total_tokens, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Phone, msg.Seq, msg.Role, msg.Content, msg.Intent, msg.Tier, msg.Lang,
		msg.Model, msg.Confidence, msg.ResponseTimeMs, string(kbFiles), msg.Action,
		msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens, msg.Summary, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	msg.ID, _ = res.LastInsertId()

	if _, err := tx.Exec(`UPDATE conversations SET updated_at = datetime('now'),
		prompt_tokens = prompt_tokens + ?, completion_tokens = completion_tokens + ?, total_tokens = total_tokens + ?
		WHERE phone = ?`,
		msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens, msg.Phone); err != nil {
		return nil, err
	}
	return msg, tx.Commit()
}

// History returns the prompt-ready context for a conversation: the stored
// summary (as a system message, when present) followed by every message
// after the summarized range, capped at limit most recent.
func (s *Store) History(phone string, limit int) ([]Message, error) {
	phone = NormalizePhone(phone)
	conv, err := s.Get(phone)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	msgs, err := s.messagesAfter(phone, conv.SummarySeq, limit)
	if err != nil {
		return nil, err
	}
	if conv.Summary == "" {
		return msgs, nil
	}

	out := make([]Message, 0, len(msgs)+1)
	out = append(out, Message{
		Phone:   phone,
		Role:    "system",
		Content: conv.Summary,
		Summary: true,
	})
	return append(out, msgs...), nil
}

func (s *Store) messagesAfter(phone string, afterSeq int64, limit int) ([]Message, error) {
	query := `SELECT id, phone, seq, role, content, COALESCE(intent,''), COALESCE(tier,''),
		COALESCE(lang,''), COALESCE(model,''), confidence, response_time_ms,
		COALESCE(kb_files,'[]'), COALESCE(action,''),
		prompt_tokens, completion_tokens, total_tokens, summary, created_at
		FROM messages WHERE phone = ? AND seq > ? AND summary = 0
		ORDER BY seq DESC`
	args := []any{phone, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var kbFiles string
		if err := rows.Scan(&m.ID, &m.Phone, &m.Seq, &m.Role, &m.Content, &m.Intent, &m.Tier, &m.Lang,
			&m.Model, &m.Confidence, &m.ResponseTimeMs, &kbFiles, &m.Action,
			&m.PromptTokens, &m.CompletionTokens, &m.TotalTokens, &m.Summary, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kbFiles), &m.KBFiles); err != nil {
			m.KBFiles = nil
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Scanned newest first for the LIMIT; flip back to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UnsummarizedCount reports how many turns sit outside the summary.
func (s *Store) UnsummarizedCount(phone string) (int, error) {
	phone = NormalizePhone(phone)
	var summarySeq int64
	if err := s.db.QueryRow(`SELECT summary_seq FROM conversations WHERE phone = ?`, phone).Scan(&summarySeq); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE phone = ? AND seq > ? AND summary = 0`, phone, summarySeq).Scan(&count)
	return count, err
}

// ApplySummary replaces the stored summary and advances the summarized
// range to uptoSeq. Older summaries fold into the new text.
func (s *Store) ApplySummary(phone, summaryText string, uptoSeq int64) error {
	phone = NormalizePhone(phone)
	_, err := s.db.Exec(`UPDATE conversations SET summary = ?, summary_seq = ?, updated_at = datetime('now') WHERE phone = ?`,
		summaryText, uptoSeq, phone)
	return err
}

// RecordIntent updates the repeat and unknown counters for one turn and
// returns the repeat count after the update. The repeat count grows only
// when the same intent arrives consecutively.
func (s *Store) RecordIntent(phone, intent string) (repeatCount int, err error) {
	phone = NormalizePhone(phone)
	conv, err := s.Get(phone)
	if err != nil {
		return 0, err
	}

	repeat := 0
	if intent != "" && intent == conv.LastIntent {
		repeat = conv.RepeatCount + 1
	}
	unknown := conv.UnknownCount
	if intent == "unknown" {
		unknown++
	} else {
		unknown = 0
	}

	_, err = s.db.Exec(`UPDATE conversations SET last_intent = ?, repeat_count = ?, unknown_count = ?, updated_at = datetime('now') WHERE phone = ?`,
		intent, repeat, unknown, phone)
	return repeat, err
}

// ResetRepeat clears the repeat counter, typically after an escalation.
func (s *Store) ResetRepeat(phone string) error {
	_, err := s.db.Exec(`UPDATE conversations SET repeat_count = 0, updated_at = datetime('now') WHERE phone = ?`, NormalizePhone(phone))
	return err
}

// RecordSentiment tracks the consecutive-negative streak and returns the
// streak after this turn. A non-negative turn resets it.
func (s *Store) RecordSentiment(phone string, negative bool) (int, error) {
	phone = NormalizePhone(phone)
	conv, err := s.Get(phone)
	if err != nil {
		return 0, err
	}
	streak := 0
	if negative {
		streak = conv.NegativeStreak + 1
	}
	_, err = s.db.Exec(`UPDATE conversations SET negative_streak = ?, updated_at = datetime('now') WHERE phone = ?`, streak, phone)
	return streak, err
}

// MarkSentimentEscalated records the escalation moment and resets the
// streak so one bad stretch only alerts staff once per cooldown.
func (s *Store) MarkSentimentEscalated(phone string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET negative_streak = 0, last_sentiment_escalation_at = ?, updated_at = datetime('now') WHERE phone = ?`,
		at.UTC(), NormalizePhone(phone))
	return err
}

// SetLanguage stores the durable language preference.
func (s *Store) SetLanguage(phone, lang string) error {
	_, err := s.db.Exec(`UPDATE conversations SET language = ?, updated_at = datetime('now') WHERE phone = ?`, lang, NormalizePhone(phone))
	return err
}

// SetUnit records the room or unit the guest is staying in.
func (s *Store) SetUnit(phone, unit string) error {
	_, err := s.db.Exec(`UPDATE conversations SET unit = ?, updated_at = datetime('now') WHERE phone = ?`, unit, NormalizePhone(phone))
	return err
}

// SetDisplayName overrides the guest display name.
func (s *Store) SetDisplayName(phone, name string) error {
	_, err := s.db.Exec(`UPDATE conversations SET display_name = ?, updated_at = datetime('now') WHERE phone = ?`, name, NormalizePhone(phone))
	return err
}

// SetResponseMode switches between auto, copilot and off.
func (s *Store) SetResponseMode(phone, mode string) error {
	switch mode {
	case ModeAuto, ModeCopilot, ModeOff:
	default:
		return fmt.Errorf("invalid response mode: %s", mode)
	}
	_, err := s.db.Exec(`UPDATE conversations SET response_mode = ?, updated_at = datetime('now') WHERE phone = ?`, mode, NormalizePhone(phone))
	return err
}

// SetFavourite toggles the favourite flag.
func (s *Store) SetFavourite(phone string, fav bool) error {
	_, err := s.db.Exec(`UPDATE conversations SET favourite = ?, updated_at = datetime('now') WHERE phone = ?`, fav, NormalizePhone(phone))
	return err
}

// SetPinned toggles the pinned flag.
func (s *Store) SetPinned(phone string, pinned bool) error {
	_, err := s.db.Exec(`UPDATE conversations SET pinned = ?, updated_at = datetime('now') WHERE phone = ?`, pinned, NormalizePhone(phone))
	return err
}

// Archive hides a conversation from the default list. Conversations are
// never deleted; the history stays queryable.
func (s *Store) Archive(phone string, archived bool) error {
	_, err := s.db.Exec(`UPDATE conversations SET archived = ?, updated_at = datetime('now') WHERE phone = ?`, archived, NormalizePhone(phone))
	return err
}

// MarkRead stamps the last-read watermark.
func (s *Store) MarkRead(phone string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_read_at = ? WHERE phone = ?`, at.UTC(), NormalizePhone(phone))
	return err
}

// AddTag attaches a tag to a conversation and registers it globally.
// Tag comparison is case-insensitive; the first-seen spelling wins.
func (s *Store) AddTag(phone, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("empty tag")
	}
	conv, err := s.Get(phone)
	if err != nil {
		return err
	}
	for _, t := range conv.Tags {
		if strings.EqualFold(t, tag) {
			return nil
		}
	}
	_, _ = s.db.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag)

	tags := append(conv.Tags, tag)
	return s.writeTags(conv.Phone, tags)
}

// RemoveTag detaches a tag from a conversation (case-insensitive).
func (s *Store) RemoveTag(phone, tag string) error {
	conv, err := s.Get(phone)
	if err != nil {
		return err
	}
	tags := conv.Tags[:0]
	for _, t := range conv.Tags {
		if !strings.EqualFold(t, tag) {
			tags = append(tags, t)
		}
	}
	return s.writeTags(conv.Phone, tags)
}

// ListTags returns every registered tag.
func (s *Store) ListTags() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) writeTags(phone string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE conversations SET tags = ?, updated_at = datetime('now') WHERE phone = ?`, string(data), phone)
	return err
}
