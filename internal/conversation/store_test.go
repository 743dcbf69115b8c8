package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rainbow-desk/rainbow/internal/provider"
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

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+60 12-345 6789", "60123456789"},
		{"60123456789", "60123456789"},
		{"(601) 234 5678", "6012345678"},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetOrCreateKeysByDigits(t *testing.T) {
	s := setupStore(t)

	_, created, err := s.GetOrCreate("+60 12-345 6789", "John")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected first contact to create the conversation")
	}

	conv, created, err := s.GetOrCreate("60123456789", "")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("formatted and bare numbers should key the same conversation")
	}
	if conv.DisplayName != "John" {
		t.Errorf("display name = %q, want John", conv.DisplayName)
	}
}

func TestAppendMessageSequencing(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		m, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if m.Seq != int64(i+1) {
			t.Errorf("message %d seq = %d, want %d", i, m.Seq, i+1)
		}
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("history has %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "m0" || msgs[2].Content != "m2" {
		t.Errorf("history not chronological: %v", msgs)
	}
}

func TestHistoryIncludesSummary(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ApplySummary("601111", "Guest John asked about unit A-3.", 3); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("history has %d entries, want summary + 2 tail messages", len(msgs))
	}
	if !msgs[0].Summary || msgs[0].Role != "system" {
		t.Errorf("first entry should be the system summary marker, got %+v", msgs[0])
	}
	if msgs[1].Content != "m3" {
		t.Errorf("tail starts at %q, want m3", msgs[1].Content)
	}
}

func TestRecordIntentRepeatCounter(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.RecordIntent("601111", "wifi"); n != 0 {
		t.Errorf("first wifi repeat = %d, want 0", n)
	}
	if n, _ := s.RecordIntent("601111", "wifi"); n != 1 {
		t.Errorf("second wifi repeat = %d, want 1", n)
	}
	if n, _ := s.RecordIntent("601111", "pricing"); n != 0 {
		t.Errorf("intent change repeat = %d, want 0", n)
	}
	if n, _ := s.RecordIntent("601111", "pricing"); n != 1 {
		t.Errorf("repeat after change = %d, want 1", n)
	}
}

func TestRecordSentimentStreak(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.RecordSentiment("601111", true); n != 1 {
		t.Errorf("streak = %d, want 1", n)
	}
	if n, _ := s.RecordSentiment("601111", true); n != 2 {
		t.Errorf("streak = %d, want 2", n)
	}
	if n, _ := s.RecordSentiment("601111", false); n != 0 {
		t.Errorf("neutral turn streak = %d, want 0", n)
	}
}

func TestTagsCaseInsensitive(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}

	if err := s.AddTag("601111", "VIP"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTag("601111", "vip"); err != nil {
		t.Fatal(err)
	}
	conv, err := s.Get("601111")
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Tags) != 1 || conv.Tags[0] != "VIP" {
		t.Errorf("tags = %v, want [VIP]", conv.Tags)
	}

	if err := s.RemoveTag("601111", "Vip"); err != nil {
		t.Fatal(err)
	}
	conv, _ = s.Get("601111")
	if len(conv.Tags) != 0 {
		t.Errorf("tags after remove = %v, want empty", conv.Tags)
	}
}

func TestAccuracyNullUntilReviewed(t *testing.T) {
	s := setupStore(t)

	p, err := s.LogPrediction(&Prediction{Phone: "601111", MessageText: "wifi", Intent: "wifi", Tier: "T2"})
	if err != nil {
		t.Fatal(err)
	}

	report, err := s.Accuracy()
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 {
		t.Errorf("total = %d, want 1", report.Total)
	}
	if report.AccuracyRate != nil {
		t.Errorf("accuracy rate = %v, want nil before any review", *report.AccuracyRate)
	}

	if err := s.RecordFeedback(p.ID, true, ""); err != nil {
		t.Fatal(err)
	}
	report, _ = s.Accuracy()
	if report.AccuracyRate == nil || *report.AccuracyRate != 1.0 {
		t.Errorf("accuracy rate = %v, want 1.0", report.AccuracyRate)
	}
	if b := report.ByTier["T2"]; b.Correct != 1 {
		t.Errorf("T2 bucket = %+v, want 1 correct", b)
	}
}

func TestRecordFeedbackIncorrectDefaultsUnknown(t *testing.T) {
	s := setupStore(t)
	p, err := s.LogPrediction(&Prediction{Phone: "601111", MessageText: "hmm", Intent: "pricing", Tier: "T4", Model: "gpt"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordFeedback(p.ID, false, ""); err != nil {
		t.Fatal(err)
	}

	var actual string
	if err := s.db.QueryRow(`SELECT actual_intent FROM intent_predictions WHERE id = ?`, p.ID).Scan(&actual); err != nil {
		t.Fatal(err)
	}
	if actual != "unknown" {
		t.Errorf("actual intent = %q, want unknown", actual)
	}

	if err := s.RecordFeedback(999, true, ""); err != sql.ErrNoRows {
		t.Errorf("feedback on missing row err = %v, want sql.ErrNoRows", err)
	}
}

func TestAppendMessageKeepsReplyProvenance(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: "wifi password?"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(&Message{
		Phone: "601111", Role: "assistant", Content: "Network RainbowGuest.",
		Intent: "wifi", Tier: "T2", Model: "gpt-4o-mini", Confidence: 0.92,
		ResponseTimeMs: 840, KBFiles: []string{"AGENTS.md", "wifi.txt"}, Action: "llm_reply",
		PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(&Message{
		Phone: "601111", Role: "assistant", Content: "Anything else?",
		PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50,
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	reply := msgs[1]
	if reply.Model != "gpt-4o-mini" || reply.Action != "llm_reply" {
		t.Errorf("reply provenance = %q/%q, want gpt-4o-mini/llm_reply", reply.Model, reply.Action)
	}
	if reply.Confidence != 0.92 || reply.ResponseTimeMs != 840 {
		t.Errorf("confidence/timing = %v/%v", reply.Confidence, reply.ResponseTimeMs)
	}
	if len(reply.KBFiles) != 2 || reply.KBFiles[1] != "wifi.txt" {
		t.Errorf("kb files = %v, want [AGENTS.md wifi.txt]", reply.KBFiles)
	}
	if reply.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", reply.TotalTokens)
	}

	conv, err := s.Get("601111")
	if err != nil {
		t.Fatal(err)
	}
	if conv.PromptTokens != 160 || conv.CompletionTokens != 40 || conv.TotalTokens != 200 {
		t.Errorf("conversation usage = %d/%d/%d, want 160/40/200",
			conv.PromptTokens, conv.CompletionTokens, conv.TotalTokens)
	}
}

func TestSummarizerFoldsOldTurns(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < SummarizeThreshold; i++ {
		if _, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	var gotTranscript string
	chat := func(_ context.Context, task provider.Task, req *provider.ChatRequest) (*provider.Result, error) {
		if task != provider.TaskSummarization {
			t.Errorf("task = %s, want summarization", task)
		}
		gotTranscript = req.Messages[len(req.Messages)-1].Content
		return &provider.Result{Content: "Guest John discussed turns."}, nil
	}

	sum := NewSummarizer(SummarizerOptions{Store: s, Chat: chat})
	if err := sum.MaybeSummarize(context.Background(), "601111"); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(gotTranscript, "turn 0") {
		t.Error("transcript missing oldest turn")
	}
	if strings.Contains(gotTranscript, fmt.Sprintf("turn %d", SummarizeThreshold-1)) {
		t.Error("transcript should not include the kept tail")
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != SummarizeKeepTail+1 {
		t.Fatalf("history has %d entries, want summary + %d tail", len(msgs), SummarizeKeepTail)
	}
	if msgs[0].Content != "Guest John discussed turns." {
		t.Errorf("summary content = %q", msgs[0].Content)
	}

	// Below threshold again; a second pass is a no-op.
	if err := sum.MaybeSummarize(context.Background(), "601111"); err != nil {
		t.Fatal(err)
	}
}

func TestSummarizerHonorsConfiguredLimits(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	chat := func(_ context.Context, _ provider.Task, _ *provider.ChatRequest) (*provider.Result, error) {
		return &provider.Result{Content: "Short summary."}, nil
	}
	sum := NewSummarizer(SummarizerOptions{Store: s, Chat: chat, Threshold: 4, KeepTail: 2})
	if err := sum.MaybeSummarize(context.Background(), "601111"); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("history has %d entries, want summary + 2 tail", len(msgs))
	}
	if !msgs[0].Summary || msgs[1].Content != "turn 2" {
		t.Errorf("fold did not honor the configured limits: %+v", msgs)
	}
}

func TestSummarizerFailureKeepsHistory(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.GetOrCreate("601111", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < SummarizeThreshold; i++ {
		if _, err := s.AppendMessage(&Message{Phone: "601111", Role: "user", Content: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	chat := func(_ context.Context, _ provider.Task, _ *provider.ChatRequest) (*provider.Result, error) {
		return nil, fmt.Errorf("provider down")
	}
	sum := NewSummarizer(SummarizerOptions{Store: s, Chat: chat})
	if err := sum.MaybeSummarize(context.Background(), "601111"); err == nil {
		t.Fatal("expected error")
	}

	msgs, err := s.History("601111", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != SummarizeThreshold {
		t.Errorf("history shrank to %d after failed summarization", len(msgs))
	}
}
