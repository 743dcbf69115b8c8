package gateway

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rainbow-desk/rainbow/internal/config"
	"github.com/rainbow-desk/rainbow/internal/conversation"
	"github.com/rainbow-desk/rainbow/internal/router"
)

type fakeEngine struct {
	lastPhone   string
	lastMessage string
	resp        *router.Response
}

func (f *fakeEngine) HandleMessage(ctx context.Context, phone, content, pushName string) (*router.Response, error) {
	f.lastPhone = phone
	f.lastMessage = content
	if f.resp != nil {
		return f.resp, nil
	}
	return &router.Response{
		Reply:            "Hello!",
		Intent:           "greeting",
		Confidence:       1,
		Tier:             "T2",
		DetectedLanguage: "en",
		Action:           "static_reply",
	}, nil
}

func setupServer(t *testing.T, token string) (*Server, *fakeEngine, *conversation.Store) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := conversation.NewStoreWithDB(db)
	if err != nil {
		t.Fatal(err)
	}
	engine := &fakeEngine{}
	srv := NewServer(engine, store, config.GatewayConfig{Enabled: true, Addr: ":0", Token: token}, nil)
	return srv, engine, store
}

func postJSON(t *testing.T, handler http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPreviewChatReturnsEngineResponse(t *testing.T) {
	srv, engine, _ := setupServer(t, "")
	rec := postJSON(t, srv.Handler(), "/preview/chat", "", map[string]any{
		"phone":   "+60 12-345 6789",
		"message": "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp router.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "Hello!" || resp.Intent != "greeting" {
		t.Errorf("unexpected response %+v", resp)
	}
	if engine.lastMessage != "hello" {
		t.Errorf("engine got message %q", engine.lastMessage)
	}
}

func TestPreviewChatValidatesInput(t *testing.T) {
	srv, _, _ := setupServer(t, "")
	rec := postJSON(t, srv.Handler(), "/preview/chat", "", map[string]any{"phone": "abc", "message": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad phone: status = %d, want 400", rec.Code)
	}
	rec = postJSON(t, srv.Handler(), "/preview/chat", "", map[string]any{"phone": "60123456789"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing message: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/preview/chat", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", rec.Code)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	srv, _, _ := setupServer(t, "secret")
	rec := postJSON(t, srv.Handler(), "/preview/chat", "", map[string]any{"phone": "60123456789", "message": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	rec = postJSON(t, srv.Handler(), "/preview/chat", "secret", map[string]any{"phone": "60123456789", "message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: status = %d, want 200", rec.Code)
	}
}

func TestHistorySeedsFreshConversationOnly(t *testing.T) {
	srv, _, store := setupServer(t, "")
	body := map[string]any{
		"phone":   "60123456789",
		"message": "and breakfast?",
		"history": []map[string]string{
			{"role": "user", "content": "what time is check-in?"},
			{"role": "assistant", "content": "Check-in is from 3pm."},
		},
	}
	rec := postJSON(t, srv.Handler(), "/preview/chat", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	history, err := store.History("60123456789", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want the 2 seeded messages", len(history))
	}

	// A second call must not seed again.
	rec = postJSON(t, srv.Handler(), "/preview/chat", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	history, err = store.History("60123456789", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length after replay = %d, want still 2", len(history))
	}
}

func TestAccuracyEndpoint(t *testing.T) {
	srv, _, store := setupServer(t, "")
	if _, _, err := store.GetOrCreate("60123456789", ""); err != nil {
		t.Fatal(err)
	}
	p, err := store.LogPrediction(&conversation.Prediction{
		Phone: "60123456789", MessageText: "wifi password", Intent: "wifi", Confidence: 1, Tier: "T2",
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/intent/accuracy", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report conversation.AccuracyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 || report.AccuracyRate != nil {
		t.Errorf("unreviewed report = %+v, want total 1 and null rate", report)
	}

	// Thumbs up on the latest prediction, then the rate appears.
	rec = postJSON(t, srv.Handler(), "/intent/feedback", "", map[string]any{"verdict": "up"})
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback status = %d, body %s", rec.Code, rec.Body)
	}
	var fb map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &fb); err != nil {
		t.Fatal(err)
	}
	if int64(fb["predictionId"].(float64)) != p.ID {
		t.Errorf("feedback landed on prediction %v, want %d", fb["predictionId"], p.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/intent/accuracy", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.AccuracyRate == nil || *report.AccuracyRate != 1 {
		t.Errorf("reviewed rate = %v, want 1.0", report.AccuracyRate)
	}
}

func TestFeedbackValidation(t *testing.T) {
	srv, _, _ := setupServer(t, "")
	rec := postJSON(t, srv.Handler(), "/intent/feedback", "", map[string]any{"verdict": "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad verdict: status = %d, want 400", rec.Code)
	}
	rec = postJSON(t, srv.Handler(), "/intent/feedback", "", map[string]any{"verdict": "down"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("no predictions: status = %d, want 404", rec.Code)
	}
}
