package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeKB(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRetrieveRoutesByIntent(t *testing.T) {
	dir := writeKB(t, map[string]string{
		EntryFile:  "You are Rainbow, the hostel assistant.",
		"wifi.txt": "Network: RainbowGuest, password sunshine123.",
		"pricing.txt": "Dorm bed RM45 per night.",
	})
	r := NewRetriever(RetrieverOptions{Dir: dir})
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}

	ctx := r.Retrieve("wifi", "what is the password")
	if !ctx.Healthy {
		t.Fatal("KB should be healthy")
	}
	if !containsFile(ctx.Files, "wifi.txt") {
		t.Errorf("files = %v, want wifi.txt", ctx.Files)
	}
	if containsFile(ctx.Files, "pricing.txt") {
		t.Errorf("pricing.txt should not be routed for wifi: %v", ctx.Files)
	}
	if ctx.Files[0] != EntryFile {
		t.Errorf("entry file should lead the context, got %v", ctx.Files)
	}
}

func TestRetrieveKeywordFallback(t *testing.T) {
	dir := writeKB(t, map[string]string{
		EntryFile:     "identity",
		"luggage.txt": "Bags can be stored behind the desk.",
	})
	r := NewRetriever(RetrieverOptions{Dir: dir, Routes: map[string][]string{}})
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}

	ctx := r.Retrieve("unknown", "where do I leave my luggage?")
	if !containsFile(ctx.Files, "luggage.txt") {
		t.Errorf("keyword match missed: %v", ctx.Files)
	}
}

func TestRetrieveIncludesDailyLogs(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	dir := writeKB(t, map[string]string{
		EntryFile:            "identity",
		"memory.txt":         "Unit A-3 aircond fixed last week.",
		"log-2026-08-25.txt": "Today: pool closed for cleaning.",
		"log-2026-08-24.txt": "Yesterday: new linen delivered.",
		"log-2026-08-20.txt": "Old log.",
	})
	r := NewRetriever(RetrieverOptions{Dir: dir})
	r.now = func() time.Time { return now }
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}

	ctx := r.Retrieve("greeting", "hi")
	for _, want := range []string{"memory.txt", "log-2026-08-25.txt", "log-2026-08-24.txt"} {
		if !containsFile(ctx.Files, want) {
			t.Errorf("always-on segment %s missing: %v", want, ctx.Files)
		}
	}
	if containsFile(ctx.Files, "log-2026-08-20.txt") {
		t.Errorf("stale log included: %v", ctx.Files)
	}
}

func TestHealthTripsAfterThreeFailuresAndThrottlesAlerts(t *testing.T) {
	var alerts []string
	r := NewRetriever(RetrieverOptions{
		Dir:   filepath.Join(t.TempDir(), "missing"),
		Alert: func(msg string) { alerts = append(alerts, msg) },
	})
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if err := r.Load(); err == nil {
			t.Fatal("expected load failure")
		}
	}
	if !r.Healthy() {
		t.Fatal("two failures should not trip health")
	}
	if len(alerts) != 0 {
		t.Fatalf("alerted too early: %v", alerts)
	}

	if err := r.Load(); err == nil {
		t.Fatal("expected load failure")
	}
	if r.Healthy() {
		t.Fatal("third failure should trip health")
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	// More failures within the hour stay silent.
	base = base.Add(30 * time.Minute)
	_ = r.Load()
	if len(alerts) != 1 {
		t.Fatalf("alert not throttled: %d", len(alerts))
	}

	base = base.Add(31 * time.Minute)
	_ = r.Load()
	if len(alerts) != 2 {
		t.Fatalf("alert should fire again after an hour: %d", len(alerts))
	}

	ctx := r.Retrieve("wifi", "password?")
	if ctx.Healthy || len(ctx.Segments) != 0 {
		t.Error("unhealthy KB must return an empty, unhealthy context")
	}
}

func TestFailureThresholdAndThrottleConfigurable(t *testing.T) {
	var alerts []string
	r := NewRetriever(RetrieverOptions{
		Dir:              filepath.Join(t.TempDir(), "missing"),
		Alert:            func(msg string) { alerts = append(alerts, msg) },
		FailureThreshold: 1,
		AlertThrottle:    time.Minute,
	})
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	if err := r.Load(); err == nil {
		t.Fatal("expected load failure")
	}
	if r.Healthy() {
		t.Fatal("one failure should trip a threshold of 1")
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	base = base.Add(30 * time.Second)
	_ = r.Load()
	if len(alerts) != 1 {
		t.Fatalf("alert not throttled within the window: %d", len(alerts))
	}

	base = base.Add(31 * time.Second)
	_ = r.Load()
	if len(alerts) != 2 {
		t.Fatalf("alert should fire again after the throttle window: %d", len(alerts))
	}
}

func TestRecoveryRestoresHealth(t *testing.T) {
	dir := t.TempDir()
	r := NewRetriever(RetrieverOptions{Dir: dir})
	for i := 0; i < 3; i++ {
		_ = r.Load()
	}
	if r.Healthy() {
		t.Fatal("should be unhealthy")
	}

	if err := os.WriteFile(filepath.Join(dir, EntryFile), []byte("identity"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	if !r.Healthy() {
		t.Error("successful load should restore health")
	}
}

func TestStaffPhonesReplyPerLanguage(t *testing.T) {
	for _, lang := range []string{"en", "ms", "zh"} {
		if !strings.Contains(StaffPhonesReply(lang), "+60 12-390 0000") {
			t.Errorf("staff reply for %s missing the front desk number", lang)
		}
	}
}

func containsFile(files []string, name string) bool {
	for _, f := range files {
		if f == name {
			return true
		}
	}
	return false
}
