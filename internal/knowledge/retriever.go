// Package knowledge loads the flat-file knowledge base and selects the
// segments relevant to a classified guest message.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EntryFile anchors the knowledge base: identity, tone and house rules.
const EntryFile = "AGENTS.md"

// defaultAlertThrottle limits unhealthy-KB admin alerts to one per hour.
const defaultAlertThrottle = time.Hour

// defaultFailureLimit is how many consecutive load failures mark the KB
// unhealthy.
const defaultFailureLimit = 3

// Segment is one piece of retrieved knowledge, tagged with its source
// file for the preview API.
type Segment struct {
	File    string
	Content string
}

// Context is what retrieval hands to the prompt builder.
type Context struct {
	Segments []Segment
	Files    []string
	Healthy  bool
}

// AlertFunc notifies admins that the knowledge base is down.
type AlertFunc func(message string)

// Retriever loads a directory of topic files plus the entry file and
// routes topics by intent and keyword.
type Retriever struct {
	dir           string
	logger        *slog.Logger
	alert         AlertFunc
	failureLimit  int
	alertThrottle time.Duration
	now           func() time.Time

	mu          sync.RWMutex
	entry       string
	topics      map[string]string   // topic name (file stem) -> content
	routes      map[string][]string // intent -> topic names
	failures    int
	healthy     bool
	lastAlertAt time.Time
}

type RetrieverOptions struct {
	Dir              string
	Routes           map[string][]string
	Alert            AlertFunc
	FailureThreshold int           // consecutive failed loads before unhealthy; 0 = default
	AlertThrottle    time.Duration // minimum gap between admin alerts; 0 = default
	Logger           *slog.Logger
}

func NewRetriever(opts RetrieverOptions) *Retriever {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alert := opts.Alert
	if alert == nil {
		alert = func(string) {}
	}
	routes := opts.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	failureLimit := opts.FailureThreshold
	if failureLimit <= 0 {
		failureLimit = defaultFailureLimit
	}
	throttle := opts.AlertThrottle
	if throttle <= 0 {
		throttle = defaultAlertThrottle
	}
	return &Retriever{
		dir:           opts.Dir,
		logger:        logger.With("component", "knowledge"),
		alert:         alert,
		failureLimit:  failureLimit,
		alertThrottle: throttle,
		now:           time.Now,
		topics:        map[string]string{},
		routes:        routes,
		healthy:       true,
	}
}

// Load reads the entry file and every .txt topic in the directory.
// Consecutive failures past the configured threshold mark the KB
// unhealthy and raise a throttled admin alert; any success restores it.
func (r *Retriever) Load() error {
	entry, topics, err := r.read()
	if err != nil {
		r.recordFailure(err)
		return err
	}

	r.mu.Lock()
	r.entry = entry
	r.topics = topics
	r.failures = 0
	wasUnhealthy := !r.healthy
	r.healthy = true
	r.mu.Unlock()

	if wasUnhealthy {
		r.logger.Info("knowledge base recovered", "topics", len(topics))
	}
	return nil
}

func (r *Retriever) read() (string, map[string]string, error) {
	entryData, err := os.ReadFile(filepath.Join(r.dir, EntryFile))
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", EntryFile, err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return "", nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	topics := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return "", nil, fmt.Errorf("read topic %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		topics[name] = string(data)
	}
	return string(entryData), topics, nil
}

func (r *Retriever) recordFailure(err error) {
	r.mu.Lock()
	r.failures++
	tripped := r.failures >= r.failureLimit && r.healthy
	if tripped {
		r.healthy = false
	}
	shouldAlert := !r.healthy && r.now().Sub(r.lastAlertAt) >= r.alertThrottle
	if shouldAlert {
		r.lastAlertAt = r.now()
	}
	failures := r.failures
	r.mu.Unlock()

	r.logger.Error("knowledge base load failed", "failures", failures, "error", err)
	if shouldAlert {
		r.alert(fmt.Sprintf("knowledge base unavailable after %d consecutive failures: %v", failures, err))
	}
}

// Healthy reports whether retrieval can serve grounded answers. When
// false the router falls back to static replies with a marker prompt.
func (r *Retriever) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthy
}

// SetRoutes replaces the intent-to-topic routing table.
func (r *Retriever) SetRoutes(routes map[string][]string) {
	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()
}

// Retrieve assembles the knowledge context for one message: the entry
// file and memory log always, routed topics for the intent, plus any
// topic whose name appears in the message itself.
func (r *Retriever) Retrieve(intent, text string) Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx := Context{Healthy: r.healthy}
	if !r.healthy {
		return ctx
	}

	add := func(file, content string) {
		for _, f := range ctx.Files {
			if f == file {
				return
			}
		}
		ctx.Segments = append(ctx.Segments, Segment{File: file, Content: content})
		ctx.Files = append(ctx.Files, file)
	}

	add(EntryFile, r.entry)
	for _, name := range r.alwaysOn() {
		if content, ok := r.topics[name]; ok {
			add(name+".txt", content)
		}
	}

	for _, name := range r.routes[intent] {
		if content, ok := r.topics[name]; ok {
			add(name+".txt", content)
		}
	}

	lower := strings.ToLower(text)
	for name, content := range r.topics {
		if strings.Contains(lower, strings.ToLower(strings.ReplaceAll(name, "_", " "))) {
			add(name+".txt", content)
		}
	}
	return ctx
}

// alwaysOn lists topics included in every prompt: the running memory
// notes and the activity logs for today and yesterday.
func (r *Retriever) alwaysOn() []string {
	today := r.now().Format("2006-01-02")
	yesterday := r.now().AddDate(0, 0, -1).Format("2006-01-02")
	return []string{"memory", "log-" + today, "log-" + yesterday}
}

// DefaultRoutes maps intents to the topic files that answer them.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		"booking_inquiry": {"rooms", "pricing", "booking"},
		"check_in":        {"check_in"},
		"check_out":       {"check_out"},
		"pricing":         {"pricing", "rooms"},
		"wifi":            {"wifi"},
		"facilities":      {"facilities"},
		"directions":      {"directions"},
		"luggage":         {"luggage"},
		"complaint":       {"facilities"},
		"card_locked":     {"check_in"},
	}
}

// StaffPhonesReply is served without any provider call when a guest asks
// how to reach a human. The numbers live in code on purpose: this reply
// must work even when the knowledge base and every provider are down.
func StaffPhonesReply(lang string) string {
	switch lang {
	case "ms":
		return "Anda boleh hubungi staf kami terus di +60 12-390 0000 (kaunter) atau +60 12-390 0001 (kecemasan, 24 jam)."
	case "zh":
		return "您可以直接联系我们的员工：前台 +60 12-390 0000，24小时紧急电话 +60 12-390 0001。"
	default:
		return "You can reach our staff directly at +60 12-390 0000 (front desk) or +60 12-390 0001 (24h emergency line)."
	}
}
