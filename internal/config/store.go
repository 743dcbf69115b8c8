package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Well-known operational config file names managed by the Store.
const (
	FileIntentKeywords = "intent-keywords.json"
	FileIntentExamples = "intent-examples.json"
	FileRouting        = "routing.json"
	FileWorkflows      = "workflows.json"
	FileSettings       = "settings.json"
	FileKnowledge      = "knowledge.json"
	FileScheduled      = "scheduled.json"
)

// Store serializes all writes to the on-disk operational config files through
// a single actor goroutine and keeps the last good snapshot of each file in
// memory. Writes are atomic (temp file + rename on the same filesystem) and
// broadcast a reload event to subscribers after the swap.
type Store struct {
	dir string

	mu        sync.RWMutex
	snapshots map[string]json.RawMessage

	writes chan writeReq

	subMu sync.Mutex
	subs  []chan string
}

type writeReq struct {
	name string
	data json.RawMessage
	done chan error
}

// NewStore creates a Store rooted at dir and loads snapshots of any existing
// files. A file that exists but fails to parse is a hard error: the previous
// process state is unknown and starting with corrupt config is worse than
// not starting.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	s := &Store{
		dir:       dir,
		snapshots: make(map[string]json.RawMessage),
		writes:    make(chan writeReq, 16),
	}
	names := []string{
		FileIntentKeywords, FileIntentExamples, FileRouting,
		FileWorkflows, FileSettings, FileKnowledge, FileScheduled,
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("config file %s is corrupt", name)
		}
		s.snapshots[name] = json.RawMessage(data)
	}
	return s, nil
}

// Run processes queued writes until the context is cancelled.
// This should be run as a goroutine; it is the single writer.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.writes:
			req.done <- s.applyWrite(req.name, req.data)
		}
	}
}

func (s *Store) applyWrite(name string, data json.RawMessage) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("swap %s: %w", name, err)
	}

	s.mu.Lock()
	s.snapshots[name] = data
	s.mu.Unlock()

	s.broadcast(name)
	return nil
}

// Read decodes the in-memory snapshot of a config file into v.
// Returns os.ErrNotExist if the file has never been written.
func (s *Store) Read(name string, v any) error {
	s.mu.RLock()
	data, ok := s.snapshots[name]
	s.mu.RUnlock()
	if !ok {
		return os.ErrNotExist
	}
	return json.Unmarshal(data, v)
}

// Write marshals v and queues an atomic write of the named config file.
// Blocks until the actor has swapped the file or the write failed.
func (s *Store) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	done := make(chan error, 1)
	s.writes <- writeReq{name: name, data: data, done: done}
	return <-done
}

// Reload re-reads a file from disk into the snapshot (used by external edits).
// A corrupt file keeps the previous good snapshot and logs the error.
func (s *Store) Reload(name string) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		slog.Warn("Config reload failed, keeping previous snapshot", "file", name, "error", err)
		return
	}
	if !json.Valid(data) {
		slog.Warn("Config reload found corrupt file, keeping previous snapshot", "file", name)
		return
	}
	s.mu.Lock()
	s.snapshots[name] = json.RawMessage(data)
	s.mu.Unlock()
	s.broadcast(name)
}

// Subscribe returns a channel receiving the name of each file after it is
// swapped. Subscribers always observe a consistent post-swap snapshot.
func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 8)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) broadcast(name string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- name:
		default: // slow subscriber, drop rather than block the actor
		}
	}
}
