// Package telemetry captures executed actions and log lines in a bounded
// in-memory buffer served by the HTTP console API.
package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Entry is one recorded line. Relevant marks balance-impacting entries as
// opposed to diagnostics.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Depositor string    `json:"depositor,omitempty"`
	Relevant  bool      `json:"relevant"`
	Message   string    `json:"message"`
}

// Recorder keeps the most recent entries and actions in fixed-size ring
// buffers. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	actions []domain.RebalanceAction
	limit   int
}

// NewRecorder creates a Recorder bounded to limit entries (and actions).
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1000
	}
	return &Recorder{limit: limit}
}

// Record appends a log entry, evicting the oldest when full.
func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if overflow := len(r.entries) - r.limit; overflow > 0 {
		r.entries = append([]Entry(nil), r.entries[overflow:]...)
	}
}

// RecordAction records an executed action and its rendered log line.
func (r *Recorder) RecordAction(a domain.RebalanceAction) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	if overflow := len(r.actions) - r.limit; overflow > 0 {
		r.actions = append([]domain.RebalanceAction(nil), r.actions[overflow:]...)
	}
	r.mu.Unlock()

	r.Record(Entry{
		Time:      a.CreatedAt,
		Level:     "INFO",
		Depositor: a.Depositor,
		Relevant:  true,
		Message:   FormatAction(a),
	})
}

// Logs returns up to limit entries, newest first, optionally filtered by
// depositor identity.
func (r *Recorder) Logs(depositor string, limit int) []Entry {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		if depositor != "" && !strings.EqualFold(e.Depositor, depositor) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LastAction returns the most recent action, optionally filtered by
// depositor, or nil when none matches.
func (r *Recorder) LastAction(depositor string) *domain.RebalanceAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.actions) - 1; i >= 0; i-- {
		a := r.actions[i]
		if depositor == "" || strings.EqualFold(a.Depositor, depositor) {
			return &a
		}
	}
	return nil
}

// Actions returns up to limit recent actions, newest first.
func (r *Recorder) Actions(depositor string, limit int) []domain.RebalanceAction {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.RebalanceAction, 0, limit)
	for i := len(r.actions) - 1; i >= 0 && len(out) < limit; i-- {
		a := r.actions[i]
		if depositor != "" && !strings.EqualFold(a.Depositor, depositor) {
			continue
		}
		out = append(out, a)
	}
	return out
}
