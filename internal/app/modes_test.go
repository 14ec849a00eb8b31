package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubArchiver struct {
	archived int64
	err      error
	cutoffs  []time.Time
}

func (s *stubArchiver) ArchiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return s.archived, s.err
}

type logCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *logCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	c.records = append(c.records, r.Clone())
	c.mu.Unlock()
	return nil
}

func (c *logCapture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *logCapture) WithGroup(string) slog.Handler      { return c }

func (c *logCapture) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Message
	}
	return out
}

func TestArchiveOnce_LogsArchivedCount(t *testing.T) {
	capture := &logCapture{}
	a := &App{logger: slog.New(capture)}
	archiver := &stubArchiver{archived: 3}

	a.archiveOnce(context.Background(), archiver, 30*24*time.Hour)

	require.Len(t, archiver.cutoffs, 1)
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.InDelta(t, wantCutoff.Unix(), archiver.cutoffs[0].Unix(), 5)
	assert.Contains(t, capture.messages(), "actions archived")
}

func TestArchiveOnce_FailureIsLoggedNotFatal(t *testing.T) {
	capture := &logCapture{}
	a := &App{logger: slog.New(capture)}
	archiver := &stubArchiver{err: errors.New("bucket unreachable")}

	a.archiveOnce(context.Background(), archiver, 24*time.Hour)

	msgs := capture.messages()
	assert.Contains(t, msgs, "action archive failed")
	assert.NotContains(t, msgs, "actions archived")
}

func TestArchiveOnce_SkipsLogWhenNothingArchived(t *testing.T) {
	capture := &logCapture{}
	a := &App{logger: slog.New(capture)}

	a.archiveOnce(context.Background(), &stubArchiver{archived: 0}, 24*time.Hour)

	assert.Empty(t, capture.messages())
}
