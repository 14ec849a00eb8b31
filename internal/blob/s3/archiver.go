package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// BlobWriter is the upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports old rebalance actions to the object store as JSONL and
// then prunes them from the primary store. Pruning runs only after a
// successful upload so an archive failure never loses records.
type Archiver struct {
	writer  BlobWriter
	actions domain.ActionStore
	logger  *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and action store.
func NewArchiver(writer BlobWriter, actions domain.ActionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		actions: actions,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore uploads every action created before cutoff to
// archive/actions/YYYY-MM.jsonl and deletes the archived rows. It returns
// the number of records archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	actions, err := a.actions.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(actions) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range actions {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: encode action %d: %w", i, err)
		}
	}

	path := fmt.Sprintf("archive/actions/%s.jsonl", cutoff.Format("2006-01"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.actions.DeleteBefore(ctx, cutoff)
	if err != nil {
		// The upload succeeded; the next run re-archives the same rows,
		// overwriting the same key.
		return int64(len(actions)), fmt.Errorf("s3blob: archive prune: %w", err)
	}

	a.logger.Info("actions archived",
		slog.String("path", path),
		slog.Int("count", len(actions)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(actions)), nil
}
