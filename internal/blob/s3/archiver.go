package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"parimarket/internal/domain"
)

// BlobWriter is the upload surface the archiver needs. *Writer
// satisfies it; tests substitute an in-memory implementation.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// multipartThreshold is the payload size above which the archiver
// switches from a single PutObject to a multipart upload.
const multipartThreshold = 64 * 1024 * 1024

// Archiver offloads old event-log records to object storage as JSONL.
//
// Deletion of archived records from the primary store is intentionally
// not performed here; that is a separate step to run after the archive
// has been verified.
type Archiver struct {
	writer BlobWriter
	store  domain.Store
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, store domain.Store, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents uploads every event created strictly before the cutoff
// to archive/events/YYYY-MM.jsonl and returns the number of records
// archived. An empty batch uploads nothing.
func (a *Archiver) ArchiveEvents(ctx context.Context, before int64) (int64, error) {
	var events []domain.Event
	err := a.store.View(ctx, func(tx domain.Tx) error {
		var viewErr error
		events, viewErr = tx.Events().ListBefore(ctx, before)
		return viewErr
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))
	a.logger.InfoContext(ctx, "events archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("before", before),
	)
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff:
//
//	archive/events/2026-08.jsonl
func archivePath(kind string, before int64) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, time.Unix(before, 0).UTC().Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
