package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"parimarket/internal/domain"
	"parimarket/internal/store/memory"
	"parimarket/internal/vault"
)

type fakeWriter struct {
	puts       map[string][]byte
	multiparts map[string][]byte
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		puts:       make(map[string][]byte),
		multiparts: make(map[string][]byte),
	}
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = buf
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multiparts[path] = buf
	return nil
}

func seedEvents(t *testing.T, store *memory.Store, createdAts ...int64) {
	t.Helper()
	err := store.Update(context.Background(), func(tx domain.Tx) error {
		for i, at := range createdAts {
			e := domain.Event{
				ID:        string(rune('a' + i)),
				Type:      domain.EventBetPlaced,
				MarketID:  1,
				Actor:     "0xabc",
				Amount:    uint64(100 * (i + 1)),
				CreatedAt: at,
			}
			if err := tx.Events().Append(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed events: %v", err)
	}
}

func newArchiverFixture(t *testing.T) (*Archiver, *fakeWriter, *memory.Store) {
	t.Helper()
	v, err := vault.New([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	store := memory.New(v)
	writer := newFakeWriter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(writer, store, logger), writer, store
}

func TestArchiveEventsUploadsJSONL(t *testing.T) {
	arch, writer, store := newArchiverFixture(t)
	seedEvents(t, store, 100, 200, 300)

	// Cutoff 250 catches the first two events only.
	n, err := arch.ArchiveEvents(context.Background(), 250)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d events, want 2", n)
	}
	if len(writer.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(writer.puts))
	}

	var body []byte
	for path, data := range writer.puts {
		if !strings.HasPrefix(path, "archive/events/") || !strings.HasSuffix(path, ".jsonl") {
			t.Errorf("object key = %q, want archive/events/YYYY-MM.jsonl", path)
		}
		body = data
	}

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("JSONL lines = %d, want 2", len(lines))
	}
	for i, line := range lines {
		var e domain.Event
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if e.CreatedAt >= 250 {
			t.Errorf("line %d has CreatedAt %d, want < 250", i, e.CreatedAt)
		}
	}
}

func TestArchiveEventsEmptyBatchUploadsNothing(t *testing.T) {
	arch, writer, store := newArchiverFixture(t)
	seedEvents(t, store, 500)

	n, err := arch.ArchiveEvents(context.Background(), 100)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 0 {
		t.Errorf("archived %d events, want 0", n)
	}
	if len(writer.puts) != 0 || len(writer.multiparts) != 0 {
		t.Errorf("uploads happened for an empty batch")
	}
}
