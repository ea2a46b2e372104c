package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// ObjectStore is the piece of S3Client the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// EntryWriter matches the indexing pipeline's writer hook.
type EntryWriter interface {
	Add(ctx context.Context, collection, id, text string) error
}

// archivedEntry is the JSON shape written to the bucket.
type archivedEntry struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Text       string    `json:"text"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Archive mirrors indexed entries into an S3-compatible bucket, one JSON
// object per entry under {collection}/{id}.json.
type Archive struct {
	objects ObjectStore
}

// NewArchive creates a new Archive
func NewArchive(objects ObjectStore) *Archive {
	return &Archive{objects: objects}
}

// PutEntry writes one entry to the bucket.
func (a *Archive) PutEntry(ctx context.Context, collection, id, text string) error {
	body, err := json.Marshal(archivedEntry{
		ID:         id,
		Collection: collection,
		Text:       text,
		IndexedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding archive entry %s: %w", id, err)
	}

	key := fmt.Sprintf("%s/%s.json", collection, id)
	if err := a.objects.PutObject(ctx, key, "application/json", body); err != nil {
		return fmt.Errorf("archiving entry %s: %w", id, err)
	}

	return nil
}

// ArchivingWriter decorates an EntryWriter so every stored entry is also
// mirrored to the archive. Archive failures are logged, not fatal; the
// primary store stays the source of truth.
type ArchivingWriter struct {
	next    EntryWriter
	archive *Archive
}

// NewArchivingWriter creates a new ArchivingWriter
func NewArchivingWriter(next EntryWriter, archive *Archive) *ArchivingWriter {
	return &ArchivingWriter{
		next:    next,
		archive: archive,
	}
}

// Add writes the entry to the primary store, then mirrors it.
func (w *ArchivingWriter) Add(ctx context.Context, collection, id, text string) error {
	if err := w.next.Add(ctx, collection, id, text); err != nil {
		return err
	}

	if err := w.archive.PutEntry(ctx, collection, id, text); err != nil {
		log.Printf("archive: %v", err)
	}

	return nil
}
