package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/roomify/apiserver/types"
)

const exportPageSize = 500

// EntryLister pages through stored entries ordered by (created_at, id),
// returning those strictly after the given cursor.
type EntryLister interface {
	ListAfter(ctx context.Context, since time.Time, afterID int64, limit int) ([]types.AuditEntry, error)
}

// Uploader writes one object to the archive bucket.
type Uploader interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Export writes every entry created at or after since into a single JSON
// lines object under prefix and returns its key and the number of entries.
func Export(ctx context.Context, lister EntryLister, uploader Uploader, prefix string, since, now time.Time) (string, int, error) {
	var (
		buf     bytes.Buffer
		count   int
		cursor  = since
		afterID int64
	)
	encoder := json.NewEncoder(&buf)

	for {
		page, err := lister.ListAfter(ctx, cursor, afterID, exportPageSize)
		if err != nil {
			return "", 0, fmt.Errorf("list audit entries: %w", err)
		}
		for _, entry := range page {
			if err := encoder.Encode(entry); err != nil {
				return "", 0, err
			}
			count++
			cursor, afterID = entry.CreatedAt, entry.ID
		}
		if len(page) < exportPageSize {
			break
		}
	}

	key := path.Join(prefix, now.UTC().Format("2006/01/02"), fmt.Sprintf("audit-%s.jsonl", now.UTC().Format("20060102T150405Z")))
	if err := uploader.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return key, count, nil
}
