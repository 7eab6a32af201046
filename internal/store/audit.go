package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roomify/apiserver/types"
)

// AuditRepository appends audit entries. It never updates or deletes them.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends entry. Re-inserting an event ID that already exists is a
// no-op so broker redeliveries do not duplicate entries.
func (r *AuditRepository) Insert(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return types.AuditEntry{}, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO audit_logs (event_id, actor, action, target, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id`
	err = r.db.QueryRowContext(
		ctx,
		query,
		entry.EventID,
		entry.Actor,
		entry.Action,
		entry.Target,
		metadata,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.AuditEntry{}, err
	}
	return entry, nil
}

// ListAfter returns up to limit entries ordered by (created_at, id) that
// come strictly after the cursor (since, afterID). An afterID of 0 starts at
// the first entry created at or after since.
func (r *AuditRepository) ListAfter(ctx context.Context, since time.Time, afterID int64, limit int) ([]types.AuditEntry, error) {
	const query = `
		SELECT id, event_id, actor, action, target, metadata, created_at
		FROM audit_logs
		WHERE (created_at, id) > ($1, $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, since.UTC(), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var (
			entry    types.AuditEntry
			target   sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.EventID, &entry.Actor, &entry.Action, &target, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Target = target.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of audit entry %d: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
