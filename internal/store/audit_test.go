package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/roomify/apiserver/types"
)

func TestAuditInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	createdAt := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("4b7c1a3e-0000-4000-8000-000000000001", "admin@roomify.com", types.ActionLoginSuccess, "admin@roomify.com", []byte(`{"ip":"10.0.0.1"}`), createdAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	entry, err := repo.Insert(context.Background(), types.AuditEntry{
		EventID:   "4b7c1a3e-0000-4000-8000-000000000001",
		Actor:     "admin@roomify.com",
		Action:    types.ActionLoginSuccess,
		Target:    "admin@roomify.com",
		Metadata:  map[string]string{"ip": "10.0.0.1"},
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if entry.ID != 42 {
		t.Fatalf("expected id 42, got %d", entry.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditInsertDuplicateEventIsNoop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectQuery("INSERT INTO audit_logs .* ON CONFLICT \\(event_id\\) DO NOTHING").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Insert(context.Background(), types.AuditEntry{
		EventID: "4b7c1a3e-0000-4000-8000-000000000002",
		Actor:   types.ActorSystem,
		Action:  types.ActionLockoutReset,
	}); err != nil {
		t.Fatalf("duplicate insert should be a no-op, got %v", err)
	}
}

func TestAuditListAfter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	since := time.Now().Add(-time.Hour).UTC()
	mock.ExpectQuery("SELECT id, event_id, actor, action, target, metadata, created_at\\s+FROM audit_logs\\s+WHERE \\(created_at, id\\) > \\(\\$1, \\$2\\)").
		WithArgs(since, int64(7), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "actor", "action", "target", "metadata", "created_at"}).
			AddRow(8, "e1", "user@x.com", types.ActionAccountLocked, "user@x.com", []byte(`{"until":"later"}`), since).
			AddRow(9, "e2", "SYSTEM", types.ActionLockoutReset, nil, []byte(`{}`), since))

	entries, err := repo.ListAfter(context.Background(), since, 7, 100)
	if err != nil {
		t.Fatalf("ListAfter: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Metadata["until"] != "later" {
		t.Fatalf("metadata not decoded: %v", entries[0].Metadata)
	}
	if entries[1].Target != "" {
		t.Fatalf("expected empty target, got %q", entries[1].Target)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditListAfterRejectsCorruptMetadata(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	since := time.Now().UTC()
	mock.ExpectQuery("SELECT id, event_id").
		WithArgs(since, int64(0), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "actor", "action", "target", "metadata", "created_at"}).
			AddRow(1, "e1", "user@x.com", types.ActionLoginSuccess, "user@x.com", []byte(`{not json`), since))

	if _, err := repo.ListAfter(context.Background(), since, 0, 10); err == nil {
		t.Fatalf("expected corrupt metadata to be reported")
	}
}
