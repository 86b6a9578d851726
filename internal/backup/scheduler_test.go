package backup_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/backup"
	"github.com/kdbxkeeper/keeper/internal/kdbx"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/krypto"
)

func newTestBackupEnv(t *testing.T, now time.Time) (*backup.Scheduler, *store.SecondaryStore, *store.DualStore) {
	t.Helper()
	dir := t.TempDir()

	primary, err := store.NewPrimaryStore(filepath.Join(dir, "vault.primary"))
	if err != nil {
		t.Fatalf("NewPrimaryStore: %v", err)
	}
	secondary, err := store.OpenSecondaryStore(filepath.Join(dir, "vault.sqlite"))
	if err != nil {
		t.Fatalf("OpenSecondaryStore: %v", err)
	}
	t.Cleanup(func() { secondary.Close() })

	dual := store.New(primary, secondary)
	sched, err := backup.New(secondary, dual, now)
	if err != nil {
		t.Fatalf("backup.New: %v", err)
	}
	return sched, secondary, dual
}

func TestSnapshotAppearsInHistory(t *testing.T) {
	now := time.Now()
	sched, _, _ := newTestBackupEnv(t, now)

	v := kdbx.Create("Vault", now)
	if err := sched.Snapshot(v, "pass", krypto.DefaultArgon2Func, backup.ReasonManual, now); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	history, err := sched.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Reason != backup.ReasonManual {
		t.Fatalf("expected reason manual, got %q", history[0].Reason)
	}
}

func TestNoteEditTriggersThresholdSnapshot(t *testing.T) {
	now := time.Now()
	sched, _, _ := newTestBackupEnv(t, now)
	v := kdbx.Create("Vault", now)

	for i := 0; i < 9; i++ {
		if err := sched.NoteEdit(v, "pass", krypto.DefaultArgon2Func, now); err != nil {
			t.Fatalf("NoteEdit #%d: %v", i, err)
		}
	}
	history, err := sched.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no snapshot before threshold, got %d", len(history))
	}

	if err := sched.NoteEdit(v, "pass", krypto.DefaultArgon2Func, now); err != nil {
		t.Fatalf("NoteEdit #10: %v", err)
	}
	history, err = sched.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 snapshot after reaching threshold, got %d", len(history))
	}
	if history[0].Reason != backup.ReasonEditThreshold {
		t.Fatalf("expected reason edit_threshold, got %q", history[0].Reason)
	}
}

func TestRestoreLoadsAndPersistsSnapshot(t *testing.T) {
	now := time.Now()
	sched, _, dual := newTestBackupEnv(t, now)

	v := kdbx.Create("My Vault", now)
	if err := sched.Snapshot(v, "pass", krypto.DefaultArgon2Func, backup.ReasonManual, now); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored, err := sched.Restore(now, "pass", krypto.DefaultArgon2Func, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Meta.Name != "My Vault" {
		t.Fatalf("expected restored name %q, got %q", "My Vault", restored.Meta.Name)
	}

	loaded, err := dual.Load()
	if err != nil {
		t.Fatalf("dual.Load after restore: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected dual store to hold the restored snapshot")
	}
}

func TestRestoreUnknownTimestampFails(t *testing.T) {
	now := time.Now()
	sched, _, _ := newTestBackupEnv(t, now)

	_, err := sched.Restore(now.Add(time.Hour), "pass", krypto.DefaultArgon2Func, now)
	if err != backup.ErrSnapshotNotFound {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}
