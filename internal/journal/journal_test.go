package journal_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/journal"
	"github.com/kdbxkeeper/keeper/internal/store"
)

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	secondary, err := store.OpenSecondaryStore(filepath.Join(t.TempDir(), "vault.sqlite"))
	if err != nil {
		t.Fatalf("OpenSecondaryStore: %v", err)
	}
	t.Cleanup(func() { secondary.Close() })
	return journal.New(secondary)
}

func TestBeginCompleteRemovesFromIncomplete(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now()

	opID, err := j.Begin("update_entry", map[string]string{"id": "1"}, "deadbeef", now)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if opID == "" {
		t.Fatalf("expected non-empty opId")
	}

	if err := j.Complete(opID, "cafebabe", now.Add(time.Second)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	summary, err := j.Recover("cafebabe", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if summary.Incomplete != 0 {
		t.Fatalf("expected no incomplete ops after Complete, got %d", summary.Incomplete)
	}
}

func TestRollbackRemovesFromIncomplete(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now()

	opID, err := j.Begin("delete_entry", nil, "deadbeef", now)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Rollback(opID, errors.New("disk full"), now.Add(time.Second)); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	summary, err := j.Recover("deadbeef", now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if summary.Incomplete != 0 {
		t.Fatalf("expected no incomplete ops after Rollback, got %d", summary.Incomplete)
	}
}

func TestRecoverRetainsOpWithoutResultChecksum(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now()

	opID, err := j.Begin("persist", nil, "deadbeef", now)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// Simulate a crash before Complete() was called: the record carries no
	// resultChecksum, so Recover cannot match it against the blob's current
	// checksum (here still the pre-operation "deadbeef") and keeps it for
	// retry instead.
	_ = opID

	summary, err := j.Recover("deadbeef", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if summary.Incomplete != 1 {
		t.Fatalf("expected 1 incomplete op, got %d", summary.Incomplete)
	}
	if summary.Recovered != 0 {
		t.Fatalf("expected 0 recovered (checksum never matched resultChecksum), got %d", summary.Recovered)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected op retained for retry, got failed=%d", summary.Failed)
	}
}

func TestRecoverRollsBackAfterExceedingRetries(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now()

	if _, err := j.Begin("persist", nil, "deadbeef", now); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	var last journal.RecoverySummary
	for i := 0; i < 3; i++ {
		summary, err := j.Recover("other-checksum", now.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			t.Fatalf("Recover #%d: %v", i, err)
		}
		last = summary
	}
	if last.RolledBack != 1 {
		t.Fatalf("expected op rolled back after exceeding retries, got %+v", last)
	}
}

func TestClearEmptiesBothStores(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now()
	if _, err := j.Begin("persist", nil, "deadbeef", now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	summary, err := j.Recover("deadbeef", now)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if summary.Incomplete != 0 {
		t.Fatalf("expected no incomplete ops after Clear, got %d", summary.Incomplete)
	}
}
