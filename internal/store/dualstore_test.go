package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/store"
)

func newTestDualStore(t *testing.T) *store.DualStore {
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

	return store.New(primary, secondary)
}

func TestPersistThenLoadRoundTrips(t *testing.T) {
	ds := newTestDualStore(t)
	now := time.Now()

	result, err := ds.Persist([]byte("blob-v1"), map[string]any{"name": "My Vault"}, "edit", now)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected persist success, got %+v", result)
	}
	if !result.ChecksumMatch {
		t.Fatalf("expected checksum match, got %+v", result)
	}

	loaded, err := ds.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected a load result")
	}
	if string(loaded.Blob) != "blob-v1" {
		t.Fatalf("expected blob %q, got %q", "blob-v1", loaded.Blob)
	}
	if loaded.Source != "primary" {
		t.Fatalf("expected source primary, got %q", loaded.Source)
	}
}

func TestPersistIncrementsVersionAndPrunesHistory(t *testing.T) {
	ds := newTestDualStore(t)
	now := time.Now()

	var lastVersion int64
	for i := 0; i < 8; i++ {
		result, err := ds.Persist([]byte("blob"), map[string]any{}, "edit", now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("Persist #%d: %v", i, err)
		}
		lastVersion = result.Version
	}
	if lastVersion != 8 {
		t.Fatalf("expected version 8 after 8 persists, got %d", lastVersion)
	}

	health, err := ds.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.VersionCount != 5 {
		t.Fatalf("expected version history pruned to 5, got %d", health.VersionCount)
	}
	if health.LatestVersion != 8 {
		t.Fatalf("expected latest version 8, got %d", health.LatestVersion)
	}
}

func TestRecoverFallsBackToPrimaryWhenVersionMissing(t *testing.T) {
	ds := newTestDualStore(t)
	now := time.Now()

	if _, err := ds.Persist([]byte("current-blob"), map[string]any{}, "edit", now); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	blob, err := ds.Recover(999)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if string(blob) != "current-blob" {
		t.Fatalf("expected fallback to primary current blob, got %q", blob)
	}
}

func TestRecoverFailsWhenNothingPersisted(t *testing.T) {
	ds := newTestDualStore(t)
	if _, err := ds.Recover(1); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteDeletionClearsBothStores(t *testing.T) {
	ds := newTestDualStore(t)
	now := time.Now()
	if _, err := ds.Persist([]byte("blob"), map[string]any{}, "edit", now); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if err := ds.CompleteDeletion(); err != nil {
		t.Fatalf("CompleteDeletion: %v", err)
	}

	loaded, err := ds.Load()
	if err != nil {
		t.Fatalf("Load after deletion: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil load result after complete deletion, got %+v", loaded)
	}
}

func TestPutRecoveryCodesIsObservableViaHasRecoveryCodes(t *testing.T) {
	ds := newTestDualStore(t)

	has, err := ds.HasRecoveryCodes()
	if err != nil {
		t.Fatalf("HasRecoveryCodes: %v", err)
	}
	if has {
		t.Fatalf("expected no recovery codes before PutRecoveryCodes")
	}

	if err := ds.PutRecoveryCodes([]string{"hash1", "hash2"}, time.Now()); err != nil {
		t.Fatalf("PutRecoveryCodes: %v", err)
	}

	has, err = ds.HasRecoveryCodes()
	if err != nil {
		t.Fatalf("HasRecoveryCodes: %v", err)
	}
	if !has {
		t.Fatalf("expected recovery codes to be present after PutRecoveryCodes")
	}
}

func TestOnPersistHookFiresWithReason(t *testing.T) {
	ds := newTestDualStore(t)
	var gotReason string
	ds.OnPersist(func(reason string) { gotReason = reason })

	if _, err := ds.Persist([]byte("blob"), map[string]any{}, "edit", time.Now()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if gotReason != "edit" {
		t.Fatalf("expected hook to observe reason %q, got %q", "edit", gotReason)
	}
}
