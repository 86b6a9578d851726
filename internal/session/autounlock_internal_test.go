package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/krypto"
)

// TestTokenRoundTripsWithinSameManager exercises persistUnlockToken and
// tryAutoUnlock directly, bypassing Lock()'s deliberate token-clearing, to
// confirm the seal/unseal mechanics are correct in isolation.
func TestTokenRoundTripsWithinSameManager(t *testing.T) {
	dir := t.TempDir()
	primary, err := store.NewPrimaryStore(filepath.Join(dir, "vault.primary"))
	if err != nil {
		t.Fatalf("NewPrimaryStore: %v", err)
	}
	secondary, err := store.OpenSecondaryStore(filepath.Join(dir, "vault.sqlite"))
	if err != nil {
		t.Fatalf("OpenSecondaryStore: %v", err)
	}
	defer secondary.Close()
	dual := store.New(primary, secondary)

	tokenStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-token"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (token): %v", err)
	}
	keyStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-key"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (key): %v", err)
	}

	m, err := New(dual, tokenStore, keyStore, krypto.DefaultArgon2Func, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	if err := m.persistUnlockToken("hunter2", now); err != nil {
		t.Fatalf("persistUnlockToken: %v", err)
	}

	passphrase, ok, err := m.tryAutoUnlock(now)
	if err != nil {
		t.Fatalf("tryAutoUnlock: %v", err)
	}
	if !ok {
		t.Fatalf("expected token to be recoverable within the same manager")
	}
	if passphrase != "hunter2" {
		t.Fatalf("expected recovered passphrase %q, got %q", "hunter2", passphrase)
	}
}

func TestTokenExpiresAfterTTL(t *testing.T) {
	dir := t.TempDir()
	primary, err := store.NewPrimaryStore(filepath.Join(dir, "vault.primary"))
	if err != nil {
		t.Fatalf("NewPrimaryStore: %v", err)
	}
	secondary, err := store.OpenSecondaryStore(filepath.Join(dir, "vault.sqlite"))
	if err != nil {
		t.Fatalf("OpenSecondaryStore: %v", err)
	}
	defer secondary.Close()
	dual := store.New(primary, secondary)

	tokenStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-token"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (token): %v", err)
	}
	keyStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-key"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (key): %v", err)
	}

	m, err := New(dual, tokenStore, keyStore, krypto.DefaultArgon2Func, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.unlockTokenTTL = time.Minute

	now := time.Now()
	if err := m.persistUnlockToken("hunter2", now); err != nil {
		t.Fatalf("persistUnlockToken: %v", err)
	}

	_, ok, err := m.tryAutoUnlock(now.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("tryAutoUnlock: %v", err)
	}
	if ok {
		t.Fatalf("expected token to be expired")
	}
}
