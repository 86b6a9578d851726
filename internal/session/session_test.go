package session_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/session"
	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/krypto"
)

func newTestManager(t *testing.T, dir string) *session.Manager {
	t.Helper()
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

	tokenStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-token"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (token): %v", err)
	}
	keyStore, err := store.NewPrimaryStore(filepath.Join(dir, "unlock-key"))
	if err != nil {
		t.Fatalf("NewPrimaryStore (key): %v", err)
	}

	loaded, err := dual.Load()
	if err != nil {
		t.Fatalf("dual.Load: %v", err)
	}

	m, err := session.New(dual, tokenStore, keyStore, krypto.DefaultArgon2Func, loaded != nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return m
}

func TestInitialStateNoDatabase(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if m.State() != session.StateNoDatabase {
		t.Fatalf("expected initial state NoDatabase, got %v", m.State())
	}
}

func TestCreateDatabaseTransitionsToUnlocked(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if m.State() != session.StateUnlocked {
		t.Fatalf("expected Unlocked after CreateDatabase, got %v", m.State())
	}
	v, ok := m.Vault()
	if !ok || v == nil {
		t.Fatalf("expected an unlocked vault")
	}
}

func TestCreateDatabaseMintsRecoveryCodesOnce(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	codes := m.ConsumeGeneratedRecoveryCodes()
	if len(codes) == 0 {
		t.Fatalf("expected CreateDatabase to mint recovery codes")
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("recovery codes must be unique, got duplicate %q", c)
		}
		seen[c] = true
	}

	if again := m.ConsumeGeneratedRecoveryCodes(); again != nil {
		t.Fatalf("expected a second consume to return nil, got %v", again)
	}
}

func TestLockThenUnlockRoundTrips(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	m.Lock(now)
	if m.State() != session.StateLocked {
		t.Fatalf("expected Locked after Lock, got %v", m.State())
	}
	if _, ok := m.Vault(); ok {
		t.Fatalf("expected no vault access while locked")
	}

	if err := m.Unlock("hunter2", now); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if m.State() != session.StateUnlocked {
		t.Fatalf("expected Unlocked after Unlock, got %v", m.State())
	}
}

func TestUnlockWrongPassphraseFails(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	m.Lock(now)

	if err := m.Unlock("wrong-pass", now); err == nil {
		t.Fatalf("expected Unlock with wrong passphrase to fail")
	}
	if m.State() != session.StateLocked {
		t.Fatalf("expected session to remain Locked, got %v", m.State())
	}
}

func TestIdleTimeoutAutoLocks(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()
	m.SetIdleTimeout(time.Minute)

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	if m.CheckIdle(now.Add(30 * time.Second)) {
		t.Fatalf("expected no auto-lock before idle timeout")
	}
	if !m.CheckIdle(now.Add(2 * time.Minute)) {
		t.Fatalf("expected auto-lock after idle timeout")
	}
	if m.State() != session.StateLocked {
		t.Fatalf("expected Locked after idle timeout, got %v", m.State())
	}
}

func TestDeleteDatabaseTransitionsToNoDatabase(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := m.DeleteDatabase(now); err != nil {
		t.Fatalf("DeleteDatabase: %v", err)
	}
	if m.State() != session.StateNoDatabase {
		t.Fatalf("expected NoDatabase after DeleteDatabase, got %v", m.State())
	}
}

func TestIdleLockClearsAutoUnlockToken(t *testing.T) {
	// Spec §4.7: idle expiry clears the vault, the passphrase, AND the
	// auto-unlock token — so an idle-triggered lock must require a manual
	// Unlock(), not a transparent one.
	m := newTestManager(t, t.TempDir())
	now := time.Now()

	if err := m.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if !m.CheckIdle(now.Add(time.Hour)) {
		t.Fatalf("expected idle lock to fire")
	}

	if err := m.EnsureUnlocked(now.Add(time.Hour)); err != session.ErrNotUnlocked {
		t.Fatalf("expected ErrNotUnlocked after idle-triggered lock, got %v", err)
	}
}

func TestEnsureUnlockedSucceedsAcrossCrashRestart(t *testing.T) {
	// Spec §4.7: the auto-unlock token survives an unclean restart (crash —
	// no Shutdown hook ran), since both the sealed token and its wrapping
	// key are durably persisted to disk.
	dir := t.TempDir()
	now := time.Now()

	m1 := newTestManager(t, dir)
	if err := m1.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	// A fresh Manager over the same on-disk stores simulates a crash
	// restart: neither the token file nor the key file were touched.
	m2 := newTestManager(t, dir)
	if m2.State() != session.StateLocked {
		t.Fatalf("expected fresh manager over an existing database to start Locked, got %v", m2.State())
	}
	if err := m2.EnsureUnlocked(now); err != nil {
		t.Fatalf("expected transparent auto-unlock across a crash restart, got %v", err)
	}
	if m2.State() != session.StateUnlocked {
		t.Fatalf("expected Unlocked after auto-unlock, got %v", m2.State())
	}
}

func TestEnsureUnlockedFailsAfterGracefulShutdown(t *testing.T) {
	// Spec §4.7: a graceful shutdown clears the auto-unlock token, so the
	// next start requires a manual Unlock().
	dir := t.TempDir()
	now := time.Now()

	m1 := newTestManager(t, dir)
	if err := m1.CreateDatabase("My Vault", "hunter2", now); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := m1.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	m2 := newTestManager(t, dir)
	if err := m2.EnsureUnlocked(now); err != session.ErrNotUnlocked {
		t.Fatalf("expected ErrNotUnlocked after a graceful shutdown, got %v", err)
	}
}
