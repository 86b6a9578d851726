package session

import (
	"fmt"
	"time"

	"github.com/kdbxkeeper/keeper/internal/kdbx"
	"github.com/kdbxkeeper/keeper/internal/token"
	"github.com/kdbxkeeper/keeper/internal/vault"
)

// CreateDatabase builds a fresh vault, persists it, mints a fresh set of
// recovery codes, and transitions NoDatabase/Locked → Unlocked — spec §4.7
// "create_database(name, passphrase)" and §3 "recovery_codes". The plaintext
// codes are retrievable exactly once via ConsumeGeneratedRecoveryCodes; only
// their checksums are persisted.
func (m *Manager) CreateDatabase(name, passphrase string, now time.Time) error {
	v := kdbx.Create(name, now)
	if err := m.persistAndEnterUnlocked(v, passphrase, "import", now); err != nil {
		return err
	}

	codes, err := token.GenerateRecoveryCodes(token.DefaultRecoveryCodeCount)
	if err != nil {
		return fmt.Errorf("session: generate recovery codes: %w", err)
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = token.Checksum([]byte(code))
	}
	if err := m.dual.PutRecoveryCodes(hashes, now); err != nil {
		return fmt.Errorf("session: persist recovery codes: %w", err)
	}
	m.pendingRecoveryCodes = codes
	return nil
}

// ConsumeGeneratedRecoveryCodes returns and clears the one-time recovery
// codes minted by the most recent CreateDatabase call. A second call (or one
// with nothing pending) returns nil.
func (m *Manager) ConsumeGeneratedRecoveryCodes() []string {
	codes := m.pendingRecoveryCodes
	m.pendingRecoveryCodes = nil
	return codes
}

// ImportDatabase decrypts blob with passphrase and transitions to
// Unlocked — spec §4.7 "import_database(bytes, passphrase)".
func (m *Manager) ImportDatabase(blob []byte, passphrase string, now time.Time) error {
	v, err := kdbx.Load(blob, passphrase, m.argon2Func)
	if err != nil {
		return err
	}
	return m.persistAndEnterUnlocked(v, passphrase, "import", now)
}

// Unlock decrypts the durably-stored vault with passphrase and transitions
// Locked → Unlocked — spec §4.7 "unlock(passphrase)".
func (m *Manager) Unlock(passphrase string, now time.Time) error {
	loaded, err := m.dual.Load()
	if err != nil {
		return fmt.Errorf("session: load durable vault: %w", err)
	}
	if loaded == nil {
		return ErrNoDatabase
	}

	v, err := kdbx.Load(loaded.Blob, passphrase, m.argon2Func)
	if err != nil {
		return err
	}

	m.enterUnlocked(v, passphrase, now)
	return nil
}

// Lock clears the decrypted vault, the cached passphrase, and the
// auto-unlock token, transitioning Unlocked → Locked — spec §4.7 "lock()".
func (m *Manager) Lock(now time.Time) {
	m.clearUnlockedState()
	if m.state == StateUnlocked {
		m.state = StateLocked
	}
	_ = m.clearUnlockToken()
}

// DeleteDatabase wipes every durable store and transitions to NoDatabase
// from any state — spec §4.7 "delete_database()".
func (m *Manager) DeleteDatabase(now time.Time) error {
	m.clearUnlockedState()
	m.state = StateNoDatabase
	_ = m.clearUnlockToken()
	return m.dual.CompleteDeletion()
}

// EnsureUnlocked attempts transparent auto-unlock if the session is
// currently Locked, per spec §4.7 "Auto-unlock after restart". It is a
// no-op when already Unlocked, and returns ErrNoDatabase/ErrNotUnlocked
// otherwise.
func (m *Manager) EnsureUnlocked(now time.Time) error {
	switch m.state {
	case StateUnlocked:
		m.TouchIdle(now)
		return nil
	case StateNoDatabase:
		return ErrNoDatabase
	}

	passphrase, ok, err := m.tryAutoUnlock(now)
	if err != nil || !ok {
		return ErrNotUnlocked
	}

	loaded, err := m.dual.Load()
	if err != nil || loaded == nil {
		_ = m.clearUnlockToken()
		return ErrNotUnlocked
	}

	v, err := kdbx.Load(loaded.Blob, passphrase, m.argon2Func)
	if err != nil {
		_ = m.clearUnlockToken()
		return ErrNotUnlocked
	}

	m.enterUnlocked(v, passphrase, now)
	return nil
}

// AdoptUnlocked transitions directly to Unlocked around a vault that has
// already been decrypted and durably persisted elsewhere (the backup
// scheduler's restore path persists the recovered snapshot itself) — spec
// §4.6 "Restore" composed with §4.7's Unlocked state.
func (m *Manager) AdoptUnlocked(v *vault.Vault, passphrase string, now time.Time) {
	m.enterUnlocked(v, passphrase, now)
}

func (m *Manager) persistAndEnterUnlocked(v *vault.Vault, passphrase, reason string, now time.Time) error {
	blob, err := kdbx.Save(v, passphrase, m.argon2Func)
	if err != nil {
		return err
	}
	if _, err := m.dual.Persist(blob, map[string]any{"name": v.Meta.Name}, reason, now); err != nil {
		return err
	}
	m.enterUnlocked(v, passphrase, now)
	return nil
}

func (m *Manager) enterUnlocked(v *vault.Vault, passphrase string, now time.Time) {
	m.vault = v
	m.passphrase = passphrase
	m.state = StateUnlocked
	m.TouchIdle(now)
	_ = m.persistUnlockToken(passphrase, now)
}

func (m *Manager) clearUnlockedState() {
	m.vault = nil
	m.passphrase = ""
	m.idleDeadline = time.Time{}
	m.clipboardDeadline = time.Time{}
}
