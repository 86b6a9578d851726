package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/krypto"
)

var unlockTokenAAD = []byte("session.unlock-token")

// tokenEnvelope is the persisted shape of the auto-unlock token: the
// passphrase, AES-256-GCM sealed under the local wrapping key, plus the
// expiry past which it's no longer honored (spec §6 "unlock-token TTL").
type tokenEnvelope struct {
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type keyEnvelope struct {
	Key []byte `json:"key"`
}

// persistUnlockToken seals passphrase under the local wrapping key (created
// on first use) and writes it to the dedicated token store.
func (m *Manager) persistUnlockToken(passphrase string, now time.Time) error {
	if m.tokenStore == nil {
		return nil
	}
	key, err := m.localKey()
	if err != nil {
		return err
	}

	nonce, ciphertext, err := krypto.EncryptAESGCM(key, []byte(passphrase), unlockTokenAAD)
	if err != nil {
		return fmt.Errorf("session: seal unlock token: %w", err)
	}
	env := tokenEnvelope{Nonce: nonce, Ciphertext: ciphertext, ExpiresAt: now.Add(m.unlockTokenTTL)}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("session: encode unlock token: %w", err)
	}
	return m.tokenStore.Write(data, nil)
}

// tryAutoUnlock reads and unseals the persisted token, returning the
// cleartext passphrase if it is present, unexpired, and decrypts
// successfully under the local wrapping key.
func (m *Manager) tryAutoUnlock(now time.Time) (string, bool, error) {
	if m.tokenStore == nil {
		return "", false, nil
	}
	blob, _, err := m.tokenStore.Read()
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	var env tokenEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return "", false, err
	}
	if now.After(env.ExpiresAt) {
		return "", false, nil
	}

	key, ok, err := m.readLocalKey()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	passphrase, err := krypto.DecryptAESGCM(key, env.Nonce, env.Ciphertext, unlockTokenAAD)
	if err != nil {
		return "", false, nil
	}
	return string(passphrase), true, nil
}

// clearUnlockToken deletes the token file only — spec: a graceful shutdown
// (or an explicit Lock/idle-expiry) must prevent the next clean start from
// transparently auto-unlocking, while a crash that never runs this leaves
// the token (and wrapping key) in place for Recover-style continuity.
func (m *Manager) clearUnlockToken() error {
	if m.tokenStore == nil {
		return nil
	}
	return m.tokenStore.Clear()
}

// Shutdown is the graceful-shutdown hook: it clears the auto-unlock token
// so a deliberate process exit requires the next start to re-enter the
// passphrase, mirroring the teacher's SIGINT/SIGTERM handler calling
// sess.clear().
func (m *Manager) Shutdown() error {
	return m.clearUnlockToken()
}

func (m *Manager) localKey() ([]byte, error) {
	key, ok, err := m.readLocalKey()
	if err != nil {
		return nil, err
	}
	if ok {
		return key, nil
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("session: generate local key: %w", err)
	}
	data, err := json.Marshal(keyEnvelope{Key: key})
	if err != nil {
		return nil, fmt.Errorf("session: encode local key: %w", err)
	}
	if err := m.keyStore.Write(data, nil); err != nil {
		return nil, fmt.Errorf("session: persist local key: %w", err)
	}
	return key, nil
}

func (m *Manager) readLocalKey() ([]byte, bool, error) {
	if m.keyStore == nil {
		return nil, false, nil
	}
	blob, _, err := m.keyStore.Read()
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var env keyEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, false, err
	}
	if len(env.Key) != 32 {
		return nil, false, nil
	}
	return env.Key, true, nil
}
