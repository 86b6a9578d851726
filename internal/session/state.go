// Package session implements the keeper's top-level state machine:
// NoDatabase/Locked/Unlocked transitions, idle auto-lock, clipboard
// auto-clear, and transparent auto-unlock after a host restart.
package session

import (
	"errors"
	"time"

	"github.com/kdbxkeeper/keeper/internal/store"
	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

// State is one of the three session lifecycle states.
type State int

const (
	StateNoDatabase State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateNoDatabase:
		return "NoDatabase"
	case StateLocked:
		return "Locked"
	case StateUnlocked:
		return "Unlocked"
	default:
		return "Unknown"
	}
}

// Default timer durations — spec §6 "Configuration knobs".
const (
	DefaultIdleTimeout      = 15 * time.Minute
	DefaultClipboardTimeout = 15 * time.Second
	DefaultUnlockTokenTTL   = 1 * time.Hour
)

var (
	// ErrNoDatabase is returned when an operation requiring a database runs
	// in StateNoDatabase.
	ErrNoDatabase = errors.New("session: no database present")
	// ErrNotUnlocked is the dispatcher-level sentinel spec §4.8 names
	// verbatim ("NOT_UNLOCKED").
	ErrNotUnlocked = errors.New("NOT_UNLOCKED")
)

// Manager owns the session state machine. Unlike the teacher's
// sessionState, it carries no mutex: spec §5's single-threaded cooperative
// task loop means the manager is only ever touched by one handler at a
// time, and no request can interleave with another unless it explicitly
// yields.
type Manager struct {
	state      State
	vault      *vault.Vault
	passphrase string

	dual       *store.DualStore
	tokenStore *store.PrimaryStore
	keyStore   *store.PrimaryStore
	argon2Func krypto.Argon2Func
	clipboard  Clipboard

	idleTimeout       time.Duration
	idleDeadline      time.Time
	clipboardTimeout  time.Duration
	clipboardDeadline time.Time

	unlockTokenTTL time.Duration

	// pendingRecoveryCodes holds the plaintext recovery codes minted by the
	// most recent CreateDatabase call, until ConsumeGeneratedRecoveryCodes
	// hands them to the caller exactly once.
	pendingRecoveryCodes []string
}

// New constructs a Manager. tokenStore and keyStore are two small
// dedicated primary-store files: tokenStore holds the sealed auto-unlock
// token, keyStore holds the local wrapping key that seals it — kept apart
// so a graceful shutdown can delete just the token (see Shutdown) while
// leaving the wrapping key in place. hasDatabase reports whether a durable
// vault already exists on disk, which determines the initial state
// (NoDatabase vs. Locked).
func New(dual *store.DualStore, tokenStore, keyStore *store.PrimaryStore, argon2Func krypto.Argon2Func, hasDatabase bool) (*Manager, error) {
	state := StateLocked
	if !hasDatabase {
		state = StateNoDatabase
	}

	return &Manager{
		state:            state,
		dual:             dual,
		tokenStore:       tokenStore,
		keyStore:         keyStore,
		argon2Func:       argon2Func,
		idleTimeout:      DefaultIdleTimeout,
		clipboardTimeout: DefaultClipboardTimeout,
		unlockTokenTTL:   DefaultUnlockTokenTTL,
	}, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State { return m.state }

// Vault returns the in-memory vault and whether the session is currently
// Unlocked.
func (m *Manager) Vault() (*vault.Vault, bool) {
	if m.state != StateUnlocked {
		return nil, false
	}
	return m.vault, true
}

// Passphrase returns the cleartext passphrase cached for the active
// session — needed by callers that must re-serialize the vault (Save,
// Snapshot). Empty unless Unlocked.
func (m *Manager) Passphrase() string {
	if m.state != StateUnlocked {
		return ""
	}
	return m.passphrase
}

// RequireUnlocked returns ErrNotUnlocked unless the session is Unlocked.
func (m *Manager) RequireUnlocked() error {
	if m.state != StateUnlocked {
		return ErrNotUnlocked
	}
	return nil
}
