package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/kdbxkeeper/keeper/krypto"
)

const protectedSaltLen = 16

// maskKey is generated once per process and never persisted; it backs the
// in-memory masking of ProtectedValue, independent of whatever key derives
// from the user's master passphrase. Losing it on process exit is the point:
// a ProtectedValue's ciphertext is meaningless outside the process that
// created it (spec §3: "Protected Value ... in-memory representation is
// masked"; §9: "Avoid cloning Protected Values across logs or error
// messages").
var maskKey = func() []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		panic(fmt.Sprintf("vault: cannot seed protected-value mask key: %v", err))
	}
	return k
}()

// ProtectedValue is a string whose cleartext never sits around in memory as a
// plain Go string. It owns an opaque ciphertext buffer and a per-instance
// random salt; the cleartext is only materialized by Reveal, matching the
// "linear ownership" design note in spec §9.
type ProtectedValue struct {
	ciphertext []byte
	salt       []byte
}

// NewProtectedValue masks plaintext immediately, never retaining it.
func NewProtectedValue(plaintext string) (*ProtectedValue, error) {
	salt := make([]byte, protectedSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate protected salt: %w", err)
	}

	key, err := krypto.HKDFSHA256(maskKey, salt, []byte("protected-value"), 32)
	if err != nil {
		return nil, fmt.Errorf("derive mask key: %w", err)
	}
	defer zero(key)

	nonce, ciphertext, err := krypto.EncryptAESGCM(key, []byte(plaintext), nil)
	if err != nil {
		return nil, fmt.Errorf("mask value: %w", err)
	}

	return &ProtectedValue{
		ciphertext: append(nonce, ciphertext...),
		salt:       salt,
	}, nil
}

// Reveal materializes the cleartext. Callers must call Cleartext.Zero when
// done; structural logging of a ProtectedValue (its %v/%s form) never prints
// the cleartext, only a redaction marker.
func (p *ProtectedValue) Reveal() (Cleartext, error) {
	if p == nil || len(p.ciphertext) < 12 {
		return Cleartext{}, errors.New("protected value is empty or malformed")
	}

	key, err := krypto.HKDFSHA256(maskKey, p.salt, []byte("protected-value"), 32)
	if err != nil {
		return Cleartext{}, fmt.Errorf("derive mask key: %w", err)
	}
	defer zero(key)

	nonce := p.ciphertext[:12]
	ct := p.ciphertext[12:]
	plain, err := krypto.DecryptAESGCM(key, nonce, ct, nil)
	if err != nil {
		return Cleartext{}, fmt.Errorf("reveal protected value: %w", err)
	}

	return Cleartext{buf: plain}, nil
}

// String never leaks the cleartext; it exists so ProtectedValue is safe to
// pass to fmt/log call sites by accident.
func (p *ProtectedValue) String() string {
	return "<protected>"
}

// Clone duplicates the masked representation without ever touching the
// cleartext, used when snapshotting history.
func (p *ProtectedValue) Clone() *ProtectedValue {
	if p == nil {
		return nil
	}
	ct := make([]byte, len(p.ciphertext))
	copy(ct, p.ciphertext)
	salt := make([]byte, len(p.salt))
	copy(salt, p.salt)
	return &ProtectedValue{ciphertext: ct, salt: salt}
}

// Cleartext is a scoped view of a revealed ProtectedValue. Its zero value is
// an empty string; always call Zero once the value is no longer needed.
type Cleartext struct {
	buf []byte
}

func (c Cleartext) String() string { return string(c.buf) }

// Zero overwrites the revealed bytes in place.
func (c Cleartext) Zero() {
	zero(c.buf)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
