package krypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Variant identifies which Argon2 flavor a container header requests.
// The numeric values match the KDBX/Argon2 RFC 9106 type codes so they can be
// written to disk verbatim.
type Argon2Variant uint32

const (
	Argon2d  Argon2Variant = 0
	Argon2id Argon2Variant = 2
)

// Argon2Params captures the tunable parameters for an Argon2 derivation, as
// they travel inside a KDBX KDF parameters block.
type Argon2Params struct {
	Password    []byte
	Salt        []byte
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	HashLength  uint32
	Type        Argon2Variant
	Version     uint32
}

// Argon2Func derives key material from a passphrase. The codec never embeds
// an Argon2 implementation itself (spec: "the Argon2 primitive itself ... must
// be provided by an external hash library"); callers hand the codec one of
// these, typically DefaultArgon2Func below.
type Argon2Func func(p Argon2Params) ([]byte, error)

// DefaultArgon2Func derives keys using golang.org/x/crypto/argon2, the same
// library the teacher repo already depends on for its single-variant KDF.
func DefaultArgon2Func(p Argon2Params) ([]byte, error) {
	if len(p.Password) == 0 {
		return nil, errors.New("password is required")
	}
	if len(p.Salt) == 0 {
		return nil, errors.New("salt is required")
	}
	if p.HashLength == 0 {
		return nil, errors.New("hash length must be positive")
	}
	if p.MemoryKiB == 0 {
		return nil, errors.New("memory parameter must be positive")
	}
	if p.Iterations == 0 {
		return nil, errors.New("iteration parameter must be positive")
	}
	if p.Parallelism == 0 {
		return nil, errors.New("parallelism parameter must be positive")
	}

	var key []byte
	switch p.Type {
	case Argon2id:
		key = argon2.IDKey(p.Password, p.Salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.HashLength)
	case Argon2d:
		key = argon2.Key(p.Password, p.Salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.HashLength)
	default:
		return nil, fmt.Errorf("unsupported argon2 variant %d", p.Type)
	}
	if uint32(len(key)) != p.HashLength {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// DefaultKDFParams returns the parameters the keeper uses when creating a new
// container: Argon2id, 64MiB, 3 passes, single-threaded — the same shape the
// teacher's DefaultArgon2Params used for its MEK wrapping key.
func DefaultKDFParams() Argon2Params {
	return Argon2Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 1,
		HashLength:  32,
		Type:        Argon2id,
		Version:     0x13,
	}
}

// NewRandomSalt returns a cryptographically secure random salt of length n bytes.
func NewRandomSalt(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("salt length must be positive")
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
