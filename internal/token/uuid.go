package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is a version-4 UUID used to address vault groups and entries.
type ID = uuid.UUID

// NilID is the zero-value ID, used to mean "no parent"/"not set".
var NilID = uuid.Nil

// NewID returns a fresh version-4 UUID.
func NewID() ID {
	return uuid.New()
}

// ParseID parses a canonical UUID string.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// OpID mints a journal operation identifier, spec §4.5:
// "op:<ms-timestamp>:<uuid-v4>".
func OpID(now time.Time) string {
	return fmt.Sprintf("op:%d:%s", now.UnixMilli(), uuid.New().String())
}

// RandomToken returns a cryptographically random, URL-safe token of the
// requested byte length, base64-encoded for JSON-safe transport — the same
// shape the teacher's native-host generateToken produces for session tokens.
func RandomToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}
