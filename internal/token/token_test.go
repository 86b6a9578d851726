package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kdbxkeeper/keeper/internal/token"
)

func TestChecksumIsDeterministic(t *testing.T) {
	a := token.Checksum([]byte("hello"))
	b := token.Checksum([]byte("hello"))
	if a != b {
		t.Fatalf("checksum not deterministic: %q vs %q", a, b)
	}
	if token.Checksum([]byte("hello")) == token.Checksum([]byte("world")) {
		t.Fatalf("different inputs produced the same checksum")
	}
}

func TestNewIDIsUnique(t *testing.T) {
	a := token.NewID()
	b := token.NewID()
	if a == b {
		t.Fatalf("expected distinct IDs, got the same value twice")
	}
	if a == token.NilID {
		t.Fatalf("NewID produced the nil UUID")
	}
}

func TestOpIDShape(t *testing.T) {
	id := token.OpID(time.Now())
	if !strings.HasPrefix(id, "op:") {
		t.Fatalf("expected op id to start with 'op:', got %q", id)
	}
}

func TestGeneratePassphraseLength(t *testing.T) {
	opts := token.DefaultGenerateOptions()
	opts.Length = 24
	pw, err := token.GeneratePassphrase(opts)
	if err != nil {
		t.Fatalf("GeneratePassphrase returned error: %v", err)
	}
	if len(pw) != 24 {
		t.Fatalf("expected length 24, got %d", len(pw))
	}
}

func TestGeneratePassphraseRejectsOutOfRangeLength(t *testing.T) {
	if _, err := token.GeneratePassphrase(token.GenerateOptions{Length: 2}); err == nil {
		t.Fatalf("expected error for length below minimum")
	}
	if _, err := token.GeneratePassphrase(token.GenerateOptions{Length: 100}); err == nil {
		t.Fatalf("expected error for length above maximum")
	}
}

func TestGeneratePassphraseFallsBackWithNoClassSelected(t *testing.T) {
	pw, err := token.GeneratePassphrase(token.GenerateOptions{Length: 10})
	if err != nil {
		t.Fatalf("GeneratePassphrase returned error: %v", err)
	}
	if len(pw) != 10 {
		t.Fatalf("expected length 10, got %d", len(pw))
	}
}

func TestGenerateRecoveryCodesCountAndShape(t *testing.T) {
	codes, err := token.GenerateRecoveryCodes(token.DefaultRecoveryCodeCount)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes returned error: %v", err)
	}
	if len(codes) != token.DefaultRecoveryCodeCount {
		t.Fatalf("expected %d codes, got %d", token.DefaultRecoveryCodeCount, len(codes))
	}

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if strings.Count(code, "-") != 3 {
			t.Fatalf("expected four dash-separated groups, got %q", code)
		}
		if seen[code] {
			t.Fatalf("recovery codes must be unique, got duplicate %q", code)
		}
		seen[code] = true
	}
}

func TestGenerateRecoveryCodesRejectsNonPositiveCount(t *testing.T) {
	if _, err := token.GenerateRecoveryCodes(0); err == nil {
		t.Fatalf("expected error for a zero count")
	}
}

func TestStrengthMonotonic(t *testing.T) {
	weak := token.Strength("abc")
	strong := token.Strength("C0mplex!Passphrase-2026")
	if strong <= weak {
		t.Fatalf("expected strong passphrase to score higher: weak=%d strong=%d", weak, strong)
	}
	if strong > 4 {
		t.Fatalf("strength score exceeded maximum: %d", strong)
	}
}
