package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// recoveryCodeAlphabet excludes visually ambiguous characters (I, O, 0, 1),
// the same concern passgen.go's ExcludeAmbiguous option addresses.
const recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	recoveryCodeGroups   = 4
	recoveryCodeGroupLen = 5
)

// DefaultRecoveryCodeCount is how many one-time recovery codes are minted
// when a database is created — spec §3 "recovery_codes".
const DefaultRecoveryCodeCount = 10

// GenerateRecoveryCodes draws n uniformly random recovery codes formatted as
// four dash-separated five-character groups, using the same CSPRNG-over-a-
// restricted-alphabet approach as passgen.go's GeneratePassphrase.
func GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("recovery code count must be positive")
	}
	codes := make([]string, n)
	for i := range codes {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

func generateRecoveryCode() (string, error) {
	max := big.NewInt(int64(len(recoveryCodeAlphabet)))
	groups := make([]string, recoveryCodeGroups)
	for g := range groups {
		buf := make([]byte, recoveryCodeGroupLen)
		for i := range buf {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate recovery code: %w", err)
			}
			buf[i] = recoveryCodeAlphabet[idx.Int64()]
		}
		groups[g] = string(buf)
	}
	return strings.Join(groups, "-"), nil
}
