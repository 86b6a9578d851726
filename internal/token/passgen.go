package token

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerChars    = "abcdefghijklmnopqrstuvwxyz"
	upperChars    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars    = "0123456789"
	specialChars  = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"
	ambiguousRune = "Il1O0"
)

// GenerateOptions configures a generated passphrase, spec §3 "Password
// Generator Config".
type GenerateOptions struct {
	Length            int
	IncludeUpper      bool
	IncludeLower      bool
	IncludeDigits     bool
	IncludeSpecial    bool
	ExcludeAmbiguous  bool
}

// DefaultGenerateOptions returns a 16-character LUDS passphrase policy.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Length:         16,
		IncludeUpper:   true,
		IncludeLower:   true,
		IncludeDigits:  true,
		IncludeSpecial: true,
	}
}

// GeneratePassphrase draws a uniformly random passphrase from the character
// classes selected by opts. Length must be in [4, 64]; if no class is
// selected, it falls back to lowercase+digits so generation never fails
// outright.
func GeneratePassphrase(opts GenerateOptions) (string, error) {
	if opts.Length < 4 || opts.Length > 64 {
		return "", errors.New("passphrase length must be between 4 and 64")
	}

	alphabet := ""
	if opts.IncludeLower {
		alphabet += lowerChars
	}
	if opts.IncludeUpper {
		alphabet += upperChars
	}
	if opts.IncludeDigits {
		alphabet += digitChars
	}
	if opts.IncludeSpecial {
		alphabet += specialChars
	}
	if alphabet == "" {
		alphabet = lowerChars + digitChars
	}
	if opts.ExcludeAmbiguous {
		alphabet = stripRunes(alphabet, ambiguousRune)
	}
	if alphabet == "" {
		return "", errors.New("no characters left to draw from")
	}

	out := make([]byte, opts.Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

func stripRunes(s, cut string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		skip := false
		for j := 0; j < len(cut); j++ {
			if cut[j] == c {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return string(out)
}
