package token

import (
	"strings"
	"unicode"
)

// Strength scores a passphrase on a 0..4 scale, spec §3 "strength
// estimator": length points plus class-variety points, independent of the
// zxcvbn-backed policy checks in auth that gate the master passphrase
// specifically.
func Strength(pw string) int {
	score := 0

	switch {
	case len(pw) >= 20:
		score += 2
	case len(pw) >= 12:
		score += 1
	}
	if len(pw) >= 8 {
		score++
	}

	classes := classCount(pw)
	switch {
	case classes >= 4:
		score += 2
	case classes >= 3:
		score += 1
	}

	if score > 4 {
		score = 4
	}
	return score
}

func classCount(pw string) int {
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	n := 0
	for _, b := range []bool{lower, upper, digit, special} {
		if b {
			n++
		}
	}
	return n
}
