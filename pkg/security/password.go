package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	passwordMinLength = 12

	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars  = "abcdefghjkmnpqrstuvwxyz"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*()-_=+"
)

// ValidatePasswordPolicy checks the provisioning password policy:
// at least 12 characters with upper case, lower case, digit and symbol.
// It returns the list of unmet requirements, empty when the password passes.
func ValidatePasswordPolicy(password string) []string {
	var missing []string
	if len(password) < passwordMinLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", passwordMinLength))
	}
	if !strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		missing = append(missing, "one uppercase letter")
	}
	if !strings.ContainsAny(password, "abcdefghijklmnopqrstuvwxyz") {
		missing = append(missing, "one lowercase letter")
	}
	if !strings.ContainsAny(password, "0123456789") {
		missing = append(missing, "one digit")
	}
	if !strings.ContainsAny(password, `!@#$%^&*(),.?":{}|<>-_=+`) {
		missing = append(missing, "one special character")
	}
	return missing
}

// GeneratePassword produces a random password satisfying the policy.
// Ambiguous characters (O/0, l/1) are excluded from the alphabets.
func GeneratePassword(length int) (string, error) {
	if length < passwordMinLength {
		length = passwordMinLength
	}
	all := upperChars + lowerChars + digitChars + symbolChars

	// One character from each class guarantees the policy holds
	chars := make([]byte, 0, length)
	for _, alphabet := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates shuffle so the class-guaranteed characters are not
	// always at the front
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("secure random source unavailable: %w", err)
	}
	return int(v.Int64()), nil
}
