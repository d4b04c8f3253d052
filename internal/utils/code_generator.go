package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeAlphabet is uppercase letters and digits without the look-alikes 0, O, 1 and I.
// Lowercase is never produced, so l cannot appear either.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode creates a random code of the given length over CodeAlphabet
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}

	max := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		buf[i] = CodeAlphabet[idx.Int64()]
	}

	return string(buf), nil
}

// IsValidCode reports whether code has the given length and only alphabet characters
func IsValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isAlphabetByte(code[i]) {
			return false
		}
	}
	return true
}

func isAlphabetByte(b byte) bool {
	for i := 0; i < len(CodeAlphabet); i++ {
		if CodeAlphabet[i] == b {
			return true
		}
	}
	return false
}
