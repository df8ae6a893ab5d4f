package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHash is returned when a hash string fails boundary validation.
var ErrMalformedHash = errors.New("malformed hash")

// hexHashLen is the character length of a hex-encoded 32-byte digest.
const hexHashLen = 2 * HashSize

// NormalizeHash validates and canonicalizes a hex hash string: the optional
// 0x prefix is stripped and the result lower-cased. Wrong length or non-hex
// characters are a hard input error, never coerced.
func NormalizeHash(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hexHashLen {
		return "", fmt.Errorf("%w: expected %d hex chars, got %d", ErrMalformedHash, hexHashLen, len(s))
	}
	s = strings.ToLower(s)
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return s, nil
}

// DecodeHash normalizes a hex hash string and returns its 32 raw bytes.
func DecodeHash(s string) ([]byte, error) {
	n, err := NormalizeHash(s)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(n)
}

// HashesEqual reports whether two hex hash strings denote the same digest,
// ignoring 0x prefixes and case. Malformed input compares unequal.
func HashesEqual(a, b string) bool {
	na, err := NormalizeHash(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeHash(b)
	if err != nil {
		return false
	}
	return na == nb
}
