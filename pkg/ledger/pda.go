package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Seed prefixes the registry program derives its account addresses from.
const (
	receiptSeed = "receipt"
	configSeed  = "config"

	pdaMarker     = "ProgramDerivedAddress"
	maxSeedLen    = 32
	programKeyLen = 32
)

var (
	// ErrBadProgramID is returned for a program identifier that is not a
	// 32-byte base58 key.
	ErrBadProgramID = errors.New("invalid program id")
	// ErrNoBumpFound means no off-curve address exists for the seeds.
	// Probability is negligible for honest inputs; surfaced rather than
	// looped past so callers see it.
	ErrNoBumpFound = errors.New("unable to find a viable program address bump")
)

// DeriveReceiptAddress returns the deterministic address (and bump) of the
// attestation record for a 32-byte receipt hash under programID. Same
// inputs always yield the same pair.
func DeriveReceiptAddress(receiptHash []byte, programID string) (string, uint8, error) {
	if len(receiptHash) != keySize {
		return "", 0, fmt.Errorf("receipt hash must be %d bytes, got %d", keySize, len(receiptHash))
	}
	return findProgramAddress([][]byte{[]byte(receiptSeed), receiptHash}, programID)
}

// DeriveConfigAddress returns the deterministic address (and bump) of the
// program's global registry config account.
func DeriveConfigAddress(programID string) (string, uint8, error) {
	return findProgramAddress([][]byte{[]byte(configSeed)}, programID)
}

// findProgramAddress searches bump 255 down to 0 for the first candidate
// that is not a valid ed25519 curve point, which is what makes the address
// unspendable by any keypair.
func findProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := base58.Decode(programID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrBadProgramID, err)
	}
	if len(program) != programKeyLen {
		return "", 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrBadProgramID, programKeyLen, len(program))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return "", 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLen)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		candidate := h.Sum(nil)

		if !isOnCurve(candidate) {
			return base58.Encode(candidate), uint8(bump), nil
		}
	}
	return "", 0, ErrNoBumpFound
}

// isOnCurve reports whether b decompresses to a valid ed25519 point.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
