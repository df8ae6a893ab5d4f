// Package crypto provides the content-addressing and signature primitives
// the attestation chain is verified against.
//
// Everything in this package is pure and stateless: no I/O, no globals.
// Implementations are injected into the orchestrator and adapters through
// the narrow Hasher / SignatureVerifier interfaces so tests can substitute
// deterministic fakes.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Algorithm selects a digest flavor for content addressing.
type Algorithm string

const (
	// SHA256 is the general-purpose digest used by the transparency log
	// and the ledger program.
	SHA256 Algorithm = "sha256"

	// Keccak256 is the Ethereum-compatible digest used by the EVM
	// attestation registry.
	Keccak256 Algorithm = "keccak256"
)

// HashSize is the byte length of every digest this package produces.
const HashSize = 32

// Hasher computes a 32-byte digest over arbitrary bytes.
type Hasher interface {
	Digest(data []byte) []byte
	Algorithm() Algorithm
}

// NewHasher returns the Hasher for the given algorithm.
func NewHasher(alg Algorithm) (Hasher, error) {
	switch alg {
	case SHA256, "":
		return sha256Hasher{}, nil
	case Keccak256:
		return keccakHasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}

// Digest hashes data with the given algorithm. Convenience over NewHasher.
func Digest(alg Algorithm, data []byte) ([]byte, error) {
	h, err := NewHasher(alg)
	if err != nil {
		return nil, err
	}
	return h.Digest(data), nil
}

type sha256Hasher struct{}

func (sha256Hasher) Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (sha256Hasher) Algorithm() Algorithm { return SHA256 }

type keccakHasher struct{}

func (keccakHasher) Digest(data []byte) []byte {
	// Legacy Keccak, not FIPS 202 SHA3: this is what EVM tooling hashes with.
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func (keccakHasher) Algorithm() Algorithm { return Keccak256 }
