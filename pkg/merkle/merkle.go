// Package merkle implements inclusion-proof verification and the
// construction-side helpers the issuing pipeline and tests rely on.
//
// Trees are balanced binary trees over 32-byte leaf hashes. When a level
// has an odd node count the last node is duplicated; this padding policy is
// load-bearing: every root and proof downstream assumes it.
package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
)

// Side marks which side of the pair a proof sibling sits on.
type Side string

const (
	// SideLeft means the sibling is the left operand of the pair hash.
	SideLeft Side = "L"
	// SideRight means the sibling is the right operand of the pair hash.
	SideRight Side = "R"
)

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Side    Side   `json:"side"`
	Sibling []byte `json:"sibling"`
}

// ErrLeafIndex is returned when a proof is requested for an index outside
// the leaf set.
var ErrLeafIndex = errors.New("leaf index out of range")

// Verifier recomputes roots with an injected general-purpose digest.
type Verifier struct {
	hasher crypto.Hasher
}

// NewVerifier returns a Verifier using the given hasher, or SHA-256 when
// nil.
func NewVerifier(h crypto.Hasher) *Verifier {
	if h == nil {
		h, _ = crypto.NewHasher(crypto.SHA256)
	}
	return &Verifier{hasher: h}
}

// VerifyInclusion recomputes the root by folding the leaf hash through the
// ordered proof steps and compares it byte-for-byte to expectedRoot. Any
// malformed step invalidates the proof.
func (v *Verifier) VerifyInclusion(leafHash []byte, proof []ProofStep, expectedRoot []byte) bool {
	if len(leafHash) != crypto.HashSize || len(expectedRoot) != crypto.HashSize {
		return false
	}
	current := leafHash
	for _, step := range proof {
		if len(step.Sibling) != crypto.HashSize {
			return false
		}
		switch step.Side {
		case SideLeft:
			current = v.pairHash(step.Sibling, current)
		case SideRight:
			current = v.pairHash(current, step.Sibling)
		default:
			return false
		}
	}
	return bytes.Equal(current, expectedRoot)
}

// ComputeRoot builds the tree bottom-up and returns its root hash. A single
// leaf is its own root. Odd levels duplicate their last node.
func (v *Verifier) ComputeRoot(leafHashes [][]byte) ([]byte, error) {
	if len(leafHashes) == 0 {
		return nil, errors.New("cannot compute root of empty leaf set")
	}
	level := make([][]byte, len(leafHashes))
	for i, leaf := range leafHashes {
		if len(leaf) != crypto.HashSize {
			return nil, fmt.Errorf("leaf %d: expected %d bytes, got %d", i, crypto.HashSize, len(leaf))
		}
		level[i] = leaf
	}
	for len(level) > 1 {
		level = v.nextLevel(level)
	}
	return level[0], nil
}

// GenerateProof returns the inclusion proof for the leaf at index, built
// with the same duplication policy as ComputeRoot.
func (v *Verifier) GenerateProof(leafHashes [][]byte, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leafHashes) {
		return nil, fmt.Errorf("%w: %d of %d leaves", ErrLeafIndex, index, len(leafHashes))
	}
	level := make([][]byte, len(leafHashes))
	copy(level, leafHashes)

	var proof []ProofStep
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		if index%2 == 0 {
			proof = append(proof, ProofStep{Side: SideRight, Sibling: level[index+1]})
		} else {
			proof = append(proof, ProofStep{Side: SideLeft, Sibling: level[index-1]})
		}
		level = v.nextLevel(level)
		index /= 2
	}
	return proof, nil
}

func (v *Verifier) nextLevel(level [][]byte) [][]byte {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([][]byte, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = v.pairHash(level[i], level[i+1])
	}
	return next
}

func (v *Verifier) pairHash(left, right []byte) []byte {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	return v.hasher.Digest(combined)
}

// VerifyInclusionProof verifies a proof with the default SHA-256 digest.
func VerifyInclusionProof(leafHash []byte, proof []ProofStep, expectedRoot []byte) bool {
	return NewVerifier(nil).VerifyInclusion(leafHash, proof, expectedRoot)
}

// ComputeRoot computes a root with the default SHA-256 digest.
func ComputeRoot(leafHashes [][]byte) ([]byte, error) {
	return NewVerifier(nil).ComputeRoot(leafHashes)
}

// GenerateProof generates a proof with the default SHA-256 digest.
func GenerateProof(leafHashes [][]byte, index int) ([]ProofStep, error) {
	return NewVerifier(nil).GenerateProof(leafHashes, index)
}
