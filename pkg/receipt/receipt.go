// Package receipt defines the run receipt data model and its verification:
// canonical hashing and multi-role detached-signature checks.
package receipt

import (
	"github.com/cyntra-labs/attestchain/pkg/canonicalize"
	"github.com/cyntra-labs/attestchain/pkg/crypto"
)

// Receipt describes a completed unit of work, subject to independent
// attestation. Its canonical serialization is hash-stable: identical
// content always yields identical bytes, whatever order the fields were
// populated in.
type Receipt struct {
	RunID         string `json:"runId"`
	WorkcellID    string `json:"workcellId,omitempty"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
	PolicyHash    string `json:"policyHash,omitempty"`
	ManifestHash  string `json:"manifestHash,omitempty"`
	BundleHash    string `json:"bundleHash,omitempty"`
	BundleURI     string `json:"bundleUri,omitempty"`
	CompletedAt   string `json:"completedAt,omitempty"`

	// Outputs and Metadata carry application-defined structured fields.
	// Map ordering never leaks into the canonical form.
	Outputs  map[string]interface{} `json:"outputs,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// RequiredSigners lists roles whose signature is mandatory: a missing
	// key or signature for one of these fails verification instead of
	// being skipped.
	RequiredSigners []string `json:"requiredSigners,omitempty"`
}

// Signature is a detached signature from a named role (e.g. "kernel",
// "verifier", "provider") over the receipt's canonical bytes.
type Signature struct {
	Role      string `json:"role"`
	PublicKey string `json:"publicKey,omitempty"`
	Signature string `json:"signature"`
}

// SignedReceipt is a receipt plus its detached signatures. Immutable once
// constructed; verification never mutates it.
type SignedReceipt struct {
	Receipt    Receipt     `json:"receipt"`
	Signatures []Signature `json:"signatures"`
}

// PublicKeySet maps role name to raw Ed25519 public key bytes. It is
// supplied by the caller; key distribution is out of scope here.
type PublicKeySet map[string][]byte

// VerificationResult reports the outcome of signature verification.
type VerificationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Canonicalize returns the exact byte sequence that is signed and hashed.
func Canonicalize(r Receipt) ([]byte, error) {
	return canonicalize.JCS(r)
}

// Hash canonicalizes the receipt and digests it under alg, returning the
// lowercase hex hash that identifies the receipt across all trust anchors.
func Hash(r Receipt, alg crypto.Algorithm) (string, error) {
	return canonicalize.CanonicalHash(r, alg)
}
