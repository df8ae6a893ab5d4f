package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// SignatureVerifier checks a detached signature over a message.
// Implementations must treat malformed key or signature material as a
// failed verification, not a panic or an error.
type SignatureVerifier interface {
	Verify(publicKey, message, signature []byte) bool
}

// Ed25519Verifier implements SignatureVerifier for the 32-byte key /
// 64-byte signature scheme receipts are signed with.
type Ed25519Verifier struct{}

// NewEd25519Verifier returns a stateless Ed25519 verifier.
func NewEd25519Verifier() Ed25519Verifier { return Ed25519Verifier{} }

func (Ed25519Verifier) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifyHex verifies a hex-encoded signature against a hex-encoded public
// key. Decoding failures are reported as an error so callers can tell
// malformed input apart from a signature that simply does not check out.
func VerifyHex(pubKeyHex, sigHex string, message []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	return Ed25519Verifier{}.Verify(pubKey, message, sig), nil
}
