package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return signer{pub: pub, priv: priv}
}

func signReceipt(t *testing.T, r Receipt, roles map[string]signer) SignedReceipt {
	t.Helper()
	message, err := Canonicalize(r)
	require.NoError(t, err)

	sr := SignedReceipt{Receipt: r}
	for role, s := range roles {
		sr.Signatures = append(sr.Signatures, Signature{
			Role:      role,
			PublicKey: hex.EncodeToString(s.pub),
			Signature: hex.EncodeToString(ed25519.Sign(s.priv, message)),
		})
	}
	return sr
}

func TestVerifySignaturesAllRolesValid(t *testing.T) {
	kernel, verifier := newSigner(t), newSigner(t)
	sr := signReceipt(t, sampleReceipt(), map[string]signer{
		"kernel":   kernel,
		"verifier": verifier,
	})

	result := VerifySignatures(sr, PublicKeySet{
		"kernel":   kernel.pub,
		"verifier": verifier.pub,
	})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestVerifySignaturesMissingKeyIsSkipped(t *testing.T) {
	kernel, provider := newSigner(t), newSigner(t)
	sr := signReceipt(t, sampleReceipt(), map[string]signer{
		"kernel":   kernel,
		"provider": provider,
	})

	// No provider key supplied and the receipt does not require one.
	result := VerifySignatures(sr, PublicKeySet{"kernel": kernel.pub})
	assert.True(t, result.Valid)
}

func TestVerifySignaturesRequiredRoleNeedsKey(t *testing.T) {
	kernel := newSigner(t)
	r := sampleReceipt()
	r.RequiredSigners = []string{"kernel"}
	sr := signReceipt(t, r, map[string]signer{"kernel": kernel})

	result := VerifySignatures(sr, PublicKeySet{})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "kernel")
}

func TestVerifySignaturesRequiredRoleNeedsSignature(t *testing.T) {
	kernel := newSigner(t)
	r := sampleReceipt()
	r.RequiredSigners = []string{"kernel", "verifier"}
	sr := signReceipt(t, r, map[string]signer{"kernel": kernel})

	result := VerifySignatures(sr, PublicKeySet{"kernel": kernel.pub})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "verifier")
}

func TestVerifySignaturesBadSignature(t *testing.T) {
	kernel, imposter := newSigner(t), newSigner(t)
	sr := signReceipt(t, sampleReceipt(), map[string]signer{"kernel": kernel})

	result := VerifySignatures(sr, PublicKeySet{"kernel": imposter.pub})
	assert.False(t, result.Valid)
}

func TestVerifySignaturesTamperedReceipt(t *testing.T) {
	kernel := newSigner(t)
	sr := signReceipt(t, sampleReceipt(), map[string]signer{"kernel": kernel})
	sr.Receipt.RunID = "run-tampered"

	result := VerifySignatures(sr, PublicKeySet{"kernel": kernel.pub})
	assert.False(t, result.Valid)
}

func TestVerifySignaturesMalformedHexSignature(t *testing.T) {
	kernel := newSigner(t)
	sr := SignedReceipt{
		Receipt:    sampleReceipt(),
		Signatures: []Signature{{Role: "kernel", Signature: "zz-not-hex"}},
	}

	result := VerifySignatures(sr, PublicKeySet{"kernel": kernel.pub})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "hex")
}
