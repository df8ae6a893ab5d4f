package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestSHA256(t *testing.T) {
	got, err := Digest(SHA256, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(got))
}

func TestDigestKeccak256(t *testing.T) {
	// Empty-input Keccak-256, the classic EVM vector.
	got, err := Digest(Keccak256, nil)
	require.NoError(t, err)
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(got))
}

func TestDigestFlavorsDiffer(t *testing.T) {
	msg := []byte("same input, different flavor")
	sha, err := Digest(SHA256, msg)
	require.NoError(t, err)
	keccak, err := Digest(Keccak256, msg)
	require.NoError(t, err)
	assert.NotEqual(t, sha, keccak)
	assert.Len(t, sha, HashSize)
	assert.Len(t, keccak, HashSize)
}

func TestNewHasherUnknownAlgorithm(t *testing.T) {
	_, err := NewHasher("md5")
	assert.Error(t, err)
}

func TestNormalizeHash(t *testing.T) {
	canonical := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	cases := []struct {
		name  string
		in    string
		want  string
		valid bool
	}{
		{"bare lowercase", canonical, canonical, true},
		{"0x prefix", "0x" + canonical, canonical, true},
		{"uppercase", "0X" + "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", canonical, true},
		{"too short", canonical[:62], "", false},
		{"too long", canonical + "ff", "", false},
		{"non-hex", "zz" + canonical[2:], "", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeHash(tc.in)
			if !tc.valid {
				assert.ErrorIs(t, err, ErrMalformedHash)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHashesEqual(t *testing.T) {
	h := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.True(t, HashesEqual(h, "0x"+h))
	assert.True(t, HashesEqual("0X"+h, h))
	assert.False(t, HashesEqual(h, h[:62]+"00"))
	assert.False(t, HashesEqual("not-a-hash", h))
}

func TestEd25519Verify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := []byte("attested run output")
	sig := ed25519.Sign(priv, msg)

	v := NewEd25519Verifier()
	assert.True(t, v.Verify(pub, msg, sig))
	assert.False(t, v.Verify(pub, []byte("tampered"), sig))

	sig[0] ^= 0xff
	assert.False(t, v.Verify(pub, msg, sig))
}

func TestEd25519VerifyMalformedInputsReturnFalse(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	msg := []byte("msg")
	sig := ed25519.Sign(priv, msg)

	v := NewEd25519Verifier()
	assert.False(t, v.Verify(pub[:16], msg, sig), "short key")
	assert.False(t, v.Verify(pub, msg, sig[:32]), "short signature")
	assert.False(t, v.Verify(nil, msg, nil), "nil material")
}

func TestVerifyHex(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	msg := []byte("payload")
	sig := ed25519.Sign(priv, msg)

	ok, err := VerifyHex(hex.EncodeToString(pub), hex.EncodeToString(sig), msg)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = VerifyHex("not hex", hex.EncodeToString(sig), msg)
	assert.Error(t, err)
}
