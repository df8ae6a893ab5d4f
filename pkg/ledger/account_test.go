package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRecord assembles a syntactically valid attestation account buffer
// with recognizable per-field markers.
func buildRecord(t *testing.T, mutate func(buf []byte)) []byte {
	t.Helper()
	buf := make([]byte, AttestationRecordSize)

	fill := func(offset int, b byte) {
		for i := 0; i < 32; i++ {
			buf[offset+i] = b
		}
	}
	fill(submitterOffset, 0x01)
	fill(receiptHashOffset, 0x02)
	fill(policyHashOffset, 0x03)
	fill(manifestHashOffset, 0x04)
	fill(bundleHashOffset, 0x05)
	fill(ledgerRootOffset, 0x06)

	uri := []byte("ipfs://bafybundle")
	binary.LittleEndian.PutUint32(buf[uriLenOffset:], uint32(len(uri)))
	copy(buf[uriBufOffset:], uri)

	buf[statusOffset] = uint8(StatusVerified)
	buf[countOffset] = 2
	for i := 0; i < 2; i++ {
		slot := buf[slotsOffset+i*attesterSlotSize:]
		for j := 0; j < 32; j++ {
			slot[j] = byte(0x10 + i)
		}
		slot[32] = 1 // approve
	}

	if mutate != nil {
		mutate(buf)
	}
	return buf
}

func TestByteOffsetInvariants(t *testing.T) {
	// Regression lock on the wire layout.
	assert.Equal(t, 8, submitterOffset)
	assert.Equal(t, 40, receiptHashOffset)
	assert.Equal(t, 168, uriLenOffset)
	assert.Equal(t, 172, uriBufOffset)
	assert.Equal(t, 372, ledgerRootOffset)
	assert.Equal(t, 404, statusOffset)
	assert.Equal(t, 405, countOffset)
	assert.Equal(t, 406, slotsOffset)
	assert.Equal(t, 33, attesterSlotSize)
	assert.Equal(t, 736, AttestationRecordSize)
	assert.Equal(t, 72, quorumOffset)
}

func TestParseAttestationRecord(t *testing.T) {
	rec, err := ParseAttestationRecord(buildRecord(t, nil))
	require.NoError(t, err)

	assert.Equal(t, base58.Encode(bytes.Repeat([]byte{0x01}, 32)), rec.Submitter)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x02}, 32)), rec.ReceiptHash)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x03}, 32)), rec.PolicyHash)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x04}, 32)), rec.ManifestHash)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x05}, 32)), rec.BundleHash)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x06}, 32)), rec.LedgerRoot)
	assert.Equal(t, "ipfs://bafybundle", rec.URI)
	assert.Equal(t, StatusVerified, rec.Status)
	assert.Equal(t, uint8(2), rec.AttestationCount)
	require.Len(t, rec.Attesters, 2)
	assert.True(t, rec.Attesters[0].Approved)
	assert.True(t, rec.Attesters[1].Approved)
}

func TestParseAttestationRecordStatusMapping(t *testing.T) {
	for statusByte, want := range map[byte]Status{
		0: StatusPending,
		1: StatusVerified,
		2: StatusQuarantined,
	} {
		rec, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
			buf[statusOffset] = statusByte
		}))
		require.NoError(t, err)
		assert.Equal(t, want, rec.Status)
	}

	for _, bad := range []byte{3, 7, 0xff} {
		_, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
			buf[statusOffset] = bad
		}))
		assert.ErrorIs(t, err, ErrInvalidStatus, "status byte %d", bad)
	}
}

func TestParseAttestationRecordShortBuffer(t *testing.T) {
	buf := buildRecord(t, nil)
	_, err := ParseAttestationRecord(buf[:AttestationRecordSize-1])
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = ParseAttestationRecord(nil)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestParseAttestationRecordOversizedURILength(t *testing.T) {
	_, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		binary.LittleEndian.PutUint32(buf[uriLenOffset:], uriBufSize+1)
	}))
	assert.ErrorIs(t, err, ErrURITooLong)
}

func TestParseAttestationRecordURIPaddingSkipped(t *testing.T) {
	rec, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		// Garbage beyond the declared length must never leak into the URI.
		for i := uriBufOffset + 17; i < uriBufOffset+uriBufSize; i++ {
			buf[i] = 0xee
		}
	}))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafybundle", rec.URI)
}

func TestParseAttestationRecordCountBounds(t *testing.T) {
	_, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		buf[countOffset] = 11
	}))
	assert.ErrorIs(t, err, ErrBadCount)

	rec, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		buf[countOffset] = 0
	}))
	require.NoError(t, err)
	assert.Empty(t, rec.Attesters)
}

func TestParseAttestationRecordTrailingSlotsIgnored(t *testing.T) {
	rec, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		// Write junk into slots 3..9; only the first two are meaningful.
		for i := 2 * attesterSlotSize; i < maxAttestations*attesterSlotSize; i++ {
			buf[slotsOffset+i] = 0xab
		}
	}))
	require.NoError(t, err)
	assert.Len(t, rec.Attesters, 2)
}

func TestParseAttestationRecordVerdicts(t *testing.T) {
	rec, err := ParseAttestationRecord(buildRecord(t, func(buf []byte) {
		buf[slotsOffset+attesterSlotSize+32] = 0 // second attester rejects
	}))
	require.NoError(t, err)
	assert.True(t, rec.Attesters[0].Approved)
	assert.False(t, rec.Attesters[1].Approved)
}

func TestParseRegistryConfig(t *testing.T) {
	buf := make([]byte, registryConfigSize)
	for i := authorityOffset; i < defaultPolicyOffset; i++ {
		buf[i] = 0x07
	}
	for i := defaultPolicyOffset; i < quorumOffset; i++ {
		buf[i] = 0x08
	}
	buf[quorumOffset] = 3

	cfg := ParseRegistryConfig(buf)
	assert.Equal(t, base58.Encode(bytes.Repeat([]byte{0x07}, 32)), cfg.Authority)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0x08}, 32)), cfg.DefaultPolicyHash)
	assert.Equal(t, uint8(3), cfg.RequiredQuorum)
}

func TestParseRegistryConfigShortBufferDefaultsQuorum(t *testing.T) {
	// Lenient legacy behavior: an unreachable quorum byte means quorum 1.
	cfg := ParseRegistryConfig(make([]byte, quorumOffset))
	assert.Equal(t, uint8(1), cfg.RequiredQuorum)

	cfg = ParseRegistryConfig(nil)
	assert.Equal(t, uint8(1), cfg.RequiredQuorum)
}
