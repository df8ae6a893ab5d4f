// Package ledger decodes the on-chain registry program's fixed binary
// account layouts and recomputes the program-derived addresses those
// accounts must live at. Pure functions over byte buffers; no I/O.
package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Attestation record layout. Offsets are a wire contract with the deployed
// program; the regression tests lock them.
const (
	discriminatorSize = 8
	keySize           = 32

	submitterOffset    = discriminatorSize          // 8
	receiptHashOffset  = submitterOffset + keySize  // 40
	policyHashOffset   = receiptHashOffset + keySize
	manifestHashOffset = policyHashOffset + keySize
	bundleHashOffset   = manifestHashOffset + keySize

	uriLenOffset = bundleHashOffset + keySize // 168
	uriBufSize   = 200
	uriBufOffset = uriLenOffset + 4 // 172

	ledgerRootOffset = uriBufOffset + uriBufSize // 372
	statusOffset     = ledgerRootOffset + keySize
	countOffset      = statusOffset + 1
	slotsOffset      = countOffset + 1 // 406

	attesterSlotSize = keySize + 1 // 32-byte key + 1-byte verdict
	maxAttestations  = 10

	// AttestationRecordSize is the full fixed record size; shorter buffers
	// are a hard layout error.
	AttestationRecordSize = slotsOffset + maxAttestations*attesterSlotSize // 736
)

// Registry config layout.
const (
	authorityOffset     = discriminatorSize              // 8
	defaultPolicyOffset = authorityOffset + keySize      // 40
	quorumOffset        = defaultPolicyOffset + keySize  // 72
	registryConfigSize  = quorumOffset + 1
)

// Layout errors. These are fail-closed: a buffer that does not match the
// declared byte ranges is rejected, never guessed at.
var (
	ErrShortBuffer   = errors.New("account buffer shorter than fixed layout")
	ErrInvalidStatus = errors.New("invalid status byte")
	ErrURITooLong    = errors.New("uri length prefix exceeds reserved buffer")
	ErrBadCount      = errors.New("attestation count out of range")
)

// Status is the lifecycle state of an attestation record.
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusQuarantined
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusQuarantined:
		return "quarantined"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Attester is one attester slot: the attester's key and its verdict.
type Attester struct {
	PublicKey string `json:"publicKey"` // base58
	Approved  bool   `json:"approved"`
}

// AttestationRecord is the decoded per-receipt account.
type AttestationRecord struct {
	Submitter        string     `json:"submitter"`   // base58
	ReceiptHash      string     `json:"receiptHash"` // lowercase hex
	PolicyHash       string     `json:"policyHash"`
	ManifestHash     string     `json:"manifestHash"`
	BundleHash       string     `json:"bundleHash"`
	URI              string     `json:"uri"`
	LedgerRoot       string     `json:"ledgerRoot"`
	Status           Status     `json:"status"`
	AttestationCount uint8      `json:"attestationCount"`
	Attesters        []Attester `json:"attesters"`
}

// RegistryConfig is the decoded global policy account.
type RegistryConfig struct {
	Authority         string `json:"authority"` // base58
	DefaultPolicyHash string `json:"defaultPolicyHash"`
	RequiredQuorum    uint8  `json:"requiredQuorum"`
}

// ParseAttestationRecord decodes a raw attestation account. The 8-byte
// discriminator is validated for length only. Only the first
// AttestationCount attester slots are decoded; trailing slots are skipped
// even when non-zero.
func ParseAttestationRecord(data []byte) (*AttestationRecord, error) {
	if len(data) < AttestationRecordSize {
		return nil, fmt.Errorf("%w: attestation record needs %d bytes, got %d", ErrShortBuffer, AttestationRecordSize, len(data))
	}

	uriLen := binary.LittleEndian.Uint32(data[uriLenOffset : uriLenOffset+4])
	if uriLen > uriBufSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrURITooLong, uriLen, uriBufSize)
	}

	statusByte := data[statusOffset]
	if statusByte > uint8(StatusQuarantined) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, statusByte)
	}

	count := data[countOffset]
	if count > maxAttestations {
		return nil, fmt.Errorf("%w: %d > %d", ErrBadCount, count, maxAttestations)
	}

	attesters := make([]Attester, count)
	for i := 0; i < int(count); i++ {
		slot := data[slotsOffset+i*attesterSlotSize : slotsOffset+(i+1)*attesterSlotSize]
		attesters[i] = Attester{
			PublicKey: base58.Encode(slot[:keySize]),
			Approved:  slot[keySize] == 1,
		}
	}

	return &AttestationRecord{
		Submitter:        base58.Encode(data[submitterOffset:receiptHashOffset]),
		ReceiptHash:      hex.EncodeToString(data[receiptHashOffset:policyHashOffset]),
		PolicyHash:       hex.EncodeToString(data[policyHashOffset:manifestHashOffset]),
		ManifestHash:     hex.EncodeToString(data[manifestHashOffset:bundleHashOffset]),
		BundleHash:       hex.EncodeToString(data[bundleHashOffset:uriLenOffset]),
		URI:              string(data[uriBufOffset : uriBufOffset+int(uriLen)]),
		LedgerRoot:       hex.EncodeToString(data[ledgerRootOffset:statusOffset]),
		Status:           Status(statusByte),
		AttestationCount: count,
		Attesters:        attesters,
	}, nil
}

// ParseRegistryConfig decodes the global registry config account.
//
// Legacy lenient default: a buffer too short to reach the quorum byte
// yields RequiredQuorum == 1 instead of an error, i.e. unreadable config
// means "no extra attestation required". Kept for compatibility with the
// deployed program; see DESIGN.md before tightening.
func ParseRegistryConfig(data []byte) *RegistryConfig {
	cfg := &RegistryConfig{RequiredQuorum: 1}

	if len(data) >= defaultPolicyOffset {
		cfg.Authority = base58.Encode(data[authorityOffset:defaultPolicyOffset])
	}
	if len(data) >= quorumOffset {
		cfg.DefaultPolicyHash = hex.EncodeToString(data[defaultPolicyOffset:quorumOffset])
	}
	if len(data) >= registryConfigSize {
		cfg.RequiredQuorum = data[quorumOffset]
	}
	return cfg
}
