// Package anchor implements the three attestation-source adapters: the
// public transparency log, the EVM attestation registry, and the on-chain
// registry program.
//
// Adapters own I/O and source-specific interpretation only; cryptographic
// verification is delegated to pkg/crypto, pkg/merkle and pkg/ledger. A
// source that is unreachable or has no entry degrades to a nil result;
// adapters never fail the whole chain.
package anchor

import "github.com/cyntra-labs/attestchain/pkg/ledger"

// RekorEntry is the verified view of a transparency-log inclusion record.
type RekorEntry struct {
	UUID           string `json:"uuid"`
	LogID          string `json:"logId"`
	LogIndex       int64  `json:"logIndex"`
	IntegratedTime int64  `json:"integratedTime"`
	TreeSize       int64  `json:"treeSize"`
	RootHash       string `json:"rootHash"`

	// Verified is the result of the local inclusion-proof recomputation.
	// The remotely asserted inclusion is never trusted.
	Verified bool `json:"verified"`
}

// EASEntry is the verified view of an EVM attestation-registry record.
type EASEntry struct {
	UID         string `json:"uid"`
	Attester    string `json:"attester"`
	SchemaID    string `json:"schemaId"`
	TxID        string `json:"txid,omitempty"`
	Time        int64  `json:"time"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Revoked     bool   `json:"revoked"`

	// Verified is true only when the decoded payload's receipt hash is
	// byte-equal to the hash under verification and the attestation is
	// not revoked.
	Verified bool `json:"verified"`
}

// LedgerEntry is the verified view of the registry program's attestation
// account. Verified and QuorumMet are independent: a record can be
// verified by status while still short of quorum.
type LedgerEntry struct {
	Address          string        `json:"address"`
	Status           ledger.Status `json:"status"`
	AttestationCount uint8         `json:"attestationCount"`
	RequiredQuorum   uint8         `json:"requiredQuorum"`
	Verified         bool          `json:"verified"`
	QuorumMet        bool          `json:"quorumMet"`

	// Best-effort recency metadata; zero when the lookup failed.
	LastSlot      uint64 `json:"lastSlot,omitempty"`
	LastBlockTime int64  `json:"lastBlockTime,omitempty"`
}
