package anchor

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
	"github.com/cyntra-labs/attestchain/pkg/ledger"
)

// SolanaConfig configures the registry-program adapter.
type SolanaConfig struct {
	// RPCURL is the ledger's JSON-RPC endpoint.
	RPCURL string

	// ProgramID is the registry program's base58 identifier; receipt and
	// config addresses are derived against it.
	ProgramID string
}

// RPCCaller is the generic JSON-RPC slice the adapter needs. The ledger
// speaks plain JSON-RPC 2.0, so go-ethereum's rpc.Client serves it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// SolanaSource fetches and interprets the registry program's accounts for
// a receipt. All byte-layout work is delegated to pkg/ledger.
type SolanaSource struct {
	cfg    SolanaConfig
	rpc    RPCCaller
	logger *slog.Logger
}

// NewSolanaSource dials the RPC endpoint and returns the adapter.
func NewSolanaSource(ctx context.Context, cfg SolanaConfig) (*SolanaSource, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger RPC URL is required")
	}
	if cfg.ProgramID == "" {
		return nil, fmt.Errorf("registry program id is required")
	}
	client, err := gethrpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger RPC: %w", err)
	}
	return NewSolanaSourceWithClient(cfg, client), nil
}

// NewSolanaSourceWithClient wires an existing RPC client, used by tests.
func NewSolanaSourceWithClient(cfg SolanaConfig, client RPCCaller) *SolanaSource {
	return &SolanaSource{
		cfg:    cfg,
		rpc:    client,
		logger: slog.Default().With("component", "anchor.solana"),
	}
}

// Ledger JSON-RPC wire shapes.

type accountInfoResult struct {
	Value *accountInfo `json:"value"`
}

type accountInfo struct {
	// Data is [base64Payload, encoding].
	Data     []string `json:"data"`
	Lamports uint64   `json:"lamports"`
	Owner    string   `json:"owner"`
}

type signatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
}

// Fetch derives the receipt's attestation address, parses the account, and
// combines it with the registry config's quorum. A missing attestation
// account returns (nil, nil). Verified (status) and QuorumMet (count vs
// quorum) are reported independently; callers must check both.
func (s *SolanaSource) Fetch(ctx context.Context, receiptHash string) (*LedgerEntry, error) {
	hashBytes, err := crypto.DecodeHash(receiptHash)
	if err != nil {
		return nil, err
	}

	address, _, err := ledger.DeriveReceiptAddress(hashBytes, s.cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive receipt address: %w", err)
	}

	raw, err := s.accountData(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch attestation account %s: %w", address, err)
	}
	if raw == nil {
		return nil, nil
	}

	record, err := ledger.ParseAttestationRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("parse attestation account %s: %w", address, err)
	}
	if !crypto.HashesEqual(record.ReceiptHash, receiptHash) {
		s.logger.Warn("attestation account bound to a different receipt hash",
			"address", address, "onChain", record.ReceiptHash)
		return nil, nil
	}

	quorum := s.requiredQuorum(ctx)

	entry := &LedgerEntry{
		Address:          address,
		Status:           record.Status,
		AttestationCount: record.AttestationCount,
		RequiredQuorum:   quorum,
		Verified:         record.Status == ledger.StatusVerified,
		QuorumMet:        record.AttestationCount >= quorum,
	}

	// Recency is best effort only.
	if sigs, serr := s.recentSignatures(ctx, address); serr == nil && len(sigs) > 0 {
		entry.LastSlot = sigs[0].Slot
		if sigs[0].BlockTime != nil {
			entry.LastBlockTime = *sigs[0].BlockTime
		}
	} else if serr != nil {
		s.logger.Debug("signature recency lookup failed", "address", address, "err", serr)
	}

	return entry, nil
}

// requiredQuorum reads the registry config account. An unreadable or
// absent config falls back to a quorum of 1, the program's legacy lenient
// default; the fallback is logged so operators can see it happening.
func (s *SolanaSource) requiredQuorum(ctx context.Context) uint8 {
	address, _, err := ledger.DeriveConfigAddress(s.cfg.ProgramID)
	if err != nil {
		s.logger.Warn("derive config address failed, assuming quorum 1", "err", err)
		return 1
	}
	raw, err := s.accountData(ctx, address)
	if err != nil || raw == nil {
		s.logger.Warn("registry config unreadable, assuming quorum 1", "address", address, "err", err)
		return 1
	}
	return ledger.ParseRegistryConfig(raw).RequiredQuorum
}

// accountData returns the raw account bytes, or nil when the account does
// not exist.
func (s *SolanaSource) accountData(ctx context.Context, address string) ([]byte, error) {
	var result accountInfoResult
	err := s.rpc.CallContext(ctx, &result, "getAccountInfo", address,
		map[string]interface{}{"encoding": "base64"})
	if err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	if len(result.Value.Data) == 0 {
		return nil, fmt.Errorf("account %s returned no data payload", address)
	}
	raw, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

func (s *SolanaSource) recentSignatures(ctx context.Context, address string) ([]signatureInfo, error) {
	var sigs []signatureInfo
	err := s.rpc.CallContext(ctx, &sigs, "getSignaturesForAddress", address,
		map[string]interface{}{"limit": 1})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}
