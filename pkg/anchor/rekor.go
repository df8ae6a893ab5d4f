package anchor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
	"github.com/cyntra-labs/attestchain/pkg/merkle"
	"github.com/cyntra-labs/attestchain/pkg/util/resiliency"
)

// RekorConfig configures the transparency-log adapter.
type RekorConfig struct {
	// BaseURL is the log's REST API root, e.g. https://rekor.sigstore.dev.
	BaseURL string
}

// RekorSource looks up receipt hashes in a transparency log and
// re-verifies the returned inclusion proof locally.
type RekorSource struct {
	cfg    RekorConfig
	httpc  *resiliency.Client
	merkle *merkle.Verifier
	logger *slog.Logger
}

// NewRekorSource builds the adapter. A nil httpc or mv selects defaults.
func NewRekorSource(cfg RekorConfig, httpc *resiliency.Client, mv *merkle.Verifier) (*RekorSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rekor base URL is required")
	}
	if httpc == nil {
		httpc = resiliency.NewClient(resiliency.Options{Name: "rekor"})
	}
	if mv == nil {
		mv = merkle.NewVerifier(nil)
	}
	return &RekorSource{
		cfg:    cfg,
		httpc:  httpc,
		merkle: mv,
		logger: slog.Default().With("component", "anchor.rekor"),
	}, nil
}

// Transparency log REST wire shapes.

type rekorSearchRequest struct {
	Hash string `json:"hash"`
}

type rekorLogEntry struct {
	Body           string             `json:"body"`
	IntegratedTime int64              `json:"integratedTime"`
	LogID          string             `json:"logID"`
	LogIndex       int64              `json:"logIndex"`
	Verification   *rekorVerification `json:"verification,omitempty"`
}

type rekorVerification struct {
	InclusionProof *rekorInclusionProof `json:"inclusionProof,omitempty"`
}

type rekorInclusionProof struct {
	Hashes     []string `json:"hashes"`
	LogIndex   int64    `json:"logIndex"`
	RootHash   string   `json:"rootHash"`
	TreeSize   int64    `json:"treeSize"`
	Checkpoint string   `json:"checkpoint,omitempty"`
}

// Fetch looks up the receipt hash by leaf identity and returns the entry
// with its inclusion proof re-verified locally. A hash with no log entry
// returns (nil, nil).
func (s *RekorSource) Fetch(ctx context.Context, receiptHash string) (*RekorEntry, error) {
	hash, err := crypto.NormalizeHash(receiptHash)
	if err != nil {
		return nil, err
	}

	uuids, err := s.searchIndex(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("transparency log index lookup: %w", err)
	}
	if len(uuids) == 0 {
		return nil, nil
	}

	uuid := uuids[0]
	entry, err := s.getEntry(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("transparency log entry %s: %w", uuid, err)
	}

	result := &RekorEntry{
		UUID:           uuid,
		LogID:          entry.LogID,
		LogIndex:       entry.LogIndex,
		IntegratedTime: entry.IntegratedTime,
	}

	proof := entry.inclusionProof()
	if proof == nil {
		s.logger.Warn("log entry carries no inclusion proof", "uuid", uuid)
		return result, nil
	}
	result.TreeSize = proof.TreeSize
	result.RootHash = proof.RootHash
	result.Verified = s.verifyInclusion(entry, proof)
	if !result.Verified {
		s.logger.Warn("inclusion proof failed local verification", "uuid", uuid, "logIndex", entry.LogIndex)
	}
	return result, nil
}

func (e *rekorLogEntry) inclusionProof() *rekorInclusionProof {
	if e.Verification == nil {
		return nil
	}
	return e.Verification.InclusionProof
}

// verifyInclusion recomputes the tree root from the entry body and the
// proof hashes. The proof carries siblings bottom-up without sides; the
// side at each level follows from the index parity at that level.
func (s *RekorSource) verifyInclusion(entry *rekorLogEntry, proof *rekorInclusionProof) bool {
	body, err := base64.StdEncoding.DecodeString(entry.Body)
	if err != nil {
		return false
	}
	leaf := leafHash(body)

	steps := make([]merkle.ProofStep, 0, len(proof.Hashes))
	index := proof.LogIndex
	for _, h := range proof.Hashes {
		sibling, err := hex.DecodeString(h)
		if err != nil {
			return false
		}
		side := merkle.SideLeft
		if index%2 == 0 {
			side = merkle.SideRight
		}
		steps = append(steps, merkle.ProofStep{Side: side, Sibling: sibling})
		index /= 2
	}

	root, err := hex.DecodeString(proof.RootHash)
	if err != nil {
		return false
	}
	return s.merkle.VerifyInclusion(leaf, steps, root)
}

// leafHash domain-separates leaves from interior nodes with a 0x00 prefix.
func leafHash(body []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(body)
	return h.Sum(nil)
}

func (s *RekorSource) searchIndex(ctx context.Context, hash string) ([]string, error) {
	payload, err := json.Marshal(rekorSearchRequest{Hash: "sha256:" + hash})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(s.cfg.BaseURL, "/")+"/api/v1/index/retrieve", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var uuids []string
	if err := json.NewDecoder(resp.Body).Decode(&uuids); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}
	return uuids, nil
}

func (s *RekorSource) getEntry(ctx context.Context, uuid string) (*rekorLogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(s.cfg.BaseURL, "/")+"/api/v1/log/entries/"+uuid, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// The log keys the response by entry UUID.
	var entries map[string]rekorLogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode entry response: %w", err)
	}
	entry, ok := entries[uuid]
	if !ok {
		for _, e := range entries {
			entry = e
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("entry missing from response")
	}
	return &entry, nil
}
