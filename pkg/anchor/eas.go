package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
	"github.com/cyntra-labs/attestchain/pkg/util/resiliency"
)

// EASConfig configures the EVM attestation-registry adapter.
type EASConfig struct {
	// GraphQLURL is the attestation index endpoint, e.g.
	// https://base.easscan.org/graphql.
	GraphQLURL string

	// SchemaUID, when set, restricts matches to attestations issued under
	// this schema.
	SchemaUID string
}

// TransactionReceiptClient is the slice of ethclient.Client the adapter
// needs for best-effort block-number resolution.
type TransactionReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// EASSource queries an EVM attestation index for a record bound to a
// receipt hash. The decoded receiptHash field is the sole cryptographic
// binding; everything else is metadata.
type EASSource struct {
	cfg    EASConfig
	httpc  *resiliency.Client
	eth    TransactionReceiptClient // optional
	logger *slog.Logger
}

// NewEASSource builds the adapter. eth may be nil, disabling block-number
// resolution.
func NewEASSource(cfg EASConfig, httpc *resiliency.Client, eth TransactionReceiptClient) (*EASSource, error) {
	if cfg.GraphQLURL == "" {
		return nil, fmt.Errorf("attestation index GraphQL URL is required")
	}
	if httpc == nil {
		httpc = resiliency.NewClient(resiliency.Options{Name: "eas"})
	}
	return &EASSource{
		cfg:    cfg,
		httpc:  httpc,
		eth:    eth,
		logger: slog.Default().With("component", "anchor.eas"),
	}, nil
}

const attestationsQuery = `query Attestations($where: AttestationWhereInput) {
  attestations(where: $where, take: 20, orderBy: [{time: desc}]) {
    id
    attester
    txid
    data
    decodedDataJson
    revocationTime
    expirationTime
    time
    schemaId
  }
}`

type easAttestation struct {
	ID              string `json:"id"`
	Attester        string `json:"attester"`
	TxID            string `json:"txid"`
	Data            string `json:"data"`
	DecodedDataJSON string `json:"decodedDataJson"`
	RevocationTime  int64  `json:"revocationTime"`
	ExpirationTime  int64  `json:"expirationTime"`
	Time            int64  `json:"time"`
	SchemaID        string `json:"schemaId"`
}

// easDecodedField mirrors one element of the index's decodedDataJson array.
type easDecodedField struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value struct {
		Name  string          `json:"name"`
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"value"`
}

// Fetch queries the index for an attestation whose decoded payload carries
// the receipt hash. The run id is a secondary lookup key only: a record
// found through it is still accepted solely on the hash binding. No
// matching attestation returns (nil, nil).
func (s *EASSource) Fetch(ctx context.Context, receiptHash, runID string) (*EASEntry, error) {
	hash, err := crypto.NormalizeHash(receiptHash)
	if err != nil {
		return nil, err
	}

	candidates, err := s.search(ctx, "0x"+hash)
	if err != nil {
		return nil, fmt.Errorf("attestation index search by hash: %w", err)
	}
	if len(candidates) == 0 && runID != "" {
		candidates, err = s.search(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("attestation index search by run id: %w", err)
		}
	}

	att := s.selectCandidate(candidates)
	if att == nil {
		return nil, nil
	}

	entry := &EASEntry{
		UID:      att.ID,
		Attester: att.Attester,
		SchemaID: att.SchemaID,
		TxID:     att.TxID,
		Time:     att.Time,
		Revoked:  att.RevocationTime != 0,
	}

	// Sole cryptographic binding: the decoded receiptHash field must be
	// byte-equal to the hash under verification. Absence is rejection.
	bound := false
	if decoded, ok := decodedField(att.DecodedDataJSON, "receiptHash"); ok {
		bound = crypto.HashesEqual(decoded, hash)
	}
	entry.Verified = bound && !entry.Revoked

	// Block number is best effort; failure never invalidates the entry.
	if s.eth != nil && att.TxID != "" {
		if rcpt, rerr := s.eth.TransactionReceipt(ctx, common.HexToHash(att.TxID)); rerr == nil && rcpt.BlockNumber != nil {
			entry.BlockNumber = rcpt.BlockNumber.Uint64()
		} else if rerr != nil {
			s.logger.Debug("block number lookup failed", "txid", att.TxID, "err", rerr)
		}
	}

	return entry, nil
}

// selectCandidate picks the first attestation passing the schema filter.
func (s *EASSource) selectCandidate(candidates []easAttestation) *easAttestation {
	for i := range candidates {
		if s.cfg.SchemaUID != "" && !strings.EqualFold(candidates[i].SchemaID, s.cfg.SchemaUID) {
			continue
		}
		return &candidates[i]
	}
	return nil
}

// decodedField extracts a named string field from the decodedDataJson
// payload.
func decodedField(decodedDataJSON, name string) (string, bool) {
	if decodedDataJSON == "" {
		return "", false
	}
	var fields []easDecodedField
	if err := json.Unmarshal([]byte(decodedDataJSON), &fields); err != nil {
		return "", false
	}
	for _, f := range fields {
		if f.Name != name {
			continue
		}
		var v string
		if err := json.Unmarshal(f.Value.Value, &v); err != nil {
			return "", false
		}
		return v, true
	}
	return "", false
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Attestations []easAttestation `json:"attestations"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

func (s *EASSource) search(ctx context.Context, contains string) ([]easAttestation, error) {
	body, err := json.Marshal(graphqlRequest{
		Query: attestationsQuery,
		Variables: map[string]interface{}{
			"where": map[string]interface{}{
				"decodedDataJson": map[string]interface{}{"contains": contains},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", out.Errors[0].Message)
	}
	return out.Data.Attestations, nil
}
