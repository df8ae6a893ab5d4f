// Package chain orchestrates the attestation-chain verification: it fans
// the requested trust anchors out concurrently and folds their independent
// verdicts into one aggregate result.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cyntra-labs/attestchain/pkg/anchor"
	"github.com/cyntra-labs/attestchain/pkg/crypto"
	"github.com/cyntra-labs/attestchain/pkg/receipt"
)

// RekorFetcher is the transparency-log adapter surface.
type RekorFetcher interface {
	Fetch(ctx context.Context, receiptHash string) (*anchor.RekorEntry, error)
}

// EASFetcher is the EVM attestation-registry adapter surface.
type EASFetcher interface {
	Fetch(ctx context.Context, receiptHash, runID string) (*anchor.EASEntry, error)
}

// LedgerFetcher is the registry-program adapter surface.
type LedgerFetcher interface {
	Fetch(ctx context.Context, receiptHash string) (*anchor.LedgerEntry, error)
}

// Options selects which trust anchors to consult and how to hash a full
// receipt when one is supplied.
type Options struct {
	Rekor  bool
	EAS    bool
	Solana bool

	// Algorithm is the digest flavor for hashing a supplied receipt.
	// Defaults to SHA-256.
	Algorithm crypto.Algorithm
}

// AttestationChain is the aggregate verification result. A nil per-source
// entry means that source was not requested or returned nothing; which of
// the two is visible through AllValid, since a requested source with no
// entry is a verification failure.
type AttestationChain struct {
	ReceiptHash string              `json:"receiptHash"`
	RunID       string              `json:"runId,omitempty"`
	Rekor       *anchor.RekorEntry  `json:"rekorResult,omitempty"`
	EAS         *anchor.EASEntry    `json:"easResult,omitempty"`
	Solana      *anchor.LedgerEntry `json:"solanaResult,omitempty"`
	AllValid    bool                `json:"allValid"`
}

// Verifier fans verification out across the configured anchors. Adapters
// are injected explicitly; there is no hidden global state, and a nil
// adapter simply makes that source unavailable.
type Verifier struct {
	rekor  RekorFetcher
	eas    EASFetcher
	solana LedgerFetcher
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a Verifier over the given adapters. Any adapter may be nil.
func New(rekor RekorFetcher, eas EASFetcher, solana LedgerFetcher) *Verifier {
	return &Verifier{
		rekor:  rekor,
		eas:    eas,
		solana: solana,
		logger: slog.Default().With("component", "chain"),
		tracer: otel.Tracer("github.com/cyntra-labs/attestchain/pkg/chain"),
	}
}

// VerifyReceipt resolves the canonical hash of a full receipt and verifies
// it across the requested anchors.
func (v *Verifier) VerifyReceipt(ctx context.Context, r receipt.Receipt, opts Options) (*AttestationChain, error) {
	alg := opts.Algorithm
	if alg == "" {
		alg = crypto.SHA256
	}
	hash, err := receipt.Hash(r, alg)
	if err != nil {
		return nil, fmt.Errorf("hash receipt: %w", err)
	}
	return v.verify(ctx, hash, r.RunID, opts)
}

// VerifyHash verifies an already-computed receipt hash. runID is optional
// and only feeds adapters that support a secondary lookup key.
func (v *Verifier) VerifyHash(ctx context.Context, receiptHash, runID string, opts Options) (*AttestationChain, error) {
	hash, err := crypto.NormalizeHash(receiptHash)
	if err != nil {
		return nil, err
	}
	return v.verify(ctx, hash, runID, opts)
}

func (v *Verifier) verify(ctx context.Context, hash, runID string, opts Options) (*AttestationChain, error) {
	ctx, span := v.tracer.Start(ctx, "chain.verify",
		trace.WithAttributes(attribute.String("receipt.hash", hash)))
	defer span.End()

	result := &AttestationChain{ReceiptHash: hash, RunID: runID}

	// One task per requested source. Tasks share no mutable state: each
	// writes only its own slot and validity flag, so the fan-in needs no
	// locking. Adapter errors degrade the source to absent, never fail
	// the call.
	var wg sync.WaitGroup
	requested := 0

	var rekorValid, easValid, solanaValid bool

	if opts.Rekor {
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Rekor = fetchAnchor(ctx, v, "rekor", func(ctx context.Context) (*anchor.RekorEntry, error) {
				if v.rekor == nil {
					return nil, fmt.Errorf("transparency-log adapter not configured")
				}
				return v.rekor.Fetch(ctx, hash)
			})
			rekorValid = result.Rekor != nil && result.Rekor.Verified
		}()
	}

	if opts.EAS {
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.EAS = fetchAnchor(ctx, v, "eas", func(ctx context.Context) (*anchor.EASEntry, error) {
				if v.eas == nil {
					return nil, fmt.Errorf("attestation-index adapter not configured")
				}
				return v.eas.Fetch(ctx, hash, runID)
			})
			easValid = result.EAS != nil && result.EAS.Verified && !result.EAS.Revoked
		}()
	}

	if opts.Solana {
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Solana = fetchAnchor(ctx, v, "solana", func(ctx context.Context) (*anchor.LedgerEntry, error) {
				if v.solana == nil {
					return nil, fmt.Errorf("ledger adapter not configured")
				}
				return v.solana.Fetch(ctx, hash)
			})
			solanaValid = result.Solana != nil && result.Solana.Verified && result.Solana.QuorumMet
		}()
	}

	wg.Wait()

	result.AllValid = requested > 0 &&
		(!opts.Rekor || rekorValid) &&
		(!opts.EAS || easValid) &&
		(!opts.Solana || solanaValid)

	span.SetAttributes(
		attribute.Int("chain.sources_requested", requested),
		attribute.Bool("chain.all_valid", result.AllValid),
	)
	return result, nil
}

// fetchAnchor runs one adapter under its own span, converting errors and
// panics into an absent result.
func fetchAnchor[T any](ctx context.Context, v *Verifier, name string, fetch func(context.Context) (*T, error)) (entry *T) {
	ctx, span := v.tracer.Start(ctx, "chain.fetch."+name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("anchor fetch panicked", "source", name, "panic", r)
			entry = nil
		}
		span.SetAttributes(attribute.Bool("anchor.found", entry != nil))
	}()

	entry, err := fetch(ctx)
	if err != nil {
		v.logger.Warn("anchor fetch failed", "source", name, "err", err)
		return nil
	}
	return entry
}
