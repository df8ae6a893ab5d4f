package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/cyntra-labs/attestchain/pkg/anchor"
	"github.com/cyntra-labs/attestchain/pkg/chain"
	"github.com/cyntra-labs/attestchain/pkg/config"
	"github.com/cyntra-labs/attestchain/pkg/observability"
	"github.com/cyntra-labs/attestchain/pkg/receipt"
)

// runVerifyCmd implements `attestchain verify`.
//
// Exit codes:
//
//	0 = chain verified (allValid)
//	1 = chain not verified
//	2 = runtime or input error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		receiptFile string
		hash        string
		runID       string
		sources     string
		profile     string
		jsonOutput  bool
		telemetry   bool
	)

	cmd.StringVar(&receiptFile, "receipt", "", "Path to a receipt JSON document")
	cmd.StringVar(&hash, "hash", "", "Canonical receipt hash (hex, optionally 0x-prefixed)")
	cmd.StringVar(&runID, "run-id", "", "Run id for secondary lookups (derived from the receipt when present)")
	cmd.StringVar(&sources, "sources", "rekor,eas,solana", "Comma-separated trust anchors to consult")
	cmd.StringVar(&profile, "profile", "", "YAML profile overriding environment configuration")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the attestation chain as JSON")
	cmd.BoolVar(&telemetry, "telemetry", false, "Export OTLP traces and metrics")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (receiptFile == "") == (hash == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --receipt or --hash is required")
		return 2
	}

	cfg := config.Load()
	if profile != "" {
		if err := config.LoadProfile(cfg, profile); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName: "attestchain",
		Enabled:     telemetry,
		Insecure:    true,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry setup failed: %v\n", err)
		return 2
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	opts, err := parseSources(sources)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	verifier, err := buildVerifier(ctx, cfg, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	started := time.Now()
	var result *chain.AttestationChain
	if receiptFile != "" {
		raw, err := os.ReadFile(receiptFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read receipt: %v\n", err)
			return 2
		}
		r, err := receipt.ParseAndValidate(raw)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if r.RunID == "" {
			r.RunID = uuid.NewString()
		}
		result, err = verifier.VerifyReceipt(ctx, *r, opts)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	} else {
		result, err = verifier.VerifyHash(ctx, hash, runID, opts)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	obs.RecordVerification(ctx, result.AllValid, time.Since(started))

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: encode result: %v\n", err)
			return 2
		}
	} else {
		printReport(stdout, result, opts)
	}

	if result.AllValid {
		return 0
	}
	return 1
}

func parseSources(csv string) (chain.Options, error) {
	var opts chain.Options
	for _, s := range strings.Split(csv, ",") {
		switch strings.TrimSpace(strings.ToLower(s)) {
		case "rekor":
			opts.Rekor = true
		case "eas":
			opts.EAS = true
		case "solana":
			opts.Solana = true
		case "":
		default:
			return opts, fmt.Errorf("unknown source %q (want rekor, eas, solana)", s)
		}
	}
	if !opts.Rekor && !opts.EAS && !opts.Solana {
		return opts, fmt.Errorf("at least one source must be requested")
	}
	return opts, nil
}

func buildVerifier(ctx context.Context, cfg *config.Config, opts chain.Options) (*chain.Verifier, error) {
	var (
		rekorSrc  chain.RekorFetcher
		easSrc    chain.EASFetcher
		solanaSrc chain.LedgerFetcher
	)

	if opts.Rekor {
		src, err := anchor.NewRekorSource(anchor.RekorConfig{BaseURL: cfg.RekorURL}, nil, nil)
		if err != nil {
			return nil, err
		}
		rekorSrc = src
	}
	if opts.EAS {
		var eth anchor.TransactionReceiptClient
		if cfg.EVMRPCURL != "" {
			client, err := ethclient.DialContext(ctx, cfg.EVMRPCURL)
			if err != nil {
				return nil, fmt.Errorf("dial EVM RPC: %w", err)
			}
			eth = client
		}
		src, err := anchor.NewEASSource(anchor.EASConfig{
			GraphQLURL: cfg.EASGraphQLURL,
			SchemaUID:  cfg.EASSchemaUID,
		}, nil, eth)
		if err != nil {
			return nil, err
		}
		easSrc = src
	}
	if opts.Solana {
		src, err := anchor.NewSolanaSource(ctx, anchor.SolanaConfig{
			RPCURL:    cfg.SolanaRPCURL,
			ProgramID: cfg.ProgramID,
		})
		if err != nil {
			return nil, err
		}
		solanaSrc = src
	}

	return chain.New(rekorSrc, easSrc, solanaSrc), nil
}

func printReport(w io.Writer, result *chain.AttestationChain, opts chain.Options) {
	_, _ = fmt.Fprintf(w, "receipt hash: %s\n", result.ReceiptHash)
	if result.RunID != "" {
		_, _ = fmt.Fprintf(w, "run id:       %s\n", result.RunID)
	}

	if opts.Rekor {
		if result.Rekor == nil {
			_, _ = fmt.Fprintln(w, "transparency log:  NOT FOUND")
		} else {
			_, _ = fmt.Fprintf(w, "transparency log:  %s (index %d, integrated %d)\n",
				passFail(result.Rekor.Verified), result.Rekor.LogIndex, result.Rekor.IntegratedTime)
		}
	}
	if opts.EAS {
		if result.EAS == nil {
			_, _ = fmt.Fprintln(w, "evm attestation:   NOT FOUND")
		} else {
			detail := ""
			if result.EAS.Revoked {
				detail = " (revoked)"
			}
			_, _ = fmt.Fprintf(w, "evm attestation:   %s uid=%s%s\n",
				passFail(result.EAS.Verified), result.EAS.UID, detail)
		}
	}
	if opts.Solana {
		if result.Solana == nil {
			_, _ = fmt.Fprintln(w, "ledger program:    NOT FOUND")
		} else {
			_, _ = fmt.Fprintf(w, "ledger program:    status=%s attestations=%d/%d quorumMet=%t\n",
				result.Solana.Status, result.Solana.AttestationCount,
				result.Solana.RequiredQuorum, result.Solana.QuorumMet)
		}
	}

	_, _ = fmt.Fprintf(w, "overall: %s\n", passFail(result.AllValid))
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
