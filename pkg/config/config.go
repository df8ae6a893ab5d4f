// Package config loads verifier configuration from the environment, with
// an optional YAML profile overlay for per-deployment endpoint sets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the endpoints and policy knobs for one verifier instance.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// RekorURL is the transparency log REST root.
	RekorURL string `yaml:"rekor_url"`

	// EASGraphQLURL is the EVM attestation index endpoint.
	EASGraphQLURL string `yaml:"eas_graphql_url"`
	// EASSchemaUID restricts attestation matches to one schema when set.
	EASSchemaUID string `yaml:"eas_schema_uid"`
	// EVMRPCURL enables best-effort block-number resolution when set.
	EVMRPCURL string `yaml:"evm_rpc_url"`

	// SolanaRPCURL is the ledger JSON-RPC endpoint.
	SolanaRPCURL string `yaml:"solana_rpc_url"`
	// ProgramID is the registry program's base58 identifier.
	ProgramID string `yaml:"program_id"`

	// RequestTimeout bounds each anchor's network round trips.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load reads configuration from environment variables, applying defaults
// for public endpoints.
func Load() *Config {
	cfg := &Config{
		LogLevel:       getenv("LOG_LEVEL", "INFO"),
		RekorURL:       getenv("REKOR_URL", "https://rekor.sigstore.dev"),
		EASGraphQLURL:  getenv("EAS_GRAPHQL_URL", "https://base.easscan.org/graphql"),
		EASSchemaUID:   os.Getenv("EAS_SCHEMA_UID"),
		EVMRPCURL:      os.Getenv("EVM_RPC_URL"),
		SolanaRPCURL:   getenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		ProgramID:      os.Getenv("ATTESTATION_PROGRAM_ID"),
		RequestTimeout: 30 * time.Second,
	}
	if raw := os.Getenv("REQUEST_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.RequestTimeout = d
		}
	}
	return cfg
}

// LoadProfile overlays a YAML profile file onto cfg. Only fields present
// in the file are overridden.
func LoadProfile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
