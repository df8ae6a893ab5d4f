// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of receipts.
//
// Canonical bytes are the cornerstone the whole chain depends on: the same
// receipt content must always serialize to the same bytes regardless of
// construction order, or hash lookups against every trust anchor silently
// miss.
package canonicalize

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with encoding/json (so struct tags apply), then
// transformed: keys sorted by UTF-16 code units, numbers in ES6 shortest
// form, no HTML escaping, no insignificant whitespace.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// JCSString returns the canonical form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash returns the hex digest of the canonical JSON form of v
// under the given algorithm.
func CanonicalHash(v interface{}, alg crypto.Algorithm) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	digest, err := crypto.Digest(alg, b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}
