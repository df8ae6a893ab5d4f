package receipt

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/cyntra-labs/attestchain/pkg/crypto"
)

// VerifySignatures checks every signature present on the receipt against
// the corresponding key in keys.
//
// A role whose key is not supplied is skipped, not failed, unless the
// receipt lists that role in RequiredSigners. Required roles must also
// actually carry a signature. Malformed signature material counts as a
// failed check, never a panic.
func VerifySignatures(sr SignedReceipt, keys PublicKeySet) VerificationResult {
	verifier := crypto.NewEd25519Verifier()

	message, err := Canonicalize(sr.Receipt)
	if err != nil {
		return VerificationResult{Errors: []string{fmt.Sprintf("canonicalize: %v", err)}}
	}

	var errs []string
	seen := make(map[string]bool, len(sr.Signatures))

	for _, sig := range sr.Signatures {
		seen[sig.Role] = true

		key, ok := keys[sig.Role]
		if !ok {
			if isRequired(sr.Receipt, sig.Role) {
				errs = append(errs, fmt.Sprintf("role %q: signature is mandatory but no key was supplied", sig.Role))
			}
			continue
		}

		sigBytes, err := hex.DecodeString(sig.Signature)
		if err != nil {
			errs = append(errs, fmt.Sprintf("role %q: signature is not valid hex", sig.Role))
			continue
		}
		if !verifier.Verify(key, message, sigBytes) {
			errs = append(errs, fmt.Sprintf("role %q: signature verification failed", sig.Role))
		}
	}

	for _, role := range sr.Receipt.RequiredSigners {
		if !seen[role] {
			errs = append(errs, fmt.Sprintf("role %q: required signature is missing", role))
		}
	}

	return VerificationResult{Valid: len(errs) == 0, Errors: errs}
}

func isRequired(r Receipt, role string) bool {
	return slices.Contains(r.RequiredSigners, role)
}
