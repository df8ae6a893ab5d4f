package receipt

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON is the boundary contract for incoming receipt documents.
// Structural validation happens here; cryptographic binding happens later.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["runId"],
  "properties": {
    "runId": {"type": "string", "minLength": 1},
    "workcellId": {"type": "string"},
    "schemaVersion": {"type": "string"},
    "policyHash": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$"},
    "manifestHash": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$"},
    "bundleHash": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$"},
    "bundleUri": {"type": "string"},
    "completedAt": {"type": "string"},
    "outputs": {"type": "object"},
    "metadata": {"type": "object"},
    "requiredSigners": {"type": "array", "items": {"type": "string"}}
  }
}`

// supportedSchemaRange gates which receipt schema versions this verifier
// understands. Receipts without a schemaVersion predate versioning and are
// accepted.
const supportedSchemaRange = ">= 1.0.0, < 2.0.0"

var receiptSchema = jsonschema.MustCompileString("receipt.schema.json", schemaJSON)

// ParseAndValidate decodes a raw receipt document, enforcing the JSON
// Schema and the supported schema version range. Validation failures are
// hard input errors.
func ParseAndValidate(raw []byte) (*Receipt, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("receipt is not valid JSON: %w", err)
	}
	if err := receiptSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("receipt failed schema validation: %w", err)
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("receipt decode failed: %w", err)
	}

	if r.SchemaVersion != "" {
		v, err := semver.NewVersion(r.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("receipt schemaVersion %q is not a semantic version: %w", r.SchemaVersion, err)
		}
		constraint, err := semver.NewConstraint(supportedSchemaRange)
		if err != nil {
			return nil, fmt.Errorf("bad schema version constraint: %w", err)
		}
		if !constraint.Check(v) {
			return nil, fmt.Errorf("receipt schemaVersion %s outside supported range %q", v, supportedSchemaRange)
		}
	}

	return &r, nil
}
