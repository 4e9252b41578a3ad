package policy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema validates policy documents coming from DataHaven before
// they are trusted. A document that fails validation falls back to the
// default policy rather than poisoning routing decisions.
const documentSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"mode": {
			"type": "string",
			"enum": ["STRICT", "BALANCED", "PERFORMANCE"]
		},
		"allow_cloud": { "type": "boolean" },
		"max_tokens": { "type": "integer", "minimum": 1 },
		"require_pii_masking": { "type": "boolean" },
		"compression_enabled": { "type": "boolean" },
		"whitelisted_providers": {
			"type": "array",
			"items": { "type": "string", "minLength": 1 }
		}
	},
	"additionalProperties": true
}`

var compiledSchema = jsonschema.MustCompileString("policy.schema.json", documentSchema)

// ParseDocument validates and decodes a policy document. Fields absent from
// the document keep their default values; a structurally invalid document is
// an error.
func ParseDocument(data []byte) (Policy, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("policy document: decode: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Policy{}, fmt.Errorf("policy document: schema: %w", err)
	}

	p := Default()
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("policy document: unmarshal: %w", err)
	}
	p.Mode = ParseMode(string(p.Mode))
	return p, nil
}
