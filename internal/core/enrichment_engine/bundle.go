package enrichment_engine

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed bundle_schema.json
var bundleSchemaJSON string

var bundleSchema = jsonschema.MustCompileString("bundle_schema.json", bundleSchemaJSON)

// ValidateBundle checks the structured-conversion output before the
// pipeline accepts it: the top-level type marker must be "Bundle" and
// the envelope must satisfy the embedded schema. The bundle's clinical
// content stays opaque.
func ValidateBundle(raw json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("bundle is not valid JSON: %w", err)
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return fmt.Errorf("bundle is not a JSON object")
	}
	if rt, _ := obj["resourceType"].(string); rt != "Bundle" {
		return fmt.Errorf("missing Bundle type marker (resourceType=%q)", obj["resourceType"])
	}

	if err := bundleSchema.Validate(decoded); err != nil {
		return fmt.Errorf("bundle schema: %w", err)
	}
	return nil
}

// BundleEntryCount returns the number of entries in a validated bundle.
func BundleEntryCount(raw json.RawMessage) int {
	var probe struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0
	}
	return len(probe.Entry)
}
