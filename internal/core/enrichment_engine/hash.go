package enrichment_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kelechi-eze/MedVault/internal/models"
)

// canonicalPayload builds the stable, order-independent projection of a
// record's semantic content: filename, extracted text, bundle and
// derived fields. Volatile fields (status, counters, timestamps) never
// participate. The bundle is decoded and re-encoded so its key order
// cannot leak into the digest.
func canonicalPayload(rec *models.ProcessingRecord) ([]byte, error) {
	projection := map[string]any{
		"filename":       rec.Filename,
		"extracted_text": rec.ExtractedText,
	}

	if len(rec.Bundle) > 0 {
		var bundle any
		if err := json.Unmarshal(rec.Bundle, &bundle); err != nil {
			return nil, fmt.Errorf("decode bundle: %w", err)
		}
		projection["bundle"] = bundle
	}
	if rec.Derived != nil {
		projection["derived"] = rec.Derived
	}

	// encoding/json writes map keys in sorted order, which makes the
	// projection canonical.
	return json.Marshal(projection)
}

// ContentHash computes the sha256 digest of the canonical projection.
func ContentHash(rec *models.ProcessingRecord) (string, error) {
	payload, err := canonicalPayload(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
