package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kelechi-eze/MedVault/internal/core"
)

var _ core.BundleConverter = (*Gemini)(nil)

const convertSystemPrompt = `You convert medical document text into a FHIR R4
Bundle. Output only the JSON bundle. The top-level object must have
"resourceType": "Bundle" and "type": "collection", with one entry per
clinical resource found (Observation, MedicationRequest, DiagnosticReport,
Condition, Immunization, Patient ...). Omit fields you cannot populate from
the text; never invent clinical values.`

// Convert turns raw extracted text into a FHIR-style bundle. The result
// is checked to be valid JSON here; the pipeline validates the type
// marker and schema before accepting it.
func (g *Gemini) Convert(ctx context.Context, text string) (json.RawMessage, error) {
	prompt := fmt.Sprintf("Convert this medical document to a FHIR Bundle:\n\n%s", text)

	raw, err := g.generate(ctx, convertSystemPrompt, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	cleaned := stripFences(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("convert: model returned invalid JSON")
	}
	return json.RawMessage(cleaned), nil
}
