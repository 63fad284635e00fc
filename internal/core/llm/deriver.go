package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

var _ core.FieldDeriver = (*Gemini)(nil)

const deriveSystemPrompt = `You summarize structured medical data into short
display fields for a health record list view. Categories: "Lab Results",
"Imaging", "Medications", "Visit Summary", "Immunizations", "Insurance",
"Other". Keep the summary under 40 words. Dates as YYYY-MM-DD.`

const deriveUserPrompt = `Derive display fields from this FHIR bundle%s. Respond with JSON:
{"category": "", "title": "", "summary": "", "date": "", "provider": "", "institution": "", "subject": ""}

Bundle:
%s`

// Derive computes the short display fields from a bundle, optionally
// grounded by the original document text.
func (g *Gemini) Derive(ctx context.Context, bundle json.RawMessage, contextText string) (*models.DerivedFields, error) {
	hint := ""
	if contextText != "" {
		if len(contextText) > maxDetectChars {
			contextText = contextText[:maxDetectChars]
		}
		hint = fmt.Sprintf(" (original document text follows the bundle)\n\nOriginal text:\n%s", contextText)
	}

	raw, err := g.generate(ctx, deriveSystemPrompt, fmt.Sprintf(deriveUserPrompt, hint, bundle), true)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}

	var fields models.DerivedFields
	if err := json.Unmarshal([]byte(stripFences(raw)), &fields); err != nil {
		return nil, fmt.Errorf("derive: bad response: %w", err)
	}
	if fields.Title == "" && fields.Category == "" {
		return nil, fmt.Errorf("derive: empty fields")
	}
	return &fields, nil
}
