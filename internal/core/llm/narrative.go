package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

var _ core.NarrativeWriter = (*Gemini)(nil)

const narrateSystemPrompt = `You write a plain-language narrative of a medical
record for the patient who owns it. Two or three short paragraphs, no
medical jargon without explanation, no speculation beyond the data given.
Output prose only, no headings or markdown.`

// Narrate synthesizes long-form prose from the bundle and its derived
// fields.
func (g *Gemini) Narrate(ctx context.Context, bundle json.RawMessage, fields *models.DerivedFields, contextText string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the narrative for this record.\n\nDisplay fields:\n")
	if fields != nil {
		enc, _ := json.Marshal(fields)
		b.Write(enc)
	}
	fmt.Fprintf(&b, "\n\nFHIR bundle:\n%s", bundle)
	if contextText != "" {
		if len(contextText) > maxDetectChars {
			contextText = contextText[:maxDetectChars]
		}
		fmt.Fprintf(&b, "\n\nOriginal document text:\n%s", contextText)
	}

	out, err := g.generate(ctx, narrateSystemPrompt, b.String(), false)
	if err != nil {
		return "", fmt.Errorf("narrate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("narrate: empty narrative")
	}
	return out, nil
}
