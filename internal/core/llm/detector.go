package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kelechi-eze/MedVault/internal/core"
)

var _ core.MedicalDetector = (*Gemini)(nil)

const detectSystemPrompt = `You classify documents for a personal health
record application. Decide whether the text is a medical document (lab
result, prescription, imaging report, discharge summary, clinical note,
immunization record, referral, insurance claim for care received, etc.).`

const detectUserPrompt = `Classify the following document text. Respond with JSON:
{"is_medical": <bool>, "confidence": <0..1>, "document_type": "<short label, e.g. lab_report>"}

Document text:
%s`

// maxDetectChars bounds the classifier input; the opening of a document
// carries the signal.
const maxDetectChars = 12_000

// Detect classifies extracted text as medical or not.
func (g *Gemini) Detect(ctx context.Context, text string) (*core.Detection, error) {
	if len(text) > maxDetectChars {
		text = text[:maxDetectChars]
	}

	raw, err := g.generate(ctx, detectSystemPrompt, fmt.Sprintf(detectUserPrompt, text), true)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	var d core.Detection
	if err := json.Unmarshal([]byte(stripFences(raw)), &d); err != nil {
		return nil, fmt.Errorf("detect: bad response: %w", err)
	}
	return &d, nil
}
