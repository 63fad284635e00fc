package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/kelechi-eze/MedVault/internal/core"
)

var _ core.VisionExtractor = (*Gemini)(nil)

const visionPrompt = `Transcribe every piece of text visible in this image.
Preserve line breaks and table structure where possible. Respond with JSON:
{"text": "<full transcription>", "confidence": <0..1 how certain you are the transcription is complete and accurate>}
If the image contains no text, return {"text": "", "confidence": 0}.`

// ExtractText transcribes an image with the vision model.
func (g *Gemini) ExtractText(ctx context.Context, image []byte, mediaType string) (string, float64, error) {
	m := g.client.GenerativeModel(g.visionModel)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx,
		genai.ImageData(imageFormat(mediaType), image),
		genai.Text(visionPrompt),
	)
	if err != nil {
		return "", 0, fmt.Errorf("gemini vision: %w", err)
	}

	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	raw := stripFences(flatten(resp))
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", 0, fmt.Errorf("gemini vision: bad response: %w", err)
	}
	if out.Text == "" {
		return "", 0, fmt.Errorf("gemini vision: no text found in image")
	}
	return out.Text, out.Confidence, nil
}
