package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini backs every LLM collaborator of the pipeline: vision text
// extraction, medical detection, bundle conversion, field derivation and
// narrative synthesis.
type Gemini struct {
	client      *genai.Client
	visionModel string
	genModel    string
}

func NewGemini(ctx context.Context, apiKey, visionModel, genModel string) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if visionModel == "" {
		visionModel = "gemini-1.5-flash"
	}
	if genModel == "" {
		genModel = "gemini-1.5-flash"
	}
	return &Gemini{client: cl, visionModel: visionModel, genModel: genModel}, nil
}

func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// generate runs a text prompt against the generation model. When
// jsonMode is set the model is constrained to emit JSON.
func (g *Gemini) generate(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	m := g.client.GenerativeModel(g.genModel)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	if jsonMode {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return flatten(resp), nil
}

// flatten concatenates the text parts of the first candidate.
func flatten(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// stripFences removes a ```json ... ``` wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// imageFormat maps a media type to the short format tag genai expects.
func imageFormat(mediaType string) string {
	mt := strings.ToLower(mediaType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	format := strings.TrimPrefix(strings.TrimSpace(mt), "image/")
	if format == "jpg" {
		format = "jpeg"
	}
	return format
}
