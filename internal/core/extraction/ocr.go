package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

var _ OCRClient = (*TesseractClient)(nil)

// TesseractClient runs local OCR through gosseract. A fresh client per
// call keeps it safe for concurrent use.
type TesseractClient struct {
	Language string // empty -> "eng"
}

func NewTesseractClient(language string) *TesseractClient {
	if language == "" {
		language = "eng"
	}
	return &TesseractClient{Language: language}
}

func (t *TesseractClient) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return "", 0, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, fmt.Errorf("tesseract: empty result")
	}
	return text, heuristicConfidence(text), nil
}

var (
	reWord    = regexp.MustCompile(`[A-Za-z]{3,}`)
	reGarbage = regexp.MustCompile(`[^\x20-\x7E\n\t]`)
)

// heuristicConfidence scores OCR output in 0..1 by the ratio of
// plausible words to garbage characters.
func heuristicConfidence(text string) float64 {
	if text == "" {
		return 0
	}
	words := len(reWord.FindAllString(text, -1))
	garbage := len(reGarbage.FindAllString(text, -1))

	conf := 0.35
	if words > 5 {
		conf += 0.35
	} else if words > 0 {
		conf += 0.15
	}
	ratio := float64(garbage) / float64(len(text))
	if ratio < 0.05 {
		conf += 0.2
	} else if ratio > 0.25 {
		conf -= 0.2
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
