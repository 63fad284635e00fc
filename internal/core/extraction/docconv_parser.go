package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
)

var _ DocumentParser = (*DocconvParser)(nil)

// DocconvParser extracts text from PDF, Word and similar structured
// formats through docconv.
type DocconvParser struct {
	useReadability bool
}

func NewDocconvParser(useReadability bool) *DocconvParser {
	return &DocconvParser{useReadability: useReadability}
}

func (p *DocconvParser) Parse(ctx context.Context, content []byte, mediaType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(content), mediaType, p.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", mediaType, err)
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("docconv %s: extracted empty text", mediaType)
	}
	return text, nil
}
