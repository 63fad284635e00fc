package extraction

import "context"

// Extraction method labels recorded on the processing record.
const (
	MethodParser = "parser"
	MethodText   = "text"
	MethodVision = "vision"
	MethodOCR    = "ocr"
)

// Result is the outcome of text extraction for a single document.
type Result struct {
	Text           string
	Method         string
	Confidence     float64
	FallbackReason string
}

// DocumentParser extracts text from structured document formats
// (PDF, Word, RTF, ...).
type DocumentParser interface {
	Parse(ctx context.Context, content []byte, mediaType string) (string, error)
}

// OCRClient extracts text from an image with local OCR.
type OCRClient interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}
