package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// ImageChain is the two-tier image extraction fallback: vision model
// first, local OCR second. Oversized images are downscaled before either
// tier runs.
type ImageChain struct {
	vision        core.VisionExtractor
	ocr           OCRClient
	maxImageBytes int
	logger        *slog.Logger
}

func NewImageChain(vision core.VisionExtractor, ocr OCRClient, maxImageBytes int, logger *slog.Logger) *ImageChain {
	if logger == nil {
		logger = slog.Default()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = 4 << 20
	}
	return &ImageChain{vision: vision, ocr: ocr, maxImageBytes: maxImageBytes, logger: logger}
}

// ExtractFromImage tries vision extraction, then OCR. Both failing
// yields a combined error naming both causes.
func (c *ImageChain) ExtractFromImage(ctx context.Context, doc *models.SourceDocument) (Result, error) {
	content := doc.Content
	mediaType := normalizeMediaType(doc.MediaType)

	if len(content) > c.maxImageBytes {
		compressed, err := compressImage(content, c.maxImageBytes)
		if err != nil {
			c.logger.Warn("image compression failed, using original",
				"filename", doc.Filename, "bytes", len(content), "error", err)
		} else {
			c.logger.Debug("image compressed",
				"filename", doc.Filename, "before", len(content), "after", len(compressed))
			content = compressed
			mediaType = "image/jpeg"
		}
	}

	text, confidence, visionErr := c.vision.ExtractText(ctx, content, mediaType)
	if visionErr == nil {
		return Result{Text: text, Method: MethodVision, Confidence: confidence}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	c.logger.Warn("vision extraction failed, falling back to ocr",
		"filename", doc.Filename, "error", visionErr)

	text, confidence, ocrErr := c.ocr.Recognize(ctx, content)
	if ocrErr == nil {
		return Result{
			Text:           text,
			Method:         MethodOCR,
			Confidence:     confidence,
			FallbackReason: visionErr.Error(),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{}, fmt.Errorf("%w: vision: %v; ocr: %v", core.ErrExtractionFailed, visionErr, ocrErr)
}
