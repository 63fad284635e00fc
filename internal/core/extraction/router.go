package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// structuredTypes are the declared media types handed to the document
// parser. Evaluated before the text/ and image/ prefixes.
var structuredTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.oasis.opendocument.text":                                 {},
	"application/rtf":                                                         {},
	"text/rtf":                                                                {},
}

// Router selects the extraction strategy for a document's declared media
// type: structured formats go to the parser, text/* is decoded directly,
// image/* is delegated to the image chain.
type Router struct {
	parser DocumentParser
	images *ImageChain
	logger *slog.Logger
}

func NewRouter(parser DocumentParser, images *ImageChain, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{parser: parser, images: images, logger: logger}
}

// Extract routes the document to the right strategy and returns the
// extracted text with the method that produced it.
func (r *Router) Extract(ctx context.Context, doc *models.SourceDocument) (Result, error) {
	mediaType := normalizeMediaType(doc.MediaType)

	switch {
	case isStructured(mediaType):
		text, err := r.parser.Parse(ctx, doc.Content, mediaType)
		if err != nil {
			return Result{}, fmt.Errorf("%w: parse %s: %v", core.ErrExtractionFailed, mediaType, err)
		}
		return Result{Text: text, Method: MethodParser, Confidence: 1.0}, nil

	case strings.HasPrefix(mediaType, "text/"):
		if !utf8.Valid(doc.Content) {
			return Result{}, fmt.Errorf("%w: %s content is not valid UTF-8", core.ErrExtractionFailed, mediaType)
		}
		return Result{Text: string(doc.Content), Method: MethodText, Confidence: 1.0}, nil

	case strings.HasPrefix(mediaType, "image/"):
		return r.images.ExtractFromImage(ctx, doc)

	default:
		r.logger.Warn("no extraction strategy", "media_type", doc.MediaType, "filename", doc.Filename)
		return Result{}, fmt.Errorf("%w: %s", core.ErrUnsupportedMediaType, doc.MediaType)
	}
}

func isStructured(mediaType string) bool {
	_, ok := structuredTypes[mediaType]
	return ok
}

// normalizeMediaType strips parameters like "; charset=utf-8".
func normalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
