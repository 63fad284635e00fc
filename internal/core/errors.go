package core

import "errors"

// Pipeline error taxonomy. Fatal classes (unsupported media type, chain
// exhaustion, encryption, persistence) surface to the caller and move the
// record to a terminal error state; the rest are reported but never block
// persistence. Cancellation is context.Canceled and is not an error class.
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrExtractionFailed     = errors.New("text extraction failed")
	ErrConversionFailed     = errors.New("structured conversion failed")
	ErrEnrichmentFailed     = errors.New("enrichment failed")
	ErrHashingFailed        = errors.New("content hashing failed")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrDuplicateDocument    = errors.New("duplicate document")
)

// Classify maps an error to its taxonomy name for observer reporting.
// Unknown errors report as "processing".
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupportedMediaType"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, ErrConversionFailed):
		return "conversion"
	case errors.Is(err, ErrEnrichmentFailed):
		return "enrichment"
	case errors.Is(err, ErrHashingFailed):
		return "hashing"
	case errors.Is(err, ErrEncryptionFailed):
		return "encryption"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence"
	case errors.Is(err, ErrDuplicateDocument):
		return "duplicate"
	}
	return "processing"
}
