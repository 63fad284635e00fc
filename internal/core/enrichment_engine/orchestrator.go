package enrichment_engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/extraction"
	"github.com/kelechi-eze/MedVault/internal/models"
)

// DefaultDetectionThreshold gates the transition from medicalDetected to
// converting. Below it the record stays text-only until a forced
// conversion.
const DefaultDetectionThreshold = 0.3

// Config holds the orchestrator's behavior knobs.
type Config struct {
	DetectionThreshold float64 // <=0 -> DefaultDetectionThreshold
	SessionKey         string  // envelope encryption key; unused when no encryptor is wired
}

// Orchestrator owns a document's lifecycle through the enrichment state
// machine: extraction, detection, conditional conversion, best-effort
// derivation and narrative, hashing and encryption. It is the single
// writer of the records it processes; observers see committed snapshots
// through publish.
type Orchestrator struct {
	router    *extraction.Router
	detector  core.MedicalDetector
	converter core.BundleConverter
	deriver   core.FieldDeriver
	narrator  core.NarrativeWriter
	encryptor core.Encryptor // nil -> encryption not requested

	cfg     Config
	publish func(*models.ProcessingRecord)
	logger  *slog.Logger
}

func NewOrchestrator(
	router *extraction.Router,
	detector core.MedicalDetector,
	converter core.BundleConverter,
	deriver core.FieldDeriver,
	narrator core.NarrativeWriter,
	encryptor core.Encryptor,
	cfg Config,
	publish func(*models.ProcessingRecord),
	logger *slog.Logger,
) *Orchestrator {
	if cfg.DetectionThreshold <= 0 {
		cfg.DetectionThreshold = DefaultDetectionThreshold
	}
	if publish == nil {
		publish = func(*models.ProcessingRecord) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		router:    router,
		detector:  detector,
		converter: converter,
		deriver:   deriver,
		narrator:  narrator,
		encryptor: encryptor,
		cfg:       cfg,
		publish:   publish,
		logger:    logger,
	}
}

// Process drives one record from ready to its terminal or persistable
// state. A context.Canceled return is normal termination, not a failure:
// the record keeps its last committed stage and nothing after the
// cancellation point is written. Non-nil pipeline errors mean the record
// must not be persisted (extraction, detection, encryption failures);
// conversion and enrichment failures leave the record persistable with
// the affected fields empty.
func (o *Orchestrator) Process(ctx context.Context, rec *models.ProcessingRecord, doc *models.SourceDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.setStatus(rec, models.StatusProcessing)

	// Extraction.
	res, err := o.router.Extract(ctx, doc)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return o.fail(rec, models.StatusExtractionError, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ExtractedText = res.Text
	rec.WordCount = len(strings.Fields(res.Text))
	rec.ExtractionMethod = res.Method
	rec.Confidence = res.Confidence
	o.logger.Info("extraction ok",
		"id", rec.ID, "method", res.Method, "words", rec.WordCount, "confidence", res.Confidence)

	// Detection.
	det, derr := o.detector.Detect(ctx, rec.ExtractedText)
	if err := ctx.Err(); err != nil {
		return err
	}
	if derr != nil {
		return o.fail(rec, models.StatusDetectionError, fmt.Errorf("medical detection: %w", derr))
	}
	if det == nil || !det.IsMedical {
		o.setStatus(rec, models.StatusNonMedicalDetected)
		return o.finalize(ctx, rec)
	}

	o.setStatus(rec, models.StatusMedicalDetected)
	if det.Confidence < o.cfg.DetectionThreshold {
		o.logger.Info("detection below conversion threshold",
			"id", rec.ID, "confidence", det.Confidence, "threshold", o.cfg.DetectionThreshold)
		return o.finalize(ctx, rec)
	}

	if err := o.convertAndEnrich(ctx, rec); err != nil {
		return err
	}
	return o.finalize(ctx, rec)
}

// ForceConvert runs the conversion branch for a record that previously
// stopped short of it (non-medical verdict, below-threshold confidence,
// or a prior conversion failure). Requires extracted text.
func (o *Orchestrator) ForceConvert(ctx context.Context, rec *models.ProcessingRecord) error {
	if rec.ExtractedText == "" {
		return fmt.Errorf("%w: no extracted text to convert", core.ErrConversionFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ErrMessage, rec.ErrClass = "", ""
	if err := o.convertAndEnrich(ctx, rec); err != nil {
		return err
	}
	return o.finalize(ctx, rec)
}

// convertAndEnrich covers converting -> completed plus the best-effort
// derivation and narrative steps. Conversion failure parks the record in
// fhirError with its extracted text preserved and returns nil: the
// record still heads to persistence.
func (o *Orchestrator) convertAndEnrich(ctx context.Context, rec *models.ProcessingRecord) error {
	o.setStatus(rec, models.StatusConverting)

	bundle, err := o.converter.Convert(ctx, rec.ExtractedText)
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err == nil {
		err = ValidateBundle(bundle)
	}
	if err != nil {
		conv := fmt.Errorf("%w: %v", core.ErrConversionFailed, err)
		rec.ErrMessage = conv.Error()
		rec.ErrClass = core.Classify(conv)
		o.setStatus(rec, models.StatusFHIRError)
		o.logger.Warn("conversion failed, keeping extracted text", "id", rec.ID, "error", err)
		return nil
	}

	rec.Bundle = bundle
	o.setStatus(rec, models.StatusCompleted)
	o.logger.Info("conversion ok", "id", rec.ID, "entries", BundleEntryCount(bundle))

	o.enrich(ctx, rec)
	return ctx.Err()
}

// enrich runs derived-field extraction then narrative synthesis. Both
// are best effort: a failure leaves the field nil and never changes the
// record's state.
func (o *Orchestrator) enrich(ctx context.Context, rec *models.ProcessingRecord) {
	fields, err := o.deriver.Derive(ctx, rec.Bundle, rec.ExtractedText)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Warn("derived-field extraction failed", "id", rec.ID, "error", err)
		return
	}
	rec.Derived = fields
	o.publish(rec)

	narrative, err := o.narrator.Narrate(ctx, rec.Bundle, rec.Derived, rec.ExtractedText)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Warn("narrative synthesis failed", "id", rec.ID, "error", err)
		return
	}
	rec.Derived.Narrative = narrative
	o.publish(rec)
}

// finalize computes the content hash (non-fatal) and, when an encryptor
// is wired, encrypts the canonical payload (fatal on failure: a record
// that requested encryption is never persisted in plaintext).
func (o *Orchestrator) finalize(ctx context.Context, rec *models.ProcessingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hash, err := ContentHash(rec)
	if err != nil {
		herr := fmt.Errorf("%w: %v", core.ErrHashingFailed, err)
		rec.ErrMessage = herr.Error()
		rec.ErrClass = core.Classify(herr)
		o.logger.Warn("content hashing failed, persisting without hash", "id", rec.ID, "error", err)
	} else {
		rec.ContentHash = hash
	}

	if o.encryptor == nil {
		o.publish(rec)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := canonicalPayload(rec)
	if err == nil {
		var env *models.Envelope
		env, err = o.encryptor.Encrypt(payload, o.cfg.SessionKey)
		if err == nil {
			rec.Encrypted = env
		}
	}
	if err != nil {
		return o.fail(rec, models.StatusProcessingError, fmt.Errorf("%w: %v", core.ErrEncryptionFailed, err))
	}

	o.publish(rec)
	return nil
}

func (o *Orchestrator) setStatus(rec *models.ProcessingRecord, status models.RecordStatus) {
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	o.publish(rec)
}

func (o *Orchestrator) fail(rec *models.ProcessingRecord, status models.RecordStatus, err error) error {
	rec.ErrMessage = err.Error()
	rec.ErrClass = core.Classify(err)
	o.setStatus(rec, status)
	o.logger.Error("pipeline stage failed", "id", rec.ID, "status", status, "error", err)
	return err
}
