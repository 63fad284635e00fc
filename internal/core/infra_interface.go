package core

import (
	"context"
	"encoding/json"
	"io"

	"github.com/kelechi-eze/MedVault/internal/models"
)

// RecordStore defines all persistence operations the pipeline needs.
// It abstracts Postgres so higher layers never depend on a specific DB.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *models.ProcessingRecord) (ref string, err error)
	Exists(ctx context.Context, id string) (bool, error)
	GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.ProcessingRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// VisionExtractor reads text out of an image with a vision model.
type VisionExtractor interface {
	ExtractText(ctx context.Context, image []byte, mediaType string) (text string, confidence float64, err error)
}

// Detection is the medical classifier's verdict on extracted text.
type Detection struct {
	IsMedical    bool    `json:"is_medical"`
	Confidence   float64 `json:"confidence"`
	DocumentType string  `json:"document_type"`
}

// MedicalDetector classifies extracted text. A nil result (no verdict)
// is treated downstream as non-medical.
type MedicalDetector interface {
	Detect(ctx context.Context, text string) (*Detection, error)
}

// BundleConverter turns raw extracted text into a structured clinical
// bundle. The bundle is opaque to the pipeline apart from its top-level
// type marker.
type BundleConverter interface {
	Convert(ctx context.Context, text string) (json.RawMessage, error)
}

// FieldDeriver computes short display fields from a bundle plus optional
// context text.
type FieldDeriver interface {
	Derive(ctx context.Context, bundle json.RawMessage, contextText string) (*models.DerivedFields, error)
}

// NarrativeWriter synthesizes long-form prose from a bundle and its
// derived fields.
type NarrativeWriter interface {
	Narrate(ctx context.Context, bundle json.RawMessage, fields *models.DerivedFields, contextText string) (string, error)
}

// Encryptor performs symmetric authenticated envelope encryption with a
// per-session key.
type Encryptor interface {
	Encrypt(payload []byte, key string) (*models.Envelope, error)
	Decrypt(env *models.Envelope, key string) ([]byte, error)
}
