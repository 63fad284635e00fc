package models

import (
	"encoding/json"
	"time"
)

// RecordStatus tracks where a document sits in the enrichment pipeline.
type RecordStatus string

const (
	StatusReady              RecordStatus = "ready"
	StatusProcessing         RecordStatus = "processing"
	StatusMedicalDetected    RecordStatus = "medicalDetected"
	StatusNonMedicalDetected RecordStatus = "nonMedicalDetected"
	StatusConverting         RecordStatus = "converting"
	StatusCompleted          RecordStatus = "completed"

	StatusExtractionError RecordStatus = "extractionError"
	StatusDetectionError  RecordStatus = "detectionError"
	StatusFHIRError       RecordStatus = "fhirError"
	StatusProcessingError RecordStatus = "processingError"
)

// Terminal reports whether the status is an error terminal state.
// Error states are retryable by re-entering StatusReady.
func (s RecordStatus) Terminal() bool {
	switch s {
	case StatusExtractionError, StatusDetectionError, StatusFHIRError, StatusProcessingError:
		return true
	}
	return false
}

// SourceDocument is the immutable caller-supplied input. The pipeline
// only reads it.
type SourceDocument struct {
	Content      []byte    `json:"-"`
	Filename     string    `json:"filename"`
	MediaType    string    `json:"media_type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// DerivedFields are the short display-oriented fields computed from the
// structured bundle. Narrative is the long-form prose attached to them.
type DerivedFields struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Date        string `json:"date"`
	Provider    string `json:"provider"`
	Institution string `json:"institution"`
	Subject     string `json:"subject"`
	Narrative   string `json:"narrative,omitempty"`
}

// Envelope is the result of symmetric authenticated envelope encryption.
// All fields are base64-encoded.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
	Salt       string `json:"salt"`
}

// ProcessingRecord is the mutable unit of work, one per admitted document.
// Only the orchestrator goroutine that owns a record ever writes its
// fields; concurrent status reads go through the supervisor.
type ProcessingRecord struct {
	ID          string       `db:"id" json:"id"`
	UserID      string       `db:"user_id" json:"user_id"`
	Fingerprint string       `db:"fingerprint" json:"fingerprint"`
	Filename    string       `db:"filename" json:"filename"`
	MediaType   string       `db:"media_type" json:"media_type"`
	Status      RecordStatus `db:"status" json:"status"`

	ExtractedText    string  `db:"extracted_text" json:"extracted_text,omitempty"`
	WordCount        int     `db:"word_count" json:"word_count"`
	ExtractionMethod string  `db:"extraction_method" json:"extraction_method,omitempty"`
	Confidence       float64 `db:"confidence" json:"confidence,omitempty"`

	Bundle  json.RawMessage `db:"bundle" json:"bundle,omitempty"`
	Derived *DerivedFields  `db:"derived" json:"derived,omitempty"`

	ContentHash string    `db:"content_hash" json:"content_hash,omitempty"`
	Encrypted   *Envelope `db:"encrypted" json:"encrypted,omitempty"`

	ErrMessage string `db:"error_message" json:"error_message,omitempty"`
	ErrClass   string `db:"error_class" json:"error_class,omitempty"`

	UploadAttempts int       `db:"upload_attempts" json:"upload_attempts"`
	StorageURL     string    `db:"storage_url" json:"storage_url,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
