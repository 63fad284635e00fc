package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kelechi-eze/MedVault/internal/config"
	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

var _ core.RecordStore = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// PutRecord upserts the full record. Rows written by a previous attempt
// of the same id are overwritten, which makes upload retries safe.
func (c *DatabaseClient) PutRecord(ctx context.Context, rec *models.ProcessingRecord) (string, error) {
	if rec == nil {
		return "", errors.New("nil record")
	}

	bundle, derived, encrypted, err := marshalJSONColumns(rec)
	if err != nil {
		return "", err
	}

	const q = `
		INSERT INTO records
			(id, user_id, fingerprint, filename, media_type, status,
			 extracted_text, word_count, extraction_method, confidence,
			 bundle, derived, content_hash, encrypted,
			 error_message, error_class, upload_attempts, storage_url,
			 created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6,
			 $7, $8, $9, $10,
			 $11, $12, $13, $14,
			 $15, $16, $17, $18,
			 COALESCE($19, now()), now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			extracted_text = EXCLUDED.extracted_text,
			word_count = EXCLUDED.word_count,
			extraction_method = EXCLUDED.extraction_method,
			confidence = EXCLUDED.confidence,
			bundle = EXCLUDED.bundle,
			derived = EXCLUDED.derived,
			content_hash = EXCLUDED.content_hash,
			encrypted = EXCLUDED.encrypted,
			error_message = EXCLUDED.error_message,
			error_class = EXCLUDED.error_class,
			upload_attempts = EXCLUDED.upload_attempts,
			storage_url = EXCLUDED.storage_url,
			updated_at = now()
	`
	_, err = c.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.Fingerprint, rec.Filename, rec.MediaType, string(rec.Status),
		rec.ExtractedText, rec.WordCount, rec.ExtractionMethod, rec.Confidence,
		bundle, derived, rec.ContentHash, encrypted,
		rec.ErrMessage, rec.ErrClass, rec.UploadAttempts, rec.StorageURL,
		nullableTime(rec.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return "records/" + rec.ID, nil
}

func (c *DatabaseClient) Exists(ctx context.Context, id string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1)`
	var exists bool
	if err := c.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (c *DatabaseClient) GetRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	const q = recordColumns + ` FROM records WHERE id = $1`
	rec, err := scanRecord(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *DatabaseClient) ListByUser(ctx context.Context, userID string) ([]models.ProcessingRecord, error) {
	const q = recordColumns + `
		FROM records
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteRecord(ctx context.Context, id string) error {
	const q = `DELETE FROM records WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record not found: %s", id)
	}
	return nil
}

const recordColumns = `
	SELECT id, user_id, fingerprint, filename, media_type, status,
	       extracted_text, word_count, extraction_method, confidence,
	       bundle, derived, content_hash, encrypted,
	       error_message, error_class, upload_attempts, storage_url,
	       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ProcessingRecord, error) {
	var (
		rec       models.ProcessingRecord
		status    string
		bundle    []byte
		derived   []byte
		encrypted []byte
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Fingerprint, &rec.Filename, &rec.MediaType, &status,
		&rec.ExtractedText, &rec.WordCount, &rec.ExtractionMethod, &rec.Confidence,
		&bundle, &derived, &rec.ContentHash, &encrypted,
		&rec.ErrMessage, &rec.ErrClass, &rec.UploadAttempts, &rec.StorageURL,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = models.RecordStatus(status)
	if len(bundle) > 0 {
		rec.Bundle = json.RawMessage(bundle)
	}
	if len(derived) > 0 {
		var fields models.DerivedFields
		if err := json.Unmarshal(derived, &fields); err != nil {
			return nil, fmt.Errorf("decode derived fields: %w", err)
		}
		rec.Derived = &fields
	}
	if len(encrypted) > 0 {
		var env models.Envelope
		if err := json.Unmarshal(encrypted, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		rec.Encrypted = &env
	}
	return &rec, nil
}

func marshalJSONColumns(rec *models.ProcessingRecord) (bundle, derived, encrypted []byte, err error) {
	if len(rec.Bundle) > 0 {
		bundle = []byte(rec.Bundle)
	}
	if rec.Derived != nil {
		derived, err = json.Marshal(rec.Derived)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode derived fields: %w", err)
		}
	}
	if rec.Encrypted != nil {
		encrypted, err = json.Marshal(rec.Encrypted)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode envelope: %w", err)
		}
	}
	return bundle, derived, encrypted, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
