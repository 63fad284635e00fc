package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/models"
)

const (
	saltLen    = 16
	nonceLen   = 12
	keyLen     = 32
	iterations = 210_000
)

// EnvelopeEncryptor derives a per-envelope AES-256 key from the caller's
// session key with PBKDF2-SHA256 and seals the payload with AES-GCM.
type EnvelopeEncryptor struct{}

var _ core.Encryptor = (*EnvelopeEncryptor)(nil)

func NewEnvelopeEncryptor() *EnvelopeEncryptor {
	return &EnvelopeEncryptor{}
}

func (e *EnvelopeEncryptor) Encrypt(payload []byte, key string) (*models.Envelope, error) {
	if key == "" {
		return nil, errors.New("empty session key")
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := newGCM(key, salt)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, payload, nil)

	// GCM appends the 16-byte tag; the envelope carries it separately.
	tagStart := len(sealed) - gcm.Overhead()
	return &models.Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

func (e *EnvelopeEncryptor) Decrypt(env *models.Envelope, key string) ([]byte, error) {
	if env == nil {
		return nil, errors.New("nil envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("decode auth tag: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}

	gcm, err := newGCM(key, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plaintext, nil
}

func newGCM(key string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(key), salt, iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
