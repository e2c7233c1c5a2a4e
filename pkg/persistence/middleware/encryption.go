package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ResultStore
	config EncryptionConfig
}

// envelopePrefix marks an encrypted cause.
const envelopePrefix = "enc:"

type sealedCause struct {
	Cause        string `json:"cause"`
	FailedAction string `json:"failed_action,omitempty"`
}

// NewEncryptionMiddleware creates a middleware that encrypts failure causes
// using AES-GCM. Name, class, outcome and timestamps stay readable so
// results can still be listed and monitored.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ResultStore) ports.ResultStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, result domain.TestResult) error {
	if result.CauseMessage == "" {
		return m.next.Save(ctx, result)
	}

	plainText, err := json.Marshal(sealedCause{Cause: result.CauseMessage, FailedAction: result.FailedAction})
	if err != nil {
		return fmt.Errorf("failed to marshal cause: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt cause: %w", err)
	}

	envelope := result
	envelope.Cause = nil
	envelope.FailedAction = ""
	envelope.CauseMessage = envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext)
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, testName string) (domain.TestResult, error) {
	envelope, err := m.next.Load(ctx, testName)
	if err != nil {
		return domain.TestResult{}, err
	}
	if envelope.CauseMessage == "" {
		return envelope, nil
	}

	encoded, ok := strings.CutPrefix(envelope.CauseMessage, envelopePrefix)
	if !ok {
		// Plain causes are refused rather than passed through.
		return domain.TestResult{}, errors.New("result is missing encrypted cause envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.TestResult{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	// Try active, then fallback keys
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.TestResult{}, fmt.Errorf("failed to decrypt cause: %w", err)
	}

	var sealed sealedCause
	if err := json.Unmarshal(plainText, &sealed); err != nil {
		return domain.TestResult{}, fmt.Errorf("failed to unmarshal decrypted cause: %w", err)
	}
	result := envelope
	result.CauseMessage = sealed.Cause
	result.FailedAction = sealed.FailedAction
	result.Cause = errors.New(sealed.Cause)
	return result, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, testName string) error {
	return m.next.Delete(ctx, testName)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
