// Package secrets encrypts provider API keys at rest.
//
// Ciphertexts are stored as a JSON document with hex fields:
//
//	{"iv":"...","encrypted":"...","authTag":"..."}
//
// The cipher is AES-256-GCM with a 16 byte IV.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	keySize   = 32
	ivSize    = 16
	tagSize   = 16
	maskedLen = 8
)

var (
	// ErrDecrypt is returned for any ciphertext that cannot be opened.
	ErrDecrypt = errors.New("failed to decrypt API key")

	// ErrEncrypt is returned when a plaintext cannot be sealed.
	ErrEncrypt = errors.New("failed to encrypt API key")

	// ErrInvalidKey is returned when the master key is not at least 32 hex-decoded bytes.
	ErrInvalidKey = errors.New("encryption key must be at least 64 hex characters")
)

type envelope struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	AuthTag   string `json:"authTag"`
}

// Cipher seals and opens API keys with a fixed master key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a hex master key. Only the first 32 decoded
// bytes are used.
func NewCipher(hexKey string) (*Cipher, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) < keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(raw[:keySize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out, err := json.Marshal(envelope{
		IV:        hex.EncodeToString(iv),
		Encrypted: hex.EncodeToString(body),
		AuthTag:   hex.EncodeToString(tag),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return string(out), nil
}

// Decrypt opens a stored ciphertext. Every failure maps to ErrDecrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(ciphertext), &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: bad iv", ErrDecrypt)
	}
	body, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: bad payload", ErrDecrypt)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad auth tag", ErrDecrypt)
	}

	plain, err := c.aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	return string(plain), nil
}

// HashKey returns the hex SHA-256 of an API key.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// MaskKey renders a key safe for display: first4...last4, or *** for short keys.
func MaskKey(apiKey string) string {
	if len(apiKey) <= maskedLen {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}

// GenerateKey returns a new random master key as 64 hex characters.
func GenerateKey() (string, error) {
	buf := make([]byte, keySize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
