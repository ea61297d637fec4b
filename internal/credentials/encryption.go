package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required AES-256 key length in bytes.
const KeySize = 32

// Cipher encrypts token strings at rest with AES-256-GCM.
// Output is base64(nonce || ciphertext || tag); every call draws a fresh nonce.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64 key as passed in CREDENTIALS_ENCRYPTION_KEY.
// An empty string yields a nil key, meaning encryption is disabled.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// EncryptedStore encrypts the access and refresh tokens before handing the
// record to the wrapped Store, and decrypts them on load.
type EncryptedStore struct {
	next   Store
	cipher *Cipher
}

// NewEncryptedStore wraps next so tokens are stored encrypted.
func NewEncryptedStore(next Store, c *Cipher) *EncryptedStore {
	return &EncryptedStore{next: next, cipher: c}
}

func (s *EncryptedStore) Load(ctx context.Context) (*Credentials, error) {
	creds, err := s.next.Load(ctx)
	if err != nil || creds == nil {
		return creds, err
	}
	out := creds.Clone()
	if out.AccessToken, err = s.cipher.Decrypt(creds.AccessToken); err != nil {
		return nil, storeErr("encrypted", "load", fmt.Errorf("access token: %w", err))
	}
	if out.RefreshToken, err = s.cipher.Decrypt(creds.RefreshToken); err != nil {
		return nil, storeErr("encrypted", "load", fmt.Errorf("refresh token: %w", err))
	}
	return out, nil
}

func (s *EncryptedStore) Save(ctx context.Context, creds *Credentials) error {
	if creds == nil {
		return storeErr("encrypted", "save", errors.New("nil credentials"))
	}
	out := creds.Clone()
	var err error
	if out.AccessToken, err = s.cipher.Encrypt(creds.AccessToken); err != nil {
		return storeErr("encrypted", "save", fmt.Errorf("access token: %w", err))
	}
	if out.RefreshToken, err = s.cipher.Encrypt(creds.RefreshToken); err != nil {
		return storeErr("encrypted", "save", fmt.Errorf("refresh token: %w", err))
	}
	return s.next.Save(ctx, out)
}
