// Package cryptox encrypts provider credential blobs with AES-256-GCM.
// Persisted format is "b64(iv):b64(tag):b64(ciphertext)". Blobs written
// before encryption was introduced are raw JSON and are still accepted
// on decrypt.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var ErrMalformedBlob = errors.New("malformed credential blob")

type Codec struct {
	key []byte
}

// NewCodec parses the configured key (hex or base64 encoded 32 bytes).
// An empty key yields a passthrough codec that stores plaintext JSON;
// callers must surface Insecure() as a warning, never silently.
func NewCodec(rawKey string) (*Codec, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return &Codec{}, nil
	}
	if b, err := hex.DecodeString(rawKey); err == nil && len(b) == keySize {
		return &Codec{key: b}, nil
	}
	if b, err := base64.StdEncoding.DecodeString(rawKey); err == nil && len(b) == keySize {
		return &Codec{key: b}, nil
	}
	return nil, errors.New("CREDENTIAL_ENCRYPTION_KEY must be 32 bytes, hex or base64 encoded")
}

func (c *Codec) Insecure() bool {
	return c == nil || len(c.key) == 0
}

func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	if c.Insecure() {
		return string(plaintext), nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	return base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(tag) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt accepts both formats. Anything that does not parse as
// iv:tag:ciphertext is treated as a legacy plaintext blob and returned
// as-is, so pre-encryption rows keep working without a key.
func (c *Codec) Decrypt(blob string) ([]byte, error) {
	nonce, tag, ciphertext, ok := splitBlob(blob)
	if !ok {
		return []byte(blob), nil
	}
	if c.Insecure() {
		return nil, errors.New("encrypted blob but no encryption key configured")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrMalformedBlob
	}
	return plaintext, nil
}

func splitBlob(blob string) (nonce []byte, tag []byte, ciphertext []byte, ok bool) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, nil, nil, false
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, false
	}
	tag, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, nil, nil, false
	}
	ciphertext, err = base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, false
	}
	return nonce, tag, ciphertext, true
}
