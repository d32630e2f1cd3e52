// Package crypto provides the at-rest encryption codec for stored
// conversion bodies.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	encPrefix   = "enc:"
	plainPrefix = "plain:"

	nonceLen = 16
	tagLen   = 16
)

var (
	// ErrUndecryptable means the envelope is corrupt, the auth tag does not
	// match, or the key has rotated away. Recoverable; callers substitute a
	// placeholder instead of aborting.
	ErrUndecryptable = errors.New("envelope cannot be decrypted")
	// ErrKeyUnavailable means the envelope is enciphered but no key is
	// configured.
	ErrKeyUnavailable = errors.New("encryption key not available")
)

// Codec encrypts and decrypts stored bodies with AES-256-GCM. With no key
// configured it stores tagged plaintext instead; envelopes are
// self-describing so the two modes coexist in one table.
//
// Envelope formats:
//
//	enc:<nonce-hex>:<tag-hex>:<ciphertext-hex>
//	plain:<body>
type Codec struct {
	key []byte // nil when encryption is disabled
}

// NewCodec derives the AES-256 key from the operator-supplied secret. A
// 64-char hex or 44-char base64 secret is decoded directly; anything else
// is hashed with sha256 so operators are not forced into exact-length
// secrets. An empty secret disables encryption.
func NewCodec(secret string) *Codec {
	if secret == "" {
		return &Codec{}
	}
	return &Codec{key: deriveKey(secret)}
}

// Enabled reports whether bodies are actually enciphered at rest.
func (c *Codec) Enabled() bool {
	return c.key != nil
}

// Encrypt seals plaintext into a self-describing envelope with a fresh
// random nonce. Without a key it returns a tagged plaintext envelope.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c.key == nil {
		return plainPrefix + plaintext, nil
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return encPrefix +
		hex.EncodeToString(nonce) + ":" +
		hex.EncodeToString(tag) + ":" +
		hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope. Tag mismatch and malformed envelopes return
// ErrUndecryptable; enciphered data without a configured key returns
// ErrKeyUnavailable. Data written before envelopes existed is returned
// verbatim.
func (c *Codec) Decrypt(envelope string) (string, error) {
	if body, ok := strings.CutPrefix(envelope, plainPrefix); ok {
		return body, nil
	}
	rest, ok := strings.CutPrefix(envelope, encPrefix)
	if !ok {
		// Legacy row without an envelope marker.
		return envelope, nil
	}

	if c.key == nil {
		return "", ErrKeyUnavailable
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return "", ErrUndecryptable
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return "", ErrUndecryptable
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return "", ErrUndecryptable
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrUndecryptable
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plaintext), nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

func deriveKey(secret string) []byte {
	if len(secret) == 64 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key
		}
	}
	if len(secret) == 44 {
		if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == 32 {
			return key
		}
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
