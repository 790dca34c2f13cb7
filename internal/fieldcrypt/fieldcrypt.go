// Package fieldcrypt encrypts individual text fields at rest.
//
// A sealed value is an envelope: salt ‖ iv ‖ tag ‖ ciphertext, base64 encoded.
// The random salt is bound to the ciphertext as additional authenticated data.
// Envelopes are recognised structurally so sealing is idempotent.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
)

const (
	KeySize  = 32
	IVSize   = 16
	SaltSize = 64
	TagSize  = 16

	headerSize = SaltSize + IVSize + TagSize
)

// Kind tells the caller how a stored value should be interpreted.
type Kind uint8

const (
	// Decrypted means the stored value was an envelope and authenticated.
	Decrypted Kind = iota + 1
	// LegacyPlaintext means the stored value is not an envelope and predates
	// field encryption; Value is the raw column.
	LegacyPlaintext
)

type Result struct {
	Value string
	Kind  Kind
}

type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("fieldcrypt: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// IsEnvelope is a structural check only; it never attempts decryption.
func IsEnvelope(value string) bool {
	if len(value) < base64.StdEncoding.EncodedLen(headerSize) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(raw) >= headerSize
}

// Encrypt seals plaintext. Empty input stays empty and envelopes are returned
// unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEnvelope(plaintext) {
		return plaintext, nil
	}

	buf := make([]byte, headerSize, headerSize+len(plaintext))
	salt, iv := buf[:SaltSize], buf[SaltSize:SaltSize+IVSize]
	if _, err := rand.Read(buf[:SaltSize+IVSize]); err != nil {
		return "", apperr.Wrap(apperr.ErrEncryption, err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), salt)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]
	copy(buf[SaltSize+IVSize:], tag)
	buf = append(buf, ct...)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt opens an envelope. Values that are not envelopes come back as
// LegacyPlaintext. An envelope that fails authentication is an error: a
// corrupted or foreign-key envelope must not be mistaken for plaintext.
func (c *Cipher) Decrypt(value string) (Result, error) {
	if value == "" {
		return Result{Kind: Decrypted}, nil
	}
	if !IsEnvelope(value) {
		return Result{Value: value, Kind: LegacyPlaintext}, nil
	}

	raw, _ := base64.StdEncoding.DecodeString(value)
	salt := raw[:SaltSize]
	iv := raw[SaltSize : SaltSize+IVSize]
	tag := raw[SaltSize+IVSize : headerSize]
	ct := raw[headerSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	pt, err := c.aead.Open(nil, iv, sealed, salt)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrDecryption, err)
	}
	return Result{Value: string(pt), Kind: Decrypted}, nil
}
