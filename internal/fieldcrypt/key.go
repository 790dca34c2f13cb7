package fieldcrypt

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfSalt       = "healthcare_salt"
	kdfIterations = 100_000

	devPassphrase = "healthcare-records-development-only"
)

var (
	ErrKeyRequired = errors.New("fieldcrypt: DATABASE_ENCRYPTION_KEY is required in production")
	ErrRawKeyOnly  = errors.New("fieldcrypt: production requires a 32-byte hex or base64 key, not a passphrase")
)

// KeySource reports where the key material came from.
type KeySource string

const (
	SourceHex        KeySource = "hex"
	SourceBase64     KeySource = "base64"
	SourcePassphrase KeySource = "passphrase"
	SourceDevDefault KeySource = "dev-default"
)

// LoadKey turns the configured secret into a 32-byte key. Raw keys are
// accepted as 64 hex characters or base64 of 32 bytes. Anything else is
// treated as a passphrase and stretched with PBKDF2, which is refused in
// production along with a missing secret.
func LoadKey(secret string, production bool) ([]byte, KeySource, error) {
	if len(secret) == hex.EncodedLen(KeySize) {
		if k, err := hex.DecodeString(secret); err == nil {
			return k, SourceHex, nil
		}
	}
	if k, err := base64.StdEncoding.DecodeString(secret); err == nil && len(k) == KeySize {
		return k, SourceBase64, nil
	}

	switch {
	case production && secret == "":
		return nil, "", ErrKeyRequired
	case production:
		return nil, "", ErrRawKeyOnly
	case secret == "":
		return derive(devPassphrase), SourceDevDefault, nil
	}
	return derive(secret), SourcePassphrase, nil
}

func derive(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(kdfSalt), kdfIterations, KeySize, sha256.New)
}
