package hash

import (
	"crypto/subtle"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used for new digests.
var Cost = 12

// dummy is compared against when the identity does not exist so that unknown
// and known accounts take the same time to reject. It is built on first use
// so that it honours Cost.
var (
	dummyOnce sync.Once
	dummy     []byte
)

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsDigest reports whether stored looks like a bcrypt digest.
func IsDigest(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

// CheckPassword compares a candidate against the stored value. Values that are
// not bcrypt digests are compared by constant-time equality; such rows predate
// hashing and are rehashed on the next successful login.
func CheckPassword(stored, password string) bool {
	if IsDigest(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Burn spends roughly one comparison worth of time without a stored value.
func Burn(password string) {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), Cost)
	})
	_ = bcrypt.CompareHashAndPassword(dummy, []byte(password))
}
