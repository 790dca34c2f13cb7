// Package twofactor wraps authenticator-app (TOTP) enrolment and checks.
package twofactor

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const Issuer = "Healthcare App"

// Skew is the number of 30 second periods accepted on either side of now.
const Skew = 2

var opts = totp.ValidateOpts{
	Period:    30,
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type Enrolment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

func Generate(accountName string) (*Enrolment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: accountName,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	return &Enrolment{Secret: key.Secret(), URL: key.URL()}, nil
}

func Validate(code, secret string) bool {
	return ValidateAt(code, secret, time.Now())
}

func ValidateAt(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), opts)
	return err == nil && ok
}
