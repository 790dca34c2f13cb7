package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings such as "15m".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Policy struct {
	Lockout LockoutPolicy `toml:"lockout"`
	OTP     OTPPolicy     `toml:"otp"`
	CSRF    CSRFPolicy    `toml:"csrf"`
}

type LockoutPolicy struct {
	MaxAttempts   int      `toml:"max_attempts"`
	Window        Duration `toml:"window"`
	LockDuration  Duration `toml:"lock_duration"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type OTPPolicy struct {
	LoginTTL Duration `toml:"login_ttl"`
	ResetTTL Duration `toml:"reset_ttl"`
}

type CSRFPolicy struct {
	SecretTTL    Duration `toml:"secret_ttl"`
	CookieMaxAge Duration `toml:"cookie_max_age"`
}

func DefaultPolicy() Policy {
	return Policy{
		Lockout: LockoutPolicy{
			MaxAttempts:   5,
			Window:        Duration{15 * time.Minute},
			LockDuration:  Duration{15 * time.Minute},
			SweepInterval: Duration{time.Minute},
		},
		OTP: OTPPolicy{
			LoginTTL: Duration{10 * time.Minute},
			ResetTTL: Duration{15 * time.Minute},
		},
		CSRF: CSRFPolicy{
			SecretTTL:    Duration{24 * time.Hour},
			CookieMaxAge: Duration{time.Hour},
		},
	}
}

// LoadPolicy decodes path over base; keys missing from the file keep their
// base values.
func LoadPolicy(path string, base Policy) (Policy, error) {
	p := base
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return base, err
	}
	if und := md.Undecoded(); len(und) > 0 {
		return base, fmt.Errorf("unknown keys: %v", und)
	}
	if err := p.validate(); err != nil {
		return base, err
	}
	return p, nil
}

func (p Policy) validate() error {
	switch {
	case p.Lockout.MaxAttempts < 1:
		return fmt.Errorf("lockout.max_attempts must be positive")
	case p.Lockout.Window.Duration <= 0, p.Lockout.LockDuration.Duration <= 0:
		return fmt.Errorf("lockout durations must be positive")
	case p.OTP.LoginTTL.Duration <= 0, p.OTP.ResetTTL.Duration <= 0:
		return fmt.Errorf("otp lifetimes must be positive")
	case p.CSRF.SecretTTL.Duration <= 0:
		return fmt.Errorf("csrf.secret_ttl must be positive")
	}
	return nil
}
