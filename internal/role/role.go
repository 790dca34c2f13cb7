package role

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

type Role uint8

const (
	Unknown Role = iota
	Admin
	Doctor
	Nurse
	Patient
)

var ErrUnknownRole = errors.New("unknown role")

// All lists every assignable role in declaration order.
var All = []Role{Admin, Doctor, Nurse, Patient}

func (r Role) String() string {
	switch r {
	case Admin:
		return "admin"
	case Doctor:
		return "doctor"
	case Nurse:
		return "nurse"
	case Patient:
		return "patient"
	case Unknown:
		return ""
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func (r Role) Valid() bool {
	switch r {
	case Admin, Doctor, Nurse, Patient:
		return true
	case Unknown:
		return false
	}
	return false
}

func Parse(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return Admin, nil
	case "doctor":
		return Doctor, nil
	case "nurse":
		return Nurse, nil
	case "patient":
		return Patient, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = p
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return r.String(), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = Unknown
		return nil
	}
	return fmt.Errorf("role: cannot scan %T", src)
}

// Set is a closed set of roles allowed on a route.
type Set uint8

func NewSet(roles ...Role) Set {
	var s Set
	for _, r := range roles {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

func (s Set) Has(r Role) bool {
	return r.Valid() && s&(1<<r) != 0
}

func (s Set) Roles() []Role {
	out := make([]Role, 0, len(All))
	for _, r := range All {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
