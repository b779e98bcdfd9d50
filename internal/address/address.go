// Package address holds the canonical identifier for a site on the
// network: a base58 string in the Bitcoin alphabet starting with "1".
// Checksum verification belongs to manifest signature verification,
// which is performed outside this node; Parse enforces shape only.
package address

import (
	"errors"

	"github.com/mr-tron/base58"
)

// ErrMalformed is returned by Parse for strings that are not valid
// site addresses.
var ErrMalformed = errors.New("malformed site address")

const (
	minLen = 10
	maxLen = 35
)

// Address is an immutable canonical site identifier. The zero value is
// invalid; obtain one through Parse. Comparable and usable as a map key.
type Address struct {
	s string
}

// Parse validates raw and returns its canonical Address.
func Parse(raw string) (Address, error) {
	if len(raw) < minLen || len(raw) > maxLen {
		return Address{}, ErrMalformed
	}
	if raw[0] != '1' {
		return Address{}, ErrMalformed
	}
	if _, err := base58.Decode(raw); err != nil {
		return Address{}, ErrMalformed
	}
	return Address{s: raw}, nil
}

// MustParse is a test/fixture helper; it panics on malformed input.
func MustParse(raw string) Address {
	a, err := Parse(raw)
	if err != nil {
		panic("address: " + raw + ": " + err.Error())
	}
	return a
}

// String renders the canonical form. Parse(a.String()) == a for every
// valid address.
func (a Address) String() string { return a.s }

// IsZero reports whether a is the invalid zero value.
func (a Address) IsZero() bool { return a.s == "" }

// Short returns a truncated display form for diagnostics.
func (a Address) Short() string {
	if len(a.s) <= 12 {
		return a.s
	}
	return a.s[:7] + "…" + a.s[len(a.s)-4:]
}
