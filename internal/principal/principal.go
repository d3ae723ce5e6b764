package principal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalid marks a string that does not parse as an address. The API
// boundary reports it as a ValidationError.
var ErrInvalid = errors.New("invalid principal address")

// Address is an opaque 20-byte identity. The core never interprets its
// structure beyond equality; rendering uses the mixed-case checksum form
// so logs and API responses carry one canonical spelling.
type Address [20]byte

// Zero is the empty address, used for "not set" fields on a case.
var Zero Address

// Parse accepts a 0x-prefixed or bare 40-digit hex string, case-insensitive.
func Parse(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 40 {
		return Address{}, fmt.Errorf("%w: address must be 20 bytes of hex, got %q", ErrInvalid, s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: address is not valid hex", ErrInvalid)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// MustParse is for literals in tests and bootstrap config.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the checksummed normal form: each hex digit is uppercased
// when the corresponding nibble of Keccak-256(lowercase-hex) is >= 8.
func (a Address) String() string {
	lower := hex.EncodeToString(a[:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue // digit, never cased
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(out)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == Zero }

// MarshalText lets Address appear directly in JSON payloads.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the wire form, accepting any casing.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
