package domain

import (
	"filippo.io/edwards25519"

	"github.com/mr-tron/base58"
)

// Well-known addresses.
const (
	// WSOLMint is the wrapped-SOL mint.
	WSOLMint = "So11111111111111111111111111111111111111112"
)

// ValidateAddress checks that s is a base58-encoded 32-byte key.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return ErrInvalidAddress
	}
	return nil
}

// IsOnCurve reports whether the address decodes to a point on the ed25519
// curve. Program-derived custody accounts are off-curve; wallet keys are on
// it.
func IsOnCurve(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
