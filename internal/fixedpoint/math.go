// Package fixedpoint provides overflow-checked integer arithmetic over
// basis points and micro-units, plus the civil-calendar indices used for
// guard window resets. All intermediates are 256-bit wide; any overflow or
// narrowing loss fails closed.
package fixedpoint

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
)

// Add returns a+b, failing on wraparound.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, domain.ErrOverflow
	}
	return a - b, nil
}

// SaturatingSub returns a-b floored at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MulDiv returns floor(a*b/c) with a 256-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, domain.ErrDivideByZero
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quot := prod.Div(prod, uint256.NewInt(c))
	if !quot.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return quot.Uint64(), nil
}

// MulBps returns floor(amount*bps/10000).
func MulBps(amount uint64, bps uint16) (uint64, error) {
	if bps > domain.BpsDenominator {
		return 0, domain.ErrInvalidBps
	}
	return MulDiv(amount, uint64(bps), domain.BpsDenominator)
}

// pow10 returns 10^p as a 256-bit integer, failing once the result can no
// longer be represented.
func pow10(p uint32) (*uint256.Int, error) {
	if p > 77 {
		return nil, domain.ErrOverflow
	}
	v := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint32(0); i < p; i++ {
		v.Mul(v, ten)
	}
	return v, nil
}

// ScaleToMicro converts price*10^expo to micro-units (1e-6 fixed point),
// flooring toward zero. Non-positive results are an error.
func ScaleToMicro(price int64, expo int32) (uint64, error) {
	if price <= 0 {
		return 0, domain.ErrOracleParse
	}
	v := uint256.NewInt(uint64(price))
	adj := int64(expo) + 6 // target exponent is -6
	if adj >= 0 {
		f, err := pow10(uint32(adj))
		if err != nil {
			return 0, err
		}
		if _, overflow := v.MulOverflow(v, f); overflow {
			return 0, domain.ErrOverflow
		}
	} else {
		f, err := pow10(uint32(-adj))
		if err != nil {
			return 0, err
		}
		v.Div(v, f)
	}
	if !v.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return v.Uint64(), nil
}

// ConfidenceBps returns conf*10000/|price|, the attestation confidence
// interval expressed in basis points of the price.
func ConfidenceBps(price int64, conf uint64) (uint64, error) {
	if price == 0 {
		return 0, domain.ErrOracleParse
	}
	abs := uint64(price)
	if price < 0 {
		abs = uint64(-price)
	}
	return MulDiv(conf, domain.BpsDenominator, abs)
}

// WithinBps reports whether value lies within tolBps basis points of
// reference, relative to reference. A zero reference always fails (the
// tolerance band is undefined), so the check is deliberately asymmetric.
func WithinBps(value, reference uint64, tolBps uint16) bool {
	if reference == 0 {
		return false
	}
	var diff uint64
	if value > reference {
		diff = value - reference
	} else {
		diff = reference - value
	}
	lhs := new(uint256.Int).Mul(uint256.NewInt(diff), uint256.NewInt(domain.BpsDenominator))
	rhs := new(uint256.Int).Mul(uint256.NewInt(reference), uint256.NewInt(uint64(tolBps)))
	return lhs.Cmp(rhs) <= 0
}
