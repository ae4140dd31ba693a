package common

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	ledgererrors "labledger/core/errors"
)

// CloneAmount returns a copy of v, treating nil as zero.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CheckAmount verifies v is non-negative and representable as a uint256.
func CheckAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ledgererrors.ErrInvalidAmount)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: amount exceeds 256 bits", ledgererrors.ErrInvalidAmount)
	}
	return nil
}

// CheckPositive verifies v is strictly positive and within uint256 range.
func CheckPositive(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ledgererrors.ErrInvalidAmount)
	}
	return CheckAmount(v)
}

// SafeAdd returns a+b, failing when the sum leaves the uint256 range.
func SafeAdd(a, b *big.Int) (*big.Int, error) {
	if err := CheckAmount(a); err != nil {
		return nil, err
	}
	if err := CheckAmount(b); err != nil {
		return nil, err
	}
	x, _ := uint256.FromBig(CloneAmount(a))
	y, _ := uint256.FromBig(CloneAmount(b))
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: addition overflows 256 bits", ledgererrors.ErrInvalidAmount)
	}
	return sum.ToBig(), nil
}

// SafeSub returns a-b, failing when the result would be negative.
func SafeSub(a, b *big.Int) (*big.Int, error) {
	if err := CheckAmount(a); err != nil {
		return nil, err
	}
	if err := CheckAmount(b); err != nil {
		return nil, err
	}
	x, _ := uint256.FromBig(CloneAmount(a))
	y, _ := uint256.FromBig(CloneAmount(b))
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: subtraction underflows", ledgererrors.ErrInvalidAmount)
	}
	return diff.ToBig(), nil
}

// MinAmount returns the smaller of a and b as a fresh value.
func MinAmount(a, b *big.Int) *big.Int {
	x, y := CloneAmount(a), CloneAmount(b)
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}
