package model

import (
	"fmt"
	"math/bits"
)

// AddAmount returns a+b or ErrArithmeticOverflow.
func AddAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%d + %d: %w", a, b, ErrArithmeticOverflow)
	}
	return sum, nil
}

// SubAmount returns a-b or ErrArithmeticUnderflow.
func SubAmount(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%d - %d: %w", a, b, ErrArithmeticUnderflow)
	}
	return a - b, nil
}
