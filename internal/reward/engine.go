// Package reward computes claimable rewards for staked positions.
//
// Accrual is per second: a position of amount A staked for S seconds under
// rate R and multiplier M earns A*R*M*S/Precision reward units. The product
// is formed in 256-bit arithmetic so no intermediate step can wrap.
//
// Settlement pays whole units only. The fraction left over, counted in
// 1/Precision units, is carried into the next settlement of the same
// position so that frequent claims earn exactly what one late claim would.
package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"lpstaking/internal/model"
)

// Precision is the fixed denominator of the rate: a rate of Precision pays one
// reward unit per staked unit per second at multiplier 1.
const Precision = 1000

// ComputeReward returns the reward owed for amount staked over elapsed seconds.
func ComputeReward(amount, rate, multiplier, elapsed uint64) (uint64, error) {
	reward, _, err := Accrue(amount, rate, multiplier, elapsed, 0)
	return reward, err
}

// Accrue settles elapsed seconds on top of carry, the remainder left by the
// previous settlement. It returns the whole reward units owed and the new
// remainder, which is always below Precision.
func Accrue(amount, rate, multiplier, elapsed, carry uint64) (reward, remainder uint64, err error) {
	product := uint256.NewInt(amount)
	for _, factor := range [...]uint64{rate, multiplier, elapsed} {
		if _, overflow := product.MulOverflow(product, uint256.NewInt(factor)); overflow {
			return 0, 0, fmt.Errorf("reward product: %w", model.ErrArithmeticOverflow)
		}
	}
	if _, overflow := product.AddOverflow(product, uint256.NewInt(carry)); overflow {
		return 0, 0, fmt.Errorf("reward carry: %w", model.ErrArithmeticOverflow)
	}

	precision := uint256.NewInt(Precision)
	rem := new(uint256.Int).Mod(product, precision)
	product.Div(product, precision)
	if !product.IsUint64() {
		return 0, 0, fmt.Errorf("reward %s exceeds uint64: %w", product.Dec(), model.ErrArithmeticOverflow)
	}
	return product.Uint64(), rem.Uint64(), nil
}

// Elapsed returns to-from, or zero when the clock reads earlier than from.
func Elapsed(from, to uint64) uint64 {
	if to <= from {
		return 0
	}
	return to - from
}
