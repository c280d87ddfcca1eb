package transaction

import "math"

// amountTolerance absorbs binary-float rounding on decimal money inputs;
// 0.3 - 0.1 is not exactly 0.2 in float64.
const amountTolerance = 1e-6

// AmountsConsistent reports whether net matches gross minus discount.
func AmountsConsistent(gross, discount, net float64) bool {
	return math.Abs(net-(gross-discount)) < amountTolerance
}
