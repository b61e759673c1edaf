package economy

import "github.com/shopspring/decimal"

// SellerProceeds is floor(price × (1 − feeRate)); the remainder is the fee.
func SellerProceeds(price int64, feeRate float64) (proceeds, fee int64) {
	p := decimal.NewFromInt(price)
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(feeRate))
	proceeds = p.Mul(keep).Floor().IntPart()
	if proceeds < 0 {
		proceeds = 0
	}
	if proceeds > price {
		proceeds = price
	}
	return proceeds, price - proceeds
}

// GeometricCost is floor(base × growth^n) for n >= 0.
func GeometricCost(base int64, growth float64, n int) int64 {
	if n < 0 {
		n = 0
	}
	cost := decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(growth).Pow(decimal.NewFromInt(int64(n))))
	return cost.Floor().IntPart()
}

// ScaleValue is floor(base × Π factors).
func ScaleValue(base int64, factors ...float64) int64 {
	v := decimal.NewFromInt(base)
	for _, f := range factors {
		v = v.Mul(decimal.NewFromFloat(f))
	}
	out := v.Floor().IntPart()
	if out < 0 {
		return 0
	}
	return out
}
