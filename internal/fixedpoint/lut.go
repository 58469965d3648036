package fixedpoint

import "math"

// Each lookup table has 256 entries encoded as Q1.15 (one sign/integer bit,
// 15 fractional bits) over a fixed domain. Values outside the domain
// saturate at the table bounds. Tables are built once at init time rather
// than evaluated per call.
const (
	lutSize = 256

	sigmoidLo = -8.0
	sigmoidHi = 8.0
	tanhLo    = -4.0
	tanhHi    = 4.0
	expLo     = -8.0
	expHi     = 0.0

	q15Shift = 15
	q15One   = int32(1 << q15Shift)
)

var (
	sigmoidLUT [lutSize]int16
	tanhLUT    [lutSize]int16
	expLUT     [lutSize]int16
)

func init() {
	buildLUT(sigmoidLUT[:], sigmoidLo, sigmoidHi, func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
	buildLUT(tanhLUT[:], tanhLo, tanhHi, math.Tanh)
	buildLUT(expLUT[:], expLo, expHi, math.Exp)
}

func buildLUT(table []int16, lo, hi float64, f func(float64) float64) {
	n := len(table)
	for i := 0; i < n; i++ {
		x := lo + (hi-lo)*float64(i)/float64(n-1)
		v := f(x) * float64(q15One)
		if v > float64(q15One-1) {
			v = float64(q15One - 1)
		}
		if v < float64(-q15One) {
			v = float64(-q15One)
		}
		table[i] = int16(v)
	}
}

// lookup maps x (a Fixed, interpreted as a real number) into [lo,hi],
// saturating at the bounds, and returns the Q1.15 table entry converted to
// Q16.16.
func lookup(table []int16, lo, hi float64, x Fixed) Fixed {
	xf := x.ToFloat()
	if xf <= lo {
		return q15ToFixed(table[0])
	}
	if xf >= hi {
		return q15ToFixed(table[len(table)-1])
	}
	frac := (xf - lo) / (hi - lo)
	idx := int(frac * float64(len(table)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	return q15ToFixed(table[idx])
}

func q15ToFixed(v int16) Fixed {
	// Q1.15 -> Q16.16: shift left by (16-15).
	return Fixed(int32(v) << (shift - q15Shift))
}

// Sigmoid looks up sigmoid(x) via the 256-entry table over [-8,8].
func Sigmoid(x Fixed) Fixed { return lookup(sigmoidLUT[:], sigmoidLo, sigmoidHi, x) }

// Tanh looks up tanh(x) via the 256-entry table over [-4,4].
func Tanh(x Fixed) Fixed { return lookup(tanhLUT[:], tanhLo, tanhHi, x) }

// ExpLUT looks up exp(x) via the 256-entry table over [-8,0]. Callers with
// an unbounded or positive domain use Exp instead; Softmax's arguments are
// always <=0 after max-subtraction, so it uses this table directly.
func ExpLUT(x Fixed) Fixed { return lookup(expLUT[:], expLo, expHi, x) }

// Exp computes a fixed-point approximation of e^x, clamping the input to
// [-10,10], scaling by 1/16, evaluating a 5-term Taylor polynomial, then
// squaring the result four times to undo the scaling (2^4 = 16).
func Exp(x Fixed) Fixed {
	const lo, hi = -10 * int32(one), 10 * int32(one)
	if int32(x) < lo {
		x = Fixed(lo)
	}
	if int32(x) > hi {
		x = Fixed(hi)
	}
	scaled := Div(x, FromInt(16))

	// Taylor series for e^y around 0: 1 + y + y^2/2! + y^3/3! + y^4/4!.
	term := One
	sum := One
	for i := int32(1); i <= 4; i++ {
		term = Mul(term, Div(scaled, FromInt(i)))
		sum = Add(sum, term)
	}
	result := sum
	for range 4 {
		result = Mul(result, result)
	}
	return result
}

// Softmax computes softmax over x into out (same length), subtracting the
// max for numerical stability. If the resulting sum is zero, out is left
// unmodified.
func Softmax(x []Fixed, out []Fixed) {
	n := len(x)
	if n == 0 {
		return
	}
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	var sum Fixed
	for _, v := range x {
		sum = Add(sum, ExpLUT(Sub(v, max)))
	}
	if sum == 0 {
		return
	}
	for i, v := range x {
		out[i] = Div(ExpLUT(Sub(v, max)), sum)
	}
}

// RMSNorm normalizes x in place into out using per-element weight,
// computing the mean of squares with 64-bit accumulation, taking 1/rms via
// one Newton-Raphson step from the initial guess 2/(mean_sq+1), then
// multiplying pointwise by weight. Elements past the end of weight (all
// of them when weight is empty) are scaled by 1.0.
func RMSNorm(x []Fixed, weight []Fixed, out []Fixed) {
	n := len(x)
	if n == 0 {
		return
	}
	var acc int64
	for _, v := range x {
		acc += (int64(v) * int64(v)) >> shift
	}
	meanSq := Fixed(acc / int64(n))

	guess := Div(FromInt(2), Add(meanSq, One))
	// One Newton-Raphson step refining y = rsqrt(meanSq):
	// y' = y * (1.5 - 0.5*meanSq*y*y).
	half := Div(One, FromInt(2))
	threeHalf := Add(One, half)
	y2 := Mul(guess, guess)
	invRMS := Mul(guess, Sub(threeHalf, Mul(half, Mul(meanSq, y2))))

	for i, v := range x {
		w := One
		if i < len(weight) {
			w = weight[i]
		}
		out[i] = Mul(Mul(v, invRMS), w)
	}
}
