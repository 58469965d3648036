package fixedpoint

import "testing"

func TestMulAgreesWithFloat(t *testing.T) {
	cases := []struct{ a, b float64 }{
		{2.5, 4.0}, {-1.5, 3.25}, {0, 100}, {123.456, -7.89}, {0.001, 0.002},
	}
	for _, c := range cases {
		a, b := FromFloat(c.a), FromFloat(c.b)
		got := Mul(a, b)
		want := c.a * c.b
		diff := got.ToFloat() - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.01 {
			t.Errorf("Mul(%v,%v) = %v, want ~%v (diff %v)", c.a, c.b, got.ToFloat(), want, diff)
		}
	}
}

func TestDivByZero(t *testing.T) {
	if got := Div(FromInt(5), 0); got != 0 {
		t.Errorf("Div(5,0) = %v, want 0", got)
	}
}

func TestMulULP(t *testing.T) {
	// fxmul(a,b) must differ from round(a*b/2^16) by at most 1 ULP for
	// |a*b| < 2^47 property 10.
	pairs := [][2]int32{{1000, 2000}, {-5000, 30000}, {65536, 65536}, {1, 1}, {-1, -1}}
	for _, p := range pairs {
		a, b := Fixed(p[0]), Fixed(p[1])
		got := Mul(a, b)
		want := (int64(a)*int64(b) + 1<<15) >> shift
		diff := int64(got) - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			t.Errorf("Mul(%d,%d)=%d want ~%d, diff %d", a, b, got, want, diff)
		}
	}
}

func TestSqrt(t *testing.T) {
	for _, v := range []float64{1, 4, 9, 16, 100, 2} {
		got := Sqrt(FromFloat(v)).ToFloat()
		want := v
		switch v {
		case 1:
			want = 1
		case 4:
			want = 2
		case 9:
			want = 3
		case 16:
			want = 4
		case 100:
			want = 10
		case 2:
			want = 1.41421356
		}
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.05 {
			t.Errorf("Sqrt(%v) = %v, want ~%v", v, got, want)
		}
	}
}

func TestRMSNormUnitWeight(t *testing.T) {
	// After rms_norm(x, weight=1), mean(x^2) ~= 1.0 within 0.3
	// property 4.
	x := make([]Fixed, 8)
	w := make([]Fixed, 8)
	for i := range x {
		x[i] = FromFloat(float64(i+1) * 0.7)
		w[i] = One
	}
	out := make([]Fixed, 8)
	RMSNorm(x, w, out)

	var sumSq float64
	for _, v := range out {
		f := v.ToFloat()
		sumSq += f * f
	}
	meanSq := sumSq / float64(len(out))
	if meanSq < 0.7 || meanSq > 1.3 {
		t.Errorf("mean(out^2) = %v, want ~1.0 +/- 0.3", meanSq)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	x := []Fixed{FromFloat(1), FromFloat(2), FromFloat(3), FromFloat(0.5)}
	out := make([]Fixed, len(x))
	Softmax(x, out)
	var sum float64
	for _, v := range out {
		sum += v.ToFloat()
	}
	if sum < 0.95 || sum > 1.05 {
		t.Errorf("sum(softmax) = %v, want ~1.0", sum)
	}
}

func TestSigmoidBounds(t *testing.T) {
	if s := Sigmoid(FromFloat(-100)).ToFloat(); s < -0.01 || s > 0.05 {
		t.Errorf("Sigmoid(-100) = %v, want ~0", s)
	}
	if s := Sigmoid(FromFloat(100)).ToFloat(); s < 0.95 || s > 1.05 {
		t.Errorf("Sigmoid(100) = %v, want ~1", s)
	}
	if s := Sigmoid(FromFloat(0)).ToFloat(); s < 0.45 || s > 0.55 {
		t.Errorf("Sigmoid(0) = %v, want ~0.5", s)
	}
}

func TestExpClampAndMonotonic(t *testing.T) {
	lo := Exp(FromFloat(-20)).ToFloat()
	hi := Exp(FromFloat(20)).ToFloat()
	if lo < 0 {
		t.Errorf("Exp saturated negative: %v", lo)
	}
	if hi <= lo {
		t.Errorf("Exp not monotonic: Exp(-20)=%v Exp(20)=%v", lo, hi)
	}
}
