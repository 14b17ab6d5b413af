package services

import (
	"math"

	"github.com/pkg/errors"
)

var errNotPositiveDefinite = errors.New("matrix is not positive definite")

// studentTCDF computes the CDF of Student's t at x with df degrees of freedom.
// Uses the regularized incomplete beta relation:
// for t>0: CDF = 1 - 0.5*I_{v/(v+t^2)}(v/2, 1/2), for t<0: CDF = 0.5*I_{v/(v+t^2)}(v/2, 1/2)
func studentTCDF(x, df float64) float64 {
	if x == 0 {
		return 0.5
	}
	z := df / (df + x*x)
	ib := regularizedIncompleteBeta(0.5*df, 0.5, z)
	if x > 0 {
		return 1 - 0.5*ib
	}
	return 0.5 * ib
}

// regularizedIncompleteBeta returns I_x(a,b).
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	bt := math.Exp(lgamma(a+b) - lgamma(a) - lgamma(b) + a*math.Log(x) + b*math.Log(1-x))
	// symmetry improves convergence of the continued fraction
	if x < (a+1)/(a+b+2) {
		return bt * betacf(a, b, x) / a
	}
	return 1 - bt*betacf(b, a, 1-x)/b
}

// betacf evaluates the continued fraction for the incomplete beta function (modified Lentz).
func betacf(a, b, x float64) float64 {
	const maxIter = 300
	const eps = 3e-14
	const fpmin = 1e-300
	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpmin {
		d = fpmin
	}
	d = 1 / d
	h := d
	for m := 1; m <= maxIter; m++ {
		em := float64(m)
		tem := em + em
		aa := em * (b - em) * x / ((qam + tem) * (a + tem))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		h *= d * c
		aa = -(a + em) * (qab + em) * x / ((a + tem) * (qap + tem))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}

// lgamma wrapper for math.Lgamma returning sign-less log gamma
func lgamma(x float64) float64 {
	l, _ := math.Lgamma(x)
	return l
}

// solveSymmetric solves A*x=b for symmetric positive definite A by Cholesky
func solveSymmetric(A [][]float64, b []float64) ([]float64, error) {
	n := len(A)
	if n == 0 || len(b) != n {
		return nil, errors.Errorf("dimension mismatch: %d equations, %d values", n, len(b))
	}
	for _, row := range A {
		if len(row) != n {
			return nil, errors.New("matrix is not square")
		}
	}
	L := make([][]float64, n)
	for i := 0; i < n; i++ {
		L[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for k := 0; k < j; k++ {
				sum += L[i][k] * L[j][k]
			}
			if i == j {
				val := A[i][i] - sum
				if val <= 0 || math.IsNaN(val) {
					return nil, errNotPositiveDefinite
				}
				L[i][j] = math.Sqrt(val)
			} else {
				L[i][j] = (A[i][j] - sum) / L[j][j]
			}
		}
	}
	// Forward substitution
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < i; j++ {
			sum += L[i][j] * y[j]
		}
		y[i] = (b[i] - sum) / L[i][i]
	}
	// Back substitution
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		var sum float64
		for j := i + 1; j < n; j++ {
			sum += L[j][i] * x[j]
		}
		x[i] = (y[i] - sum) / L[i][i]
	}
	return x, nil
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationVariance 母分散（Nで割る）を計算
func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return sumSquaredDiff / float64(len(values))
}

// pearson returns the Pearson correlation of x and y.
// ok is false when the lengths differ or either series has zero variance.
func pearson(x, y []float64) (r float64, ok bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	mx, my := calculateMean(x), calculateMean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx <= varianceEpsilon || syy <= varianceEpsilon {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// correlationPValue 相関係数の両側p値（t検定、自由度 n-2）
func correlationPValue(r float64, n int) float64 {
	if n < 3 {
		return 1.0
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)) / math.Sqrt(1-r*r)
	p := 2 * (1 - studentTCDF(math.Abs(t), float64(n-2)))
	return clamp(p, 0, 1)
}

// ZForConfidence returns the two-sided standard normal critical value for level (e.g. 0.95 -> 1.96).
func ZForConfidence(level float64) (float64, error) {
	if !(level > 0 && level < 1) {
		return 0, invalidInputf("confidence level must be in (0, 1), got %v", level)
	}
	return math.Sqrt2 * math.Erfinv(level), nil
}

// logistic is a numerically stable 1/(1+exp(-x)).
func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// varianceEpsilon 分散を0とみなす閾値
const varianceEpsilon = 1e-12
