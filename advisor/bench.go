package advisor

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

func generateRandomDenseMatrix(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(rows, cols, data)
}

// MeasureGEMMRate times dense matrix products and returns the sustained
// rate in GFLOP/s, the unit EstimateStep consumes.
func MeasureGEMMRate() float64 {
	const n = 256
	const iterations = 10

	rng := rand.New(rand.NewSource(1))
	a := generateRandomDenseMatrix(rng, n, n)
	b := generateRandomDenseMatrix(rng, n, n)

	// One warm-up multiply before timing.
	var warm mat.Dense
	warm.Mul(a, b)

	var total time.Duration
	for i := 0; i < iterations; i++ {
		start := time.Now()
		var result mat.Dense
		result.Mul(a, b)
		total += time.Since(start)
	}

	flops := 2 * float64(n) * float64(n) * float64(n) * iterations
	secs := total.Seconds()
	if secs <= 0 {
		return 0
	}
	return flops / secs / 1e9
}
