package latent

import (
	"log"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// dotFunc is the signature shared by every dot-product implementation.
type dotFunc func(a, b []float64) float64

var (
	// dotImpl is the active implementation, overridden in init() when the
	// CPU supports a faster path. Gonum handles SIMD dispatch internally.
	dotImpl dotFunc = dotGo

	blasEngine = gonum.Implementation{}
)

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		dotImpl = dotBLAS
		log.Printf("katana compute kernel: dot product via Gonum BLAS (AVX2)")
		return
	}
	log.Printf("katana compute kernel: dot product via pure Go")
}

// Dot returns the inner product of two latent vectors.
func Dot(a, b []float64) float64 {
	dp := dotImpl(a, b)
	debugCheckNormal(dp)
	return dp
}

// dotGo is the pure Go reference implementation.
func dotGo(a, b []float64) float64 {
	var dp float64
	for i := range a {
		dp += a[i] * b[i]
	}
	return dp
}

// dotBLAS delegates to Gonum's hand-tuned Ddot kernel.
func dotBLAS(a, b []float64) float64 {
	return blasEngine.Ddot(len(a), a, 1, b, 1)
}

// Predict returns the clamped rating prediction for a (movie, user) pair.
// Only the verifier-facing prediction is clamped; the gradient kernel keeps
// the raw dot product.
func Predict(movie, user []float64) float64 {
	pred := Dot(movie, user)
	if pred > MaxVal {
		pred = MaxVal
	}
	if pred < MinVal {
		pred = MinVal
	}
	return pred
}
