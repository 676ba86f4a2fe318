package sgd

import (
	"math"
	"sync"

	"github.com/mohankumarSriram/katana/pkg/core/bigraph"
	"github.com/mohankumarSriram/katana/pkg/core/latent"
	"github.com/mohankumarSriram/katana/pkg/metrics"
)

// Verify computes the root-mean-square error of the factorization over every
// rating edge with a parallel reduction. It returns the raw squared-error
// sum and sqrt(sum / numRatings). Predictions are clamped before comparison.
//
// The pass is read-only with respect to the latent store, so running it
// twice on the same state returns the same numbers.
func (t *Trainer) Verify() (sum, rmse float64) {
	sum, denormals := verifyParallel(t.g, t.store, t.workers)
	if denormals > 0 {
		t.logger.Warn("non-normal predictions during verify", "count", denormals)
	}

	if t.g.NumRatings() == 0 {
		metrics.RMSE.Set(0)
		return 0, 0
	}
	rmse = math.Sqrt(sum / float64(t.g.NumRatings()))
	metrics.RMSE.Set(rmse)
	return sum, rmse
}

func verifyParallel(g *bigraph.Graph, store *latent.Store, workers int) (sum float64, denormals uint64) {
	numMovies := uint32(g.NumMovies())
	if numMovies == 0 {
		return 0, 0
	}
	if workers < 1 {
		workers = 1
	}
	if uint32(workers) > numMovies {
		workers = int(numMovies)
	}

	chunk := numMovies / uint32(workers)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := chunk * uint32(w)
		hi := lo + chunk
		if w == workers-1 {
			hi = numMovies
		}

		wg.Add(1)
		go func(lo, hi uint32) {
			defer wg.Done()
			var localSum float64
			var localDenormals uint64

			for movie := lo; movie < hi; movie++ {
				movieVec := store.Vec(movie)
				edgeEnd := g.EdgeEnd(movie)
				for it := g.EdgeBegin(movie); it < edgeEnd; it++ {
					pred := latent.Predict(movieVec, store.Vec(g.EdgeDst(it)))
					if !isNormal(pred) {
						localDenormals++
					}
					diff := pred - float64(g.EdgeRating(it))
					localSum += diff * diff
				}
			}

			mu.Lock()
			sum += localSum
			denormals += localDenormals
			mu.Unlock()
		}(lo, hi)
	}
	wg.Wait()
	return sum, denormals
}

// smallestNormal is the smallest positive normal float64.
const smallestNormal = 2.2250738585072014e-308

func isNormal(x float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	return math.Abs(x) >= smallestNormal
}
