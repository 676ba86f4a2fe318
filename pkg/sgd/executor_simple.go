package sgd

import (
	"sync"
	"sync/atomic"

	"github.com/mohankumarSriram/katana/pkg/core/latent"
)

// moviesWithEdges collects the movie nodes that carry at least one rating.
func (t *Trainer) moviesWithEdges() []uint32 {
	var movies []uint32
	for movie := uint32(0); movie < uint32(t.g.NumMovies()); movie++ {
		if t.g.EdgeBegin(movie) != t.g.EdgeEnd(movie) {
			movies = append(movies, movie)
		}
	}
	return movies
}

// runNodeMovieEpoch distributes whole movies over the workers; each pop
// applies the kernel to every outgoing edge of one movie. The channel hands
// a movie to exactly one worker, but user-side writes may still race across
// movies sharing a user. This baseline accepts that imprecision.
// Returns the number of kernel invocations.
func (t *Trainer) runNodeMovieEpoch(movies []uint32, stepSize float64) uint64 {
	work := make(chan uint32, len(movies))
	for _, m := range movies {
		work <- m
	}
	close(work)

	var updates atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < t.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local uint64
			for movie := range work {
				edgeEnd := t.g.EdgeEnd(movie)
				for it := t.g.EdgeBegin(movie); it < edgeEnd; it++ {
					local += t.applyEdge(movie, it, stepSize)
				}
			}
			updates.Add(local)
		}()
	}
	wg.Wait()
	return updates.Load()
}

// runEdgeMovieEpoch keeps at most one edge per movie in the queue. Each pop
// processes the edge at the movie's cursor, advances the cursor, and
// re-queues the movie while edges remain; the cursor resets and the movie is
// dropped when its adjacency list is exhausted.
// Returns the number of kernel invocations.
func (t *Trainer) runEdgeMovieEpoch(movies []uint32, stepSize float64) uint64 {
	if len(movies) == 0 {
		return 0
	}

	// Capacity bound: the one-edge-in-flight rule keeps at most one queue
	// slot per movie occupied.
	queue := make(chan uint32, len(movies))
	outstanding := int64(len(movies))
	for _, m := range movies {
		queue <- m
	}

	var updates atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < t.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local uint64
			for movie := range queue {
				begin, end := t.g.EdgeBegin(movie), t.g.EdgeEnd(movie)
				it := begin + t.store.EdgeOffset(movie)

				local += t.applyEdge(movie, it, stepSize)
				t.store.AdvanceEdgeOffset(movie)

				if it+1 < end {
					queue <- movie
					continue
				}
				t.store.SetEdgeOffset(movie, 0)
				if atomic.AddInt64(&outstanding, -1) == 0 {
					close(queue)
				}
			}
			updates.Add(local)
		}()
	}
	wg.Wait()
	return updates.Load()
}

// applyEdge runs the kernel for a single edge. The simple baselines do not
// maintain the per-movie update counter; only the blocked and march
// executors do.
func (t *Trainer) applyEdge(movie, edge uint32, stepSize float64) uint64 {
	user := t.g.EdgeDst(edge)
	latent.GradientUpdate(t.store.Vec(movie), t.store.Vec(user), t.g.EdgeRating(edge), stepSize)
	return 1
}
