// Package latent holds the per-node latent factors learned by the SGD
// trainer, together with the numeric kernels that read and write them.
//
// Factors are stored in one dense columnar buffer indexed by node id. Workers
// get exclusive access to their movie rows through index math alone; the
// package itself performs no locking. Race freedom is the responsibility of
// the partitioning layer above.
package latent

import (
	"math/rand"
)

const (
	// VectorSize is the fixed width of every latent vector.
	VectorSize = 20

	// MinVal and MaxVal clamp predictions before they are compared to ratings.
	MinVal = -1e+100
	MaxVal = 1e+100

	// Seed makes factor initialization reproducible across runs.
	Seed = 4562727
)

// Store owns the latent vectors of all nodes plus the per-movie bookkeeping
// the executors need: how many gradient updates a movie has received and how
// far into its adjacency list the current pass has progressed.
type Store struct {
	numMovies int
	numUsers  int

	// vecs is the dense factor buffer, VectorSize doubles per node.
	vecs []float64

	// updates and edgeOffset are indexed by movie id. Users have no edges,
	// so they carry neither counter.
	updates    []uint32
	edgeOffset []uint32
}

// NewStore allocates factors for numMovies+numUsers nodes and fills every
// component with a uniform draw from (-1, 1) using the fixed seed.
func NewStore(numMovies, numUsers int) *Store {
	numNodes := numMovies + numUsers
	s := &Store{
		numMovies:  numMovies,
		numUsers:   numUsers,
		vecs:       make([]float64, numNodes*VectorSize),
		updates:    make([]uint32, numMovies),
		edgeOffset: make([]uint32, numMovies),
	}

	rng := rand.New(rand.NewSource(Seed))
	for i := range s.vecs {
		s.vecs[i] = 2.0*rng.Float64() - 1.0
	}
	return s
}

// NumMovies returns the number of movie nodes.
func (s *Store) NumMovies() int { return s.numMovies }

// NumUsers returns the number of user nodes.
func (s *Store) NumUsers() int { return s.numUsers }

// NumNodes returns the total node count.
func (s *Store) NumNodes() int { return s.numMovies + s.numUsers }

// Vec returns the latent vector of the given node as a mutable slice into
// the shared buffer.
func (s *Store) Vec(node uint32) []float64 {
	off := int(node) * VectorSize
	return s.vecs[off : off+VectorSize : off+VectorSize]
}

// Updates returns the number of gradient updates applied to a movie.
func (s *Store) Updates(movie uint32) uint32 { return s.updates[movie] }

// AddUpdate bumps a movie's update counter.
func (s *Store) AddUpdate(movie uint32) { s.updates[movie]++ }

// EdgeOffset returns a movie's resumable edge cursor.
func (s *Store) EdgeOffset(movie uint32) uint32 { return s.edgeOffset[movie] }

// SetEdgeOffset rewrites a movie's edge cursor.
func (s *Store) SetEdgeOffset(movie, off uint32) { s.edgeOffset[movie] = off }

// AdvanceEdgeOffset moves a movie's edge cursor one edge forward.
func (s *Store) AdvanceEdgeOffset(movie uint32) { s.edgeOffset[movie]++ }

// CloneVecs copies the full factor buffer, for snapshot comparison in tests
// and for consumers that want a stable view after training.
func (s *Store) CloneVecs() []float64 {
	out := make([]float64, len(s.vecs))
	copy(out, s.vecs)
	return out
}
