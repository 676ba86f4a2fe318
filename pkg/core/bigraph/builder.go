package bigraph

import (
	"fmt"

	"github.com/tidwall/btree"
)

// ratingEntry is one (movie, user, rating) triple awaiting CSR assembly.
type ratingEntry struct {
	movie  uint32
	user   uint32 // zero-based user index, not node id
	rating uint32
}

func ratingLess(a, b ratingEntry) bool {
	if a.movie != b.movie {
		return a.movie < b.movie
	}
	return a.user < b.user
}

// Builder accumulates ratings and assembles the CSR graph. Entries are kept
// in a B-Tree ordered by (movie, user) so the adjacency of every movie comes
// out sorted by destination — the order the slicing executors require.
type Builder struct {
	numMovies int
	numUsers  int
	entries   *btree.BTreeG[ratingEntry]
}

// NewBuilder creates a builder for a graph with fixed dimensions.
func NewBuilder(numMovies, numUsers int) *Builder {
	return &Builder{
		numMovies: numMovies,
		numUsers:  numUsers,
		entries:   btree.NewBTreeG(ratingLess),
	}
}

// Add records one rating. The user is addressed by its zero-based index.
// A duplicate (movie, user) pair replaces the earlier rating.
func (b *Builder) Add(movie, userIndex, rating uint32) error {
	if int(movie) >= b.numMovies {
		return fmt.Errorf("bigraph: movie %d out of range [0, %d)", movie, b.numMovies)
	}
	if int(userIndex) >= b.numUsers {
		return fmt.Errorf("bigraph: user %d out of range [0, %d)", userIndex, b.numUsers)
	}
	b.entries.Set(ratingEntry{movie: movie, user: userIndex, rating: rating})
	return nil
}

// Len returns the number of distinct ratings recorded so far.
func (b *Builder) Len() int { return b.entries.Len() }

// Build assembles the CSR graph. The builder can be reused afterwards.
func (b *Builder) Build() *Graph {
	numNodes := b.numMovies + b.numUsers
	g := &Graph{
		numMovies: b.numMovies,
		numUsers:  b.numUsers,
		offsets:   make([]uint32, numNodes+1),
		dsts:      make([]uint32, 0, b.entries.Len()),
		ratings:   make([]uint32, 0, b.entries.Len()),
	}

	// 1. Degree count per movie.
	b.entries.Scan(func(e ratingEntry) bool {
		g.offsets[e.movie+1]++
		return true
	})

	// 2. Prefix sum. User rows stay empty, so the tail just repeats.
	for i := 1; i <= numNodes; i++ {
		g.offsets[i] += g.offsets[i-1]
	}

	// 3. Fill: the scan is (movie, user) ordered, so appending in scan
	// order lands every adjacency sorted by user.
	b.entries.Scan(func(e ratingEntry) bool {
		g.dsts = append(g.dsts, e.user+uint32(b.numMovies))
		g.ratings = append(g.ratings, e.rating)
		return true
	})

	return g
}
