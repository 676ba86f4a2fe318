// Package bigraph provides the immutable bipartite ratings graph the SGD
// trainer runs over, in compressed sparse row form.
//
// Node ids share one space: movies occupy [0, NumMovies) and users occupy
// [NumMovies, NumMovies+NumUsers). Only movie nodes carry outgoing edges;
// each edge stores the integer rating a user gave a movie. Per-movie
// adjacency is sorted ascending by destination user id, which the slicing
// executors rely on.
package bigraph

// Graph is a CSR bipartite ratings graph. It is immutable after Build.
type Graph struct {
	numMovies int
	numUsers  int

	// offsets has one entry per node plus a terminator. User rows are empty.
	offsets []uint32
	dsts    []uint32
	ratings []uint32
}

// NumMovies returns the number of movie nodes.
func (g *Graph) NumMovies() int { return g.numMovies }

// NumUsers returns the number of user nodes.
func (g *Graph) NumUsers() int { return g.numUsers }

// NumNodes returns the total node count.
func (g *Graph) NumNodes() int { return g.numMovies + g.numUsers }

// NumRatings returns the total edge count.
func (g *Graph) NumRatings() int { return len(g.dsts) }

// EdgeBegin returns the index of a node's first outgoing edge.
func (g *Graph) EdgeBegin(node uint32) uint32 { return g.offsets[node] }

// EdgeEnd returns the index one past a node's last outgoing edge.
func (g *Graph) EdgeEnd(node uint32) uint32 { return g.offsets[node+1] }

// Degree returns a node's outgoing edge count.
func (g *Graph) Degree(node uint32) uint32 { return g.offsets[node+1] - g.offsets[node] }

// EdgeDst returns the destination node id of edge i.
func (g *Graph) EdgeDst(i uint32) uint32 { return g.dsts[i] }

// EdgeRating returns the rating carried by edge i.
func (g *Graph) EdgeRating(i uint32) uint32 { return g.ratings[i] }

// UserNode translates a zero-based user index into its node id.
func (g *Graph) UserNode(userIndex uint32) uint32 {
	return userIndex + uint32(g.numMovies)
}

// UserIndex translates a user node id back into its zero-based index.
func (g *Graph) UserIndex(node uint32) uint32 {
	return node - uint32(g.numMovies)
}
