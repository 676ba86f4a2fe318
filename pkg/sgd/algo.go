// Package sgd implements parallel stochastic gradient descent for low-rank
// matrix factorization over a bipartite ratings graph.
//
// The trainer partitions the (movie x user) rating matrix into per-worker
// rectangles and rotates the user ranges cyclically so that at any instant
// concurrent workers touch disjoint movie rows and disjoint user columns.
// Six executor strategies are provided, from the naive per-movie baseline to
// cache-tiled blocking and a lock-guarded marching variant.
package sgd

import "fmt"

// MaxMovieUpdates is the number of outer epochs for the blocked executors
// and the per-slice visit multiplier for the marching executor.
const MaxMovieUpdates = 5

// simpleEpochs is the epoch count for the nodeMovie and edgeMovie baselines.
const simpleEpochs = 10

// Algo selects the executor strategy.
type Algo int

const (
	// NodeMovie processes one whole movie per work unit.
	NodeMovie Algo = iota
	// EdgeMovie processes one edge per work unit, at most one in flight per movie.
	EdgeMovie
	// Block assigns each worker a movie range x rotating user range.
	Block
	// BlockAndSliceUsers additionally slices each rectangle's user range.
	BlockAndSliceUsers
	// BlockAndSliceBoth tiles both the user and the movie range (default).
	BlockAndSliceBoth
	// SliceMarch marches every worker through a lock-guarded ring of user slices.
	SliceMarch
)

// String returns the algorithm's configuration name.
func (a Algo) String() string {
	switch a {
	case NodeMovie:
		return "nodeMovie"
	case EdgeMovie:
		return "edgeMovie"
	case Block:
		return "block"
	case BlockAndSliceUsers:
		return "blockAndSliceUsers"
	case BlockAndSliceBoth:
		return "blockAndSliceBoth"
	case SliceMarch:
		return "sliceMarch"
	default:
		return fmt.Sprintf("algo(%d)", int(a))
	}
}

// ParseAlgo maps a configuration name to an Algo.
func ParseAlgo(name string) (Algo, error) {
	switch name {
	case "nodeMovie":
		return NodeMovie, nil
	case "edgeMovie":
		return EdgeMovie, nil
	case "block":
		return Block, nil
	case "blockAndSliceUsers":
		return BlockAndSliceUsers, nil
	case "blockAndSliceBoth":
		return BlockAndSliceBoth, nil
	case "sliceMarch":
		return SliceMarch, nil
	default:
		return 0, fmt.Errorf("sgd: unknown algorithm %q", name)
	}
}
