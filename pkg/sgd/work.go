package sgd

import (
	"sync"
	"time"
)

// workItem is one worker's assignment: a movie range, the currently assigned
// user range, and the slice widths to tile it with. The driver rewrites the
// user range between rotation steps.
type workItem struct {
	movieRangeStart uint32
	movieRangeEnd   uint32
	userRangeStart  uint32
	userRangeEnd    uint32

	usersPerBlockSlice  uint32
	moviesPerBlockSlice uint32

	// march variant only
	sliceStart uint32
	numSlices  uint32

	// diagnostics
	id        int
	updates   uint64
	conflicts uint64
	timeTaken time.Duration
}

// workPlan is the planner output: one item per worker plus the rotation
// tables the driver uses to move user ranges between workers.
type workPlan struct {
	items []workItem

	// userRangeStartPoints and userRangeEndPoints hold the W initial user
	// range boundaries, indexed by (rotationStep + workerIndex) mod W when
	// the driver rotates assignments.
	userRangeStartPoints []uint32
	userRangeEndPoints   []uint32
}

// planWork splits [0, numMovies) and [0, numUsers) into numWorkers
// contiguous ranges. Division truncates; the last worker takes the
// remainder of both dimensions.
func planWork(numWorkers int, numMovies, numUsers int, usersPerBlockSlice, moviesPerBlockSlice uint32) *workPlan {
	moviesPerThread := uint32(numMovies / numWorkers)
	usersPerThread := uint32(numUsers / numWorkers)

	plan := &workPlan{
		items:                make([]workItem, numWorkers),
		userRangeStartPoints: make([]uint32, numWorkers),
		userRangeEndPoints:   make([]uint32, numWorkers),
	}

	for i := 0; i < numWorkers; i++ {
		wi := workItem{
			id:                  i,
			movieRangeStart:     moviesPerThread * uint32(i),
			userRangeStart:      usersPerThread * uint32(i),
			usersPerBlockSlice:  usersPerBlockSlice,
			moviesPerBlockSlice: moviesPerBlockSlice,
		}
		if i == numWorkers-1 {
			wi.movieRangeEnd = uint32(numMovies)
			wi.userRangeEnd = uint32(numUsers)
		} else {
			wi.movieRangeEnd = wi.movieRangeStart + moviesPerThread
			wi.userRangeEnd = usersPerThread * uint32(i+1)
		}

		plan.userRangeStartPoints[i] = wi.userRangeStart
		plan.userRangeEndPoints[i] = wi.userRangeEnd
		plan.items[i] = wi
	}
	return plan
}

// doAll runs fn over every work item on its own goroutine and waits for all
// of them. One parallel section of the fork-join driver.
func doAll(items []workItem, fn func(*workItem)) {
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(wi *workItem) {
			defer wg.Done()
			fn(wi)
		}(&items[i])
	}
	wg.Wait()
}

// advanceEdgeCursors aligns the edge cursor of every movie in the item's
// movie range with the item's starting user range: the cursor is moved past
// every edge whose destination precedes the range's first user. Run once,
// after planning and before the first executor pass.
func (t *Trainer) advanceEdgeCursors(wi *workItem) {
	firstUserNode := t.g.UserNode(wi.userRangeStart)
	for movie := wi.movieRangeStart; movie < wi.movieRangeEnd; movie++ {
		edgeEnd := t.g.EdgeEnd(movie)
		for it := t.g.EdgeBegin(movie) + t.store.EdgeOffset(movie); it < edgeEnd; it++ {
			if t.g.EdgeDst(it) >= firstUserNode {
				break
			}
			t.store.AdvanceEdgeOffset(movie)
		}
	}
}
