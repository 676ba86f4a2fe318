package sgd

import (
	"time"
)

// runMarch marches one worker through the global ring of user slices. Before
// entering a slice the worker takes the slice lock, counting a conflict when
// the non-blocking attempt fails. Movie rows stay partitioned by worker, so
// the lock only has to serialize access to the users inside one slice.
//
// The worker stops after MaxMovieUpdates visits to every slice of the ring.
func (t *Trainer) runMarch(wi *workItem, locks *lockTable, stepSize float64) {
	start := time.Now()
	var updates, conflicts uint64

	sliceEnd := wi.userRangeStart
	currentSlice := wi.sliceStart
	visits := uint32(0)

	for visits < MaxMovieUpdates*wi.numSlices {
		lockIdx := int(currentSlice % wi.numSlices)
		if locks.acquire(lockIdx) {
			conflicts++
		}

		sliceEnd += wi.usersPerBlockSlice
		if sliceEnd > wi.userRangeEnd {
			sliceEnd = wi.userRangeEnd
		}
		sliceEndNode := t.g.UserNode(sliceEnd)

		for movie := wi.movieRangeStart; movie < wi.movieRangeEnd; movie++ {
			updates += t.updateMovieEdges(movie, sliceEndNode, stepSize)
			t.resetCursorAtLastUser(movie, sliceEnd)
		}

		locks.release(lockIdx)

		currentSlice++
		visits++

		if sliceEnd == wi.userRangeEnd {
			currentSlice = 0
			sliceEnd = 0
		}
	}

	wi.timeTaken = time.Since(start)
	wi.updates = updates
	wi.conflicts = conflicts

	t.logger.Info("march worker finished",
		"worker", wi.id,
		"updates", updates,
		"conflicts", conflicts,
		"elapsed", wi.timeTaken)
}
