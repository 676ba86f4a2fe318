package sgd

import (
	"time"

	"github.com/mohankumarSriram/katana/pkg/core/latent"
)

// updateMovieEdges walks one movie's edges starting at its cursor and applies
// the gradient kernel to every edge landing before sliceEndNode (exclusive).
// The cursor advances with each processed edge so re-entering the movie in a
// later slice resumes at the right position. Returns the number of updates.
func (t *Trainer) updateMovieEdges(movie, sliceEndNode uint32, stepSize float64) uint64 {
	var updates uint64
	movieVec := t.store.Vec(movie)
	edgeEnd := t.g.EdgeEnd(movie)
	for it := t.g.EdgeBegin(movie) + t.store.EdgeOffset(movie); it < edgeEnd; it++ {
		user := t.g.EdgeDst(it)
		if user >= sliceEndNode {
			break
		}
		latent.GradientUpdate(movieVec, t.store.Vec(user), t.g.EdgeRating(it), stepSize)
		t.store.AddUpdate(movie)
		t.store.AdvanceEdgeOffset(movie)
		updates++
	}
	return updates
}

// resetCursorAtLastUser rewinds a movie's cursor when the slice that just
// finished ends at the global last user, so the next epoch restarts from the
// beginning of the adjacency list.
func (t *Trainer) resetCursorAtLastUser(movie, sliceEnd uint32) {
	if sliceEnd == uint32(t.g.NumUsers()) {
		t.store.SetEdgeOffset(movie, 0)
	}
}

// runBlock processes the item's full rectangle in one sweep: every movie in
// the movie range, every edge landing inside the user range.
func (t *Trainer) runBlock(wi *workItem, stepSize float64) {
	start := time.Now()
	var updates uint64

	rangeEndNode := t.g.UserNode(wi.userRangeEnd)
	for movie := wi.movieRangeStart; movie < wi.movieRangeEnd; movie++ {
		updates += t.updateMovieEdges(movie, rangeEndNode, stepSize)
		t.resetCursorAtLastUser(movie, wi.userRangeEnd)
	}

	wi.timeTaken = time.Since(start)
	wi.updates = updates
}

// runBlockUsers tiles the rectangle's user range into slices of
// usersPerBlockSlice and walks the whole movie range once per slice.
func (t *Trainer) runBlockUsers(wi *workItem, stepSize float64) {
	start := time.Now()
	var updates uint64

	sliceEnd := wi.userRangeStart
	for sliceEnd < wi.userRangeEnd {
		sliceEnd += wi.usersPerBlockSlice
		if sliceEnd > wi.userRangeEnd {
			sliceEnd = wi.userRangeEnd
		}
		sliceEndNode := t.g.UserNode(sliceEnd)

		for movie := wi.movieRangeStart; movie < wi.movieRangeEnd; movie++ {
			updates += t.updateMovieEdges(movie, sliceEndNode, stepSize)
			t.resetCursorAtLastUser(movie, sliceEnd)
		}
	}

	wi.timeTaken = time.Since(start)
	wi.updates = updates
}

// runBlockBoth tiles users and movies: the outer loop advances a user slice,
// the inner loop scans the movie range one movie slice at a time. This keeps
// the working set to one usersPerBlockSlice x moviesPerBlockSlice tile of the
// rating matrix.
func (t *Trainer) runBlockBoth(wi *workItem, stepSize float64) {
	start := time.Now()
	var updates uint64

	userSliceEnd := wi.userRangeStart
	for userSliceEnd < wi.userRangeEnd {
		userSliceEnd += wi.usersPerBlockSlice
		if userSliceEnd > wi.userRangeEnd {
			userSliceEnd = wi.userRangeEnd
		}
		sliceEndNode := t.g.UserNode(userSliceEnd)

		movieSliceEnd := wi.movieRangeStart
		for movieSliceEnd < wi.movieRangeEnd {
			movieSliceStart := movieSliceEnd
			movieSliceEnd += wi.moviesPerBlockSlice
			if movieSliceEnd > wi.movieRangeEnd {
				movieSliceEnd = wi.movieRangeEnd
			}

			for movie := movieSliceStart; movie < movieSliceEnd; movie++ {
				updates += t.updateMovieEdges(movie, sliceEndNode, stepSize)
				t.resetCursorAtLastUser(movie, userSliceEnd)
			}
		}
	}

	wi.timeTaken = time.Since(start)
	wi.updates = updates
}
