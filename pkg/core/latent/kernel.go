package latent

import (
	"github.com/mohankumarSriram/katana/pkg/core/schedule"
)

// GradientUpdate applies one SGD step for the rated (movie, user) pair,
// mutating both latent vectors in place. Each component is updated from the
// previous iteration's values on both sides.
//
// The error term uses the raw, unclamped dot product; clamping applies only
// to predictions surfaced by the verifier.
func GradientUpdate(movie, user []float64, rating uint32, stepSize float64) {
	curError := float64(rating) - Dot(movie, user)

	for i := 0; i < VectorSize; i++ {
		prevMovie := movie[i]
		prevUser := user[i]
		movie[i] += stepSize * (curError*prevUser - schedule.Lambda*prevMovie)
		user[i] += stepSize * (curError*prevMovie - schedule.Lambda*prevUser)
	}
}
